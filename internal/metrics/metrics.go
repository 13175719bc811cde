// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package metrics exports provider events as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/locationd/internal/signalbus"
)

const namespace = "locationd"

// Collector turns bus events into metrics. Observe is safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	events    *prometheus.CounterVec
	updates   *prometheus.CounterVec
	enabled   *prometheus.GaugeVec
	latitude  *prometheus.GaugeVec
	longitude *prometheus.GaugeVec
	altitude  *prometheus.GaugeVec
	accuracy  *prometheus.GaugeVec
	speed     *prometheus.GaugeVec
	lastFix   *prometheus.GaugeVec
	inView    *prometheus.GaugeVec
	inUse     *prometheus.GaugeVec
	batch     *prometheus.GaugeVec
}

// New returns a Collector registered with its own registry.
func New() *Collector {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			[]string{"source"})
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total", Help: "Emitted provider events.",
		}, []string{"source", "kind"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "updates_total", Help: "Emitted updates per update type bit.",
		}, []string{"source", "update"}),
		enabled:   gauge("enabled", "Whether the provider last signaled enabled."),
		latitude:  gauge("latitude_degrees", "Latitude of the last position update."),
		longitude: gauge("longitude_degrees", "Longitude of the last position update."),
		altitude:  gauge("altitude_meters", "Altitude of the last position update."),
		accuracy:  gauge("horizontal_accuracy_meters", "Horizontal accuracy of the last position update."),
		speed:     gauge("speed_kmh", "Speed of the last velocity update."),
		lastFix:   gauge("last_fix_timestamp_seconds", "Timestamp of the last position update."),
		inView:    gauge("satellites_in_view", "Satellites in view of the last satellite update."),
		inUse:     gauge("satellites_in_use", "Satellites used for the last satellite update."),
		batch:     gauge("batch_samples", "Samples of the last completed batch."),
	}
	c.registry.MustRegister(c.events, c.updates, c.enabled, c.latitude, c.longitude, c.altitude, c.accuracy,
		c.speed, c.lastFix, c.inView, c.inUse, c.batch)
	return c
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler serving the metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Attach observes every event of bus until the returned function is called.
func (c *Collector) Attach(bus *signalbus.Bus) func() {
	return bus.Subscribe(c.Observe)
}

// Observe records e.
func (c *Collector) Observe(e signalbus.Event) {
	src := e.Source
	c.events.WithLabelValues(src, e.Kind.String()).Inc()

	switch e.Kind {
	case signalbus.KindEnabled:
		c.enabled.WithLabelValues(src).Set(1)
	case signalbus.KindDisabled:
		c.enabled.WithLabelValues(src).Set(0)
	case signalbus.KindUpdated:
		for _, flag := range []signalbus.UpdateType{signalbus.UpdatePosition, signalbus.UpdateVelocity,
			signalbus.UpdateSatellite, signalbus.UpdateDistance, signalbus.UpdateLocationChanged} {
			if e.Update.Has(flag) {
				c.updates.WithLabelValues(src, flag.String()).Inc()
			}
		}
		if e.Update.Has(signalbus.UpdateSatellite) {
			c.inView.WithLabelValues(src).Set(float64(e.Satellite.InView))
			c.inUse.WithLabelValues(src).Set(float64(e.Satellite.InUse))
		}
		if e.Update.Has(signalbus.UpdatePosition) || e.Update.Has(signalbus.UpdateDistance) {
			c.position(src, e)
		}
		if e.Update.Has(signalbus.UpdateVelocity) {
			c.speed.WithLabelValues(src).Set(e.Velocity.Speed)
		}
	case signalbus.KindLocationUpdated:
		if e.Err == nil {
			c.position(src, e)
		}
	case signalbus.KindBatchUpdated:
		c.batch.WithLabelValues(src).Set(float64(e.Count))
	default:
	}
}

func (c *Collector) position(src string, e signalbus.Event) {
	if !e.Position.Valid() {
		return
	}
	c.latitude.WithLabelValues(src).Set(e.Position.Latitude)
	c.longitude.WithLabelValues(src).Set(e.Position.Longitude)
	c.altitude.WithLabelValues(src).Set(e.Position.Altitude)
	c.accuracy.WithLabelValues(src).Set(e.Accuracy.Horizontal)
	c.lastFix.WithLabelValues(src).Set(float64(e.Position.Timestamp))
}
