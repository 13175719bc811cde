// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/locationd/internal/batch"
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/settings"
	"github.com/wneessen/locationd/internal/signalbus"
)

// Hybrid arbitrates between a GPS and a WPS provider. GPS fixes always win; WPS fills in while GPS is
// searching for satellites or disabled.
type Hybrid struct {
	core
	gps *GPS
	wps *WPS

	current       Method
	gpsEnabled    bool
	wpsEnabled    bool
	singlePending bool
	unsubscribe   []func()
}

// NewHybrid returns a Hybrid provider over the given children. Either child may be nil.
func NewHybrid(gps *GPS, wps *WPS, opts Options) (*Hybrid, error) {
	h := &Hybrid{gps: gps, wps: wps, current: MethodNone}
	if err := h.init(MethodHybrid, settings.UseMyLocation, opts); err != nil {
		return nil, err
	}
	h.extra = []Interval{IntervalSatellite}
	h.vendorStart = h.startChildren
	h.vendorStop = h.stopChildren
	if gps != nil {
		h.unsubscribe = append(h.unsubscribe, gps.Bus().Subscribe(func(e signalbus.Event) {
			h.onChild(MethodGPS, e)
		}))
	}
	if wps != nil {
		h.unsubscribe = append(h.unsubscribe, wps.Bus().Subscribe(func(e signalbus.Event) {
			h.onChild(MethodWPS, e)
		}))
	}
	return h, nil
}

// Current returns the child whose data was accepted last.
func (h *Hybrid) Current() Method {
	return h.current
}

// Close implements Provider.
func (h *Hybrid) Close() {
	_ = h.Stop()
	for _, unsubscribe := range h.unsubscribe {
		unsubscribe()
	}
	h.unsubscribe = nil
}

func (h *Hybrid) startChildren() error {
	if h.gps == nil && h.wps == nil {
		return fmt.Errorf("%w: hybrid provider has no children", ErrNotAvailable)
	}
	switch {
	case h.gps != nil && h.gps.Started():
		h.current = MethodGPS
		return nil
	case h.wps != nil && h.wps.Started():
		h.current = MethodWPS
		return nil
	}

	var errs []error
	if h.wps != nil {
		if err := h.wps.Start(); err != nil {
			errs = append(errs, err)
		} else {
			h.current = MethodWPS
		}
	}
	if h.gps != nil {
		if err := h.gps.Start(); err != nil {
			errs = append(errs, err)
		} else {
			h.current = MethodGPS
		}
	}
	if h.current == MethodNone {
		h.logger.Debug("no hybrid child could be started", logger.Err(errors.Join(errs...)))
		return MostSpecific(errs...)
	}
	h.watch(settings.GPSEnabled, h.onGPSSetting)
	return nil
}

func (h *Hybrid) stopChildren() error {
	var errs []error
	stopped := false
	for _, child := range h.children() {
		if err := child.Stop(); err != nil {
			errs = append(errs, err)
			continue
		}
		stopped = true
	}
	h.current = MethodNone
	h.gpsEnabled, h.wpsEnabled = false, false
	if !stopped {
		return MostSpecific(errs...)
	}
	return nil
}

func (h *Hybrid) children() []Provider {
	var children []Provider
	if h.gps != nil {
		children = append(children, h.gps)
	}
	if h.wps != nil {
		children = append(children, h.wps)
	}
	return children
}

// onGPSSetting falls back to WPS when GPS gets switched off.
func (h *Hybrid) onGPSSetting(_ settings.Key, value int) {
	if value != 0 || !h.started.Load() || h.wps == nil || h.wps.Started() {
		return
	}
	if !h.settingOn(settings.WPSEnabled) {
		return
	}
	if err := h.wps.Start(); err != nil {
		h.logger.Warn("failed to fall back to wps", logger.Err(err))
		return
	}
	h.current = MethodWPS
}

func (h *Hybrid) stateIs(key settings.Key, state int) bool {
	value, err := h.settings.Int(key)
	return err == nil && value == state
}

func (h *Hybrid) onChild(from Method, e signalbus.Event) {
	if e.Kind == signalbus.KindLocationUpdated {
		if h.singlePending {
			h.singlePending = false
			e.Source = ""
			h.bus.Emit(e)
		}
		return
	}
	if !h.started.Load() {
		return
	}

	switch e.Kind {
	case signalbus.KindEnabled:
		h.setChildEnabled(from, true)
	case signalbus.KindDisabled:
		h.setChildEnabled(from, false)
		if from == MethodGPS && h.current == MethodGPS && h.wps != nil && h.wps.Started() {
			h.current = MethodWPS
		}
		if !h.gpsEnabled && !h.wpsEnabled {
			h.signals.EnableTransition(h.bus, false, fix.StatusNoFix)
		}
	case signalbus.KindUpdated:
		h.onChildUpdate(from, e)
	}
}

func (h *Hybrid) setChildEnabled(from Method, enabled bool) {
	if from == MethodGPS {
		h.gpsEnabled = enabled
		return
	}
	h.wpsEnabled = enabled
}

func (h *Hybrid) onChildUpdate(from Method, e signalbus.Event) {
	if e.Update.Has(signalbus.UpdateSatellite) {
		if from == MethodGPS {
			h.signals.SatelliteUpdate(h.bus, h.intervals.Satellite, true, e.Satellite)
		}
		return
	}
	if !e.Position.Valid() || e.Velocity.Timestamp == 0 {
		return
	}

	gpsSearching := h.stateIs(settings.GPSState, settings.StateSearching)
	switch {
	case from == MethodGPS && gpsSearching:
		if h.wps != nil && !h.wps.Started() && h.settingOn(settings.WPSEnabled) {
			if err := h.wps.Start(); err != nil {
				h.logger.Warn("failed to start wps while gps is searching", logger.Err(err))
			}
		}
	case from == MethodWPS && h.stateIs(settings.WPSState, settings.StateSearching):
		// placeholder while the resolver has no answer yet
	case from == MethodGPS, h.current == MethodWPS:
		h.accept(from, e)
	case from == MethodWPS && gpsSearching:
		h.accept(from, e)
	}
}

// accept makes from the current child and signals its sample.
func (h *Hybrid) accept(from Method, e signalbus.Event) {
	if h.current != from {
		h.logger.Debug("hybrid source changed", slog.String("from", h.current.String()),
			slog.String("to", from.String()))
	}
	h.current = from
	if from == MethodGPS && h.wps != nil && h.wps.Started() {
		if err := h.wps.Stop(); err != nil {
			h.logger.Warn("failed to stop wps", logger.Err(err))
		}
	}

	pos, vel, acc := e.Position, e.Velocity, e.Accuracy
	if e.Update.Has(signalbus.UpdateDistance) {
		h.signals.Position.Set(pos)
		h.signals.Velocity.Set(vel)
		h.signals.Accuracy.Set(acc)
		h.signals.DistanceGated(h.bus, true, h.intervals, pos, vel, acc)
		return
	}
	h.signals.Location(h.bus, true, h.intervals, pos, vel, acc)
}

// LastPosition implements Provider.
func (h *Hybrid) LastPosition() (fix.Position, fix.Accuracy, error) {
	pos, _, acc, err := h.LastPositionVelocity()
	return pos, acc, err
}

// LastVelocity implements Provider.
func (h *Hybrid) LastVelocity() (fix.Velocity, fix.Accuracy, error) {
	_, vel, acc, err := h.LastPositionVelocity()
	return vel, acc, err
}

// LastPositionVelocity implements Provider. The WPS sample is only preferred if it is strictly newer.
func (h *Hybrid) LastPositionVelocity() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if h.gps == nil && h.wps == nil {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, ErrNotAvailable
	}

	var gpsErr, wpsErr error = ErrNotAvailable, ErrNotAvailable
	var gpsPos, wpsPos fix.Position
	var gpsVel, wpsVel fix.Velocity
	var gpsAcc, wpsAcc fix.Accuracy
	if h.gps != nil {
		gpsPos, gpsVel, gpsAcc, gpsErr = h.gps.LastPositionVelocity()
	}
	if h.wps != nil {
		wpsPos, wpsVel, wpsAcc, wpsErr = h.wps.LastPositionVelocity()
	}

	switch {
	case gpsErr != nil && wpsErr != nil:
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, MostSpecific(gpsErr, wpsErr)
	case gpsErr != nil:
		return wpsPos, wpsVel, wpsAcc, nil
	case wpsErr != nil:
		return gpsPos, gpsVel, gpsAcc, nil
	case wpsPos.Timestamp > gpsPos.Timestamp:
		return wpsPos, wpsVel, wpsAcc, nil
	default:
		return gpsPos, gpsVel, gpsAcc, nil
	}
}

// Satellite implements Provider.
func (h *Hybrid) Satellite() (fix.Satellite, error) {
	if err := h.readable(); err != nil {
		return fix.Satellite{}, err
	}
	sat, ok := h.signals.Satellite.Get()
	if !ok {
		return fix.Satellite{}, ErrNotAvailable
	}
	return sat, nil
}

// LastSatellite implements Provider.
func (h *Hybrid) LastSatellite() (fix.Satellite, error) {
	if h.gps == nil {
		return fix.Satellite{}, ErrNotAvailable
	}
	return h.gps.LastSatellite()
}

// NMEA implements Provider.
func (h *Hybrid) NMEA() (string, error) {
	if h.gps == nil {
		return "", ErrNotAvailable
	}
	return h.gps.NMEA()
}

// StartBatch implements Provider.
func (h *Hybrid) StartBatch() error {
	if h.gps == nil {
		return ErrNotAvailable
	}
	return h.gps.StartBatch()
}

// StopBatch implements Provider.
func (h *Hybrid) StopBatch() error {
	if h.gps == nil {
		return ErrNotAvailable
	}
	return h.gps.StopBatch()
}

// Batch implements Provider.
func (h *Hybrid) Batch() (*batch.Batch, error) {
	if h.gps == nil {
		return nil, ErrNotAvailable
	}
	return h.gps.Batch()
}

// SetOption implements Provider. It succeeds if any child accepts the option.
func (h *Hybrid) SetOption(option string) error {
	err := ErrNotAvailable
	for _, child := range h.children() {
		if err = child.SetOption(option); err == nil {
			return nil
		}
	}
	return err
}

// SetInterval implements Provider. The interval is applied to every child that supports it.
func (h *Hybrid) SetInterval(which Interval, seconds uint) error {
	if err := h.core.SetInterval(which, seconds); err != nil {
		return err
	}
	for _, child := range h.children() {
		if err := child.SetInterval(which, seconds); err != nil && !errors.Is(err, ErrNotSupported) {
			return err
		}
	}
	return nil
}

// SetMinDistance implements Provider.
func (h *Hybrid) SetMinDistance(meters float64) error {
	_ = h.core.SetMinDistance(meters)
	for _, child := range h.children() {
		if err := child.SetMinDistance(meters); err != nil {
			return err
		}
	}
	return nil
}

// RequestSingleLocation implements Provider. It is served by GPS if present, WPS otherwise.
func (h *Hybrid) RequestSingleLocation(timeout time.Duration) error {
	var child Provider
	switch {
	case h.gps != nil:
		child = h.gps
	case h.wps != nil:
		child = h.wps
	default:
		return ErrNotAvailable
	}
	// A running child answers the request trivially without a single result.
	if child.Started() {
		return child.RequestSingleLocation(timeout)
	}
	h.singlePending = true
	if err := child.RequestSingleLocation(timeout); err != nil {
		h.singlePending = false
		return err
	}
	return nil
}
