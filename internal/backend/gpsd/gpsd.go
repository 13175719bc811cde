// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpsd implements the GPS vendor backend on top of a gpsd daemon.
package gpsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/provider"
	"github.com/wneessen/locationd/internal/schedule"
	"github.com/wneessen/locationd/internal/settings"
)

const (
	DefaultHost  = "localhost"
	DefaultPort  = "2947"
	DefaultRetry = time.Second * 30
)

// Settings is the part of the settings store the backend reports its state to.
type Settings interface {
	SetInt(key settings.Key, value int) error
}

// Config configures a Backend.
type Config struct {
	Host     string
	Port     string
	BatchLog string
	// Retry is the delay between reconnection attempts.
	Retry time.Duration
}

// Backend streams TPV and SKY reports from gpsd. Reports are posted onto the event loop; all backend
// state is owned by the loop.
type Backend struct {
	config   Config
	loop     schedule.Poster
	settings Settings
	logger   *logger.Logger
	poll     *pollClient
	now      func() time.Time

	cancel   context.CancelFunc
	active   bool
	cb       provider.Callbacks
	interval uint
	lastSent int64
	fixed    bool

	hasLast bool
	lastPos fix.Position
	lastVel fix.Velocity
	lastAcc fix.Accuracy
	lastSat fix.Satellite

	batch *recorder
}

// New returns a Backend for the gpsd daemon described by config.
func New(config Config, loop schedule.Poster, store Settings, log *logger.Logger) *Backend {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.Port == "" {
		config.Port = DefaultPort
	}
	if config.Retry <= 0 {
		config.Retry = DefaultRetry
	}
	return &Backend{
		config:   config,
		loop:     loop,
		settings: store,
		logger:   logger.OrDiscard(log).With(slog.String("backend", "gpsd")),
		poll:     &pollClient{addr: net.JoinHostPort(config.Host, config.Port)},
		now:      time.Now,
	}
}

// Start implements provider.Backend.
func (b *Backend) Start(interval uint, cb provider.Callbacks) error {
	b.cb = cb
	b.interval = interval
	b.lastSent = 0
	b.active = true
	b.ensureStream()
	return nil
}

// Stop implements provider.Backend.
func (b *Backend) Stop() error {
	b.active = false
	b.cb = provider.Callbacks{}
	b.releaseStream()
	return nil
}

// SetInterval implements provider.IntervalSetter.
func (b *Backend) SetInterval(seconds uint) error {
	b.interval = seconds
	return nil
}

// LastPosition implements provider.Backend. Without a streamed sample it polls gpsd once.
func (b *Backend) LastPosition() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if b.hasLast {
		return b.lastPos, b.lastVel, b.lastAcc, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()
	pos, vel, acc, err := b.poll.Poll(ctx)
	if err != nil {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, fmt.Errorf("%w: %w", provider.ErrNotAvailable, err)
	}
	return pos, vel, acc, nil
}

// LastSatellite implements provider.SatelliteSource.
func (b *Backend) LastSatellite() (fix.Satellite, error) {
	if !b.lastSat.Valid() {
		return fix.Satellite{}, provider.ErrNotAvailable
	}
	return b.lastSat.Clone(), nil
}

// NMEA implements provider.NMEASource.
func (b *Backend) NMEA() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()
	sentences, err := b.poll.NMEA(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", provider.ErrNotAvailable, err)
	}
	return sentences, nil
}

// ensureStream starts the gpsd stream unless it is already running.
func (b *Backend) ensureStream() {
	if b.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.fixed = false
	b.setState(settings.StateSearching)
	go b.stream(ctx)
}

// releaseStream stops the stream once neither the provider nor batch mode need it.
func (b *Backend) releaseStream() {
	if b.active || b.batch != nil || b.cancel == nil {
		return
	}
	b.cancel()
	b.cancel = nil
	b.setState(settings.StateOff)
}

func (b *Backend) setState(state int) {
	if b.settings == nil {
		return
	}
	if err := b.settings.SetInt(settings.GPSState, state); err != nil {
		b.logger.Warn("failed to update gps state", logger.Err(err))
	}
}

// stream keeps a gpsd session alive until ctx is canceled, reconnecting after Retry.
func (b *Backend) stream(ctx context.Context) {
	addr := net.JoinHostPort(b.config.Host, b.config.Port)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		session, err := gpsd.Dial(addr)
		if err != nil {
			b.logger.Warn("failed to connect to gpsd", slog.String("address", addr), logger.Err(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.config.Retry):
				continue
			}
		}

		session.AddFilter("TPV", func(r interface{}) {
			report, ok := r.(*gpsd.TPVReport)
			if !ok || ctx.Err() != nil {
				return
			}
			converted := tpv{
				Class: "TPV", Mode: int(report.Mode), Time: report.Time, Lat: report.Lat, Lon: report.Lon,
				Alt: report.Alt, Track: report.Track, Speed: report.Speed, Climb: report.Climb, Epx: report.Epx,
				Epy: report.Epy, Epv: report.Epv,
			}
			b.loop.Post(func() { b.onTPV(ctx, converted) })
		})
		session.AddFilter("SKY", func(r interface{}) {
			report, ok := r.(*gpsd.SKYReport)
			if !ok || ctx.Err() != nil {
				return
			}
			sat := satellite(report, b.now())
			b.loop.Post(func() { b.onSky(ctx, sat) })
		})

		// The session has no Close; a canceled stream just stops consuming its reports.
		done := session.Watch()
		select {
		case <-ctx.Done():
			return
		case <-done:
			b.logger.Debug("gpsd connection ended, reconnecting")
			b.loop.Post(func() {
				if ctx.Err() == nil {
					b.fixed = false
					b.setState(settings.StateSearching)
				}
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.config.Retry):
		}
	}
}

func satellite(report *gpsd.SKYReport, now time.Time) fix.Satellite {
	ts := now.Unix()
	if !report.Time.IsZero() {
		ts = report.Time.Unix()
	}
	sat := fix.Satellite{Timestamp: ts, InView: uint32(len(report.Satellites))}
	for _, s := range report.Satellites {
		if s.Used {
			sat.InUse++
		}
		sat.Details = append(sat.Details, fix.SatelliteDetail{
			PRN:       uint32(s.PRN),
			Used:      s.Used,
			Elevation: uint32(max(s.El, 0)),
			Azimuth:   uint32(max(s.Az, 0)),
			SNR:       int32(s.Ss),
		})
	}
	return sat
}

// onTPV runs on the loop for every TPV report of the stream started with ctx.
func (b *Backend) onTPV(ctx context.Context, report tpv) {
	if ctx.Err() != nil {
		return
	}
	if !report.hasFix() {
		if b.fixed {
			b.fixed = false
			b.setState(settings.StateSearching)
		}
		return
	}

	pos, vel, acc := report.sample(b.now())
	b.hasLast = true
	b.lastPos, b.lastVel, b.lastAcc = pos, vel, acc
	if !b.fixed {
		b.fixed = true
		b.setState(settings.StateConnected)
		if b.cb.Status != nil {
			b.cb.Status(true, pos.Status)
		}
	}
	if b.settings != nil {
		if err := b.settings.SetInt(settings.LastGPSTimestamp, int(pos.Timestamp)); err != nil {
			b.logger.Warn("failed to update last gps timestamp", logger.Err(err))
		}
	}
	if b.batch != nil {
		if err := b.batch.record(pos, vel, acc); err != nil {
			b.logger.Error("failed to record batch sample", logger.Err(err))
		}
	}
	if b.cb.Location != nil && pos.Timestamp-b.lastSent >= int64(b.interval) {
		b.lastSent = pos.Timestamp
		b.cb.Location(true, pos, vel, acc)
	}
}

func (b *Backend) onSky(ctx context.Context, sat fix.Satellite) {
	if ctx.Err() != nil {
		return
	}
	b.lastSat = sat
	if b.cb.Satellite != nil {
		b.cb.Satellite(true, sat.Clone())
	}
}
