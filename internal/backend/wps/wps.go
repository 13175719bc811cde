// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package wps implements the network positioning vendor backend. Access points in range are resolved to a
// position by an online geolocation service.
package wps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/job"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/provider"
	"github.com/wneessen/locationd/internal/schedule"
	"github.com/wneessen/locationd/internal/settings"
)

const (
	// DefaultPeriod is the shortest time between two lookups.
	DefaultPeriod = time.Second * 30
	// DefaultRateLimit is the number of resolver requests allowed per minute.
	DefaultRateLimit = 10
)

var ErrNoResolver = errors.New("no resolver configured")

// Settings is the part of the settings store the backend reports its state to.
type Settings interface {
	SetInt(key settings.Key, value int) error
}

// Config configures a Backend.
type Config struct {
	Period time.Duration
	// RateLimit is the number of resolver requests allowed per minute.
	RateLimit float64
}

// Backend periodically scans for access points and resolves them. Lookups run on their own goroutine;
// results are posted onto the event loop, which owns all backend state.
type Backend struct {
	config   Config
	loop     schedule.Poster
	settings Settings
	scanner  Scanner
	resolver Resolver
	limiter  *rate.Limiter
	logger   *logger.Logger
	now      func() time.Time

	cancel   context.CancelFunc
	cb       provider.Callbacks
	interval uint
	lastSent int64
	fixed    bool

	hasLast bool
	lastPos fix.Position
	lastVel fix.Velocity
	lastAcc fix.Accuracy
}

// New returns a Backend resolving the access points found by scanner with resolver.
func New(config Config, scanner Scanner, resolver Resolver, loop schedule.Poster, store Settings,
	log *logger.Logger,
) (*Backend, error) {
	if resolver == nil {
		return nil, ErrNoResolver
	}
	if config.Period <= 0 {
		config.Period = DefaultPeriod
	}
	if config.RateLimit <= 0 {
		config.RateLimit = DefaultRateLimit
	}
	return &Backend{
		config:   config,
		loop:     loop,
		settings: store,
		scanner:  scanner,
		resolver: resolver,
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit/60), 1),
		logger:   logger.OrDiscard(log).With(slog.String("backend", "wps"), slog.String("resolver", resolver.Name())),
		now:      time.Now,
	}, nil
}

// Start implements provider.Backend. The first lookup runs right away, later ones every period.
func (b *Backend) Start(interval uint, cb provider.Callbacks) error {
	b.cb = cb
	b.interval = interval
	b.lastSent = 0
	if b.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.fixed = false
	b.setState(settings.StateSearching)

	period := max(time.Duration(interval)*time.Second, b.config.Period)
	lookups := job.New("wps-lookup", period, b.lookup, b.logger)
	go func() {
		if err := b.lookup(ctx); err != nil && ctx.Err() == nil {
			b.logger.Warn("network lookup failed", logger.Err(err))
		}
		if err := lookups.Start(ctx); err != nil {
			b.logger.Error("network lookup job failed", logger.Err(err))
		}
	}()
	return nil
}

// Stop implements provider.Backend.
func (b *Backend) Stop() error {
	b.cb = provider.Callbacks{}
	if b.cancel == nil {
		return nil
	}
	b.cancel()
	b.cancel = nil
	b.setState(settings.StateOff)
	return nil
}

// SetInterval implements provider.IntervalSetter.
func (b *Backend) SetInterval(seconds uint) error {
	b.interval = seconds
	return nil
}

// LastPosition implements provider.Backend.
func (b *Backend) LastPosition() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if !b.hasLast {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, provider.ErrNotAvailable
	}
	return b.lastPos, b.lastVel, b.lastAcc, nil
}

// lookup scans and resolves once. It runs off the loop.
func (b *Backend) lookup(ctx context.Context) error {
	var aps []AccessPoint
	if b.scanner != nil {
		list, err := b.scanner.AccessPoints()
		if err != nil {
			b.logger.Debug("access point scan failed, resolving without", logger.Err(err))
		}
		aps = list
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	res, err := b.resolver.Resolve(ctx, aps)
	if err != nil {
		b.loop.Post(func() { b.onFailure(ctx) })
		return fmt.Errorf("%w: %w", provider.ErrNetworkFailed, err)
	}
	at := b.now()
	b.loop.Post(func() { b.onResult(ctx, res, at) })
	return nil
}

func (b *Backend) onFailure(ctx context.Context) {
	if ctx.Err() != nil || !b.fixed {
		return
	}
	b.fixed = false
	b.setState(settings.StateSearching)
}

// onResult runs on the loop for every resolved position of the lookup started with ctx.
func (b *Backend) onResult(ctx context.Context, res Result, at time.Time) {
	if ctx.Err() != nil {
		return
	}
	ts := at.Unix()
	pos := fix.Position{Timestamp: ts, Latitude: res.Latitude, Longitude: res.Longitude, Status: fix.Status2DFix}
	vel := fix.Velocity{Timestamp: ts}
	acc := fix.Accuracy{Level: LevelFor(res.Accuracy), Horizontal: res.Accuracy}
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
		if err := b.settings.SetInt(settings.LastWPSTimestamp, int(ts)); err != nil {
			b.logger.Warn("failed to update last wps timestamp", logger.Err(err))
		}
	}
	if b.cb.Location != nil && ts-b.lastSent >= int64(b.interval) {
		b.lastSent = ts
		b.cb.Location(true, pos, vel, acc)
	}
}

func (b *Backend) setState(state int) {
	if b.settings == nil {
		return
	}
	if err := b.settings.SetInt(settings.WPSState, state); err != nil {
		b.logger.Warn("failed to update wps state", logger.Err(err))
	}
}

// LevelFor maps a horizontal accuracy in meters onto an accuracy level.
func LevelFor(meters float64) fix.Level {
	switch {
	case meters <= 0:
		return fix.LevelNone
	case meters <= 100:
		return fix.LevelStreet
	case meters <= 1000:
		return fix.LevelPostalCode
	case meters <= 10000:
		return fix.LevelLocality
	case meters <= 100000:
		return fix.LevelRegion
	default:
		return fix.LevelCountry
	}
}
