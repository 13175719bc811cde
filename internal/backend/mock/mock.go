// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mock implements the vendor backend of the mock provider. Injected locations are reported right
// away and repeated at the update interval until they are cleared.
package mock

import (
	"log/slog"
	"time"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/provider"
	"github.com/wneessen/locationd/internal/schedule"
)

// Backend holds the injected location. It is owned by the event loop.
type Backend struct {
	scheduler schedule.Scheduler
	logger    *logger.Logger

	active   bool
	cb       provider.Callbacks
	interval uint
	repeat   schedule.Timer

	mocking bool
	pos     fix.Position
	vel     fix.Velocity
	acc     fix.Accuracy
}

// New returns a Backend repeating injected locations through scheduler.
func New(scheduler schedule.Scheduler, log *logger.Logger) *Backend {
	return &Backend{
		scheduler: scheduler,
		logger:    logger.OrDiscard(log).With(slog.String("backend", "mock")),
	}
}

// Start implements provider.Backend.
func (b *Backend) Start(interval uint, cb provider.Callbacks) error {
	b.cb = cb
	b.interval = interval
	b.active = true
	if b.mocking {
		b.arm()
	}
	return nil
}

// Stop implements provider.Backend.
func (b *Backend) Stop() error {
	b.active = false
	b.cb = provider.Callbacks{}
	b.disarm()
	return nil
}

// SetInterval implements provider.IntervalSetter.
func (b *Backend) SetInterval(seconds uint) error {
	b.interval = seconds
	if b.repeat != nil {
		b.disarm()
		b.arm()
	}
	return nil
}

// LastPosition implements provider.Backend.
func (b *Backend) LastPosition() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if !b.mocking {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, provider.ErrNotAvailable
	}
	return b.pos, b.vel, b.acc, nil
}

// SetMockLocation implements provider.MockBackend. Coordinates outside the valid range are reported as
// StatusMockFail and leave the current injection untouched.
func (b *Backend) SetMockLocation(pos fix.Position, vel fix.Velocity, acc fix.Accuracy,
	status func(bool, fix.Status),
) error {
	if pos.Latitude < -90 || pos.Latitude > 90 || pos.Longitude < -180 || pos.Longitude > 180 {
		b.logger.Warn("rejected mock location", slog.Float64("lat", pos.Latitude),
			slog.Float64("lon", pos.Longitude))
		if status != nil {
			status(b.active, fix.StatusMockFail)
		}
		return nil
	}

	if pos.Timestamp == 0 {
		pos.Timestamp = b.scheduler.Now().Unix()
	}
	if vel.Timestamp == 0 {
		vel.Timestamp = pos.Timestamp
	}
	pos.Status = fix.StatusMock
	b.mocking = true
	b.pos, b.vel, b.acc = pos, vel, acc
	if !b.active {
		return nil
	}
	if b.cb.Location != nil {
		b.cb.Location(true, pos, vel, acc)
	}
	if b.repeat == nil {
		b.arm()
	}
	return nil
}

// ClearMockLocation implements provider.MockBackend.
func (b *Backend) ClearMockLocation(status func(bool, fix.Status)) error {
	b.mocking = false
	b.disarm()
	if b.active && status != nil {
		status(false, fix.StatusNoFix)
	}
	return nil
}

func (b *Backend) arm() {
	interval := time.Duration(max(b.interval, provider.DefaultUpdateInterval)) * time.Second
	timer, err := b.scheduler.Every(interval, b.emit)
	if err != nil {
		b.logger.Error("failed to schedule mock location", logger.Err(err))
		return
	}
	b.repeat = timer
}

func (b *Backend) disarm() {
	if b.repeat == nil {
		return
	}
	b.repeat.Stop()
	b.repeat = nil
}

// emit repeats the injected location with a fresh timestamp.
func (b *Backend) emit() {
	if !b.active || !b.mocking || b.cb.Location == nil {
		return
	}
	ts := b.scheduler.Now().Unix()
	b.pos.Timestamp, b.vel.Timestamp = ts, ts
	b.cb.Location(true, b.pos, b.vel, b.acc)
}
