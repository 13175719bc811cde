// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/settings"
	"github.com/wneessen/locationd/internal/signalbus"
)

// backed is a provider driven by a single vendor backend.
type backed struct {
	core
	backend Backend

	// stateKey is the connection state setting the backend maintains. Empty for backends without one.
	stateKey   settings.Key
	satellites bool
	searching  bool

	// status and location replace the default backend callbacks when set.
	status   func(enabled bool, status fix.Status)
	location func(enabled bool, pos fix.Position, vel fix.Velocity, acc fix.Accuracy)
}

func (b *backed) init(method Method, key settings.Key, backend Backend, opts Options) error {
	if backend == nil {
		return fmt.Errorf("%w: %s provider requires a backend", ErrParameterInvalid, method)
	}
	if err := b.core.init(method, key, opts); err != nil {
		return err
	}
	b.backend = backend
	b.vendorStart = b.startBackend
	b.vendorStop = b.stopBackend
	return nil
}

func (b *backed) callbacks() Callbacks {
	cb := Callbacks{Status: b.onBackendStatus, Location: b.onLocation}
	if b.status != nil {
		cb.Status = b.status
	}
	if b.location != nil {
		cb.Location = b.location
	}
	if b.satellites {
		cb.Satellite = b.onSatellite
	}
	return cb
}

func (b *backed) startBackend() error {
	if err := b.backend.Start(b.intervals.Position, b.callbacks()); err != nil {
		return fmt.Errorf("failed to start %s backend: %w", b.method, err)
	}
	if b.stateKey != "" {
		b.watch(b.stateKey, b.onState)
	}
	return nil
}

func (b *backed) stopBackend() error {
	b.searching = false
	if err := b.backend.Stop(); err != nil {
		return fmt.Errorf("failed to stop %s backend: %w", b.method, err)
	}
	return nil
}

func (b *backed) onBackendStatus(enabled bool, status fix.Status) {
	if enabled && !b.signals.Enabled() {
		b.stopSearching()
	}
	b.onStatus(enabled, status)
}

// onState follows the backend connection state. While searching, placeholder updates keep observers
// informed at the configured intervals.
func (b *backed) onState(_ settings.Key, value int) {
	if value == settings.StateSearching && b.started.Load() {
		b.startSearching()
		return
	}
	b.stopSearching()
}

func (b *backed) startSearching() {
	b.stopSearching()
	b.searching = true
	pos, vel := b.intervals.Position, b.intervals.Velocity
	if pos == vel {
		b.armSearching("searching", pos, signalbus.UpdatePosition|signalbus.UpdateVelocity)
		return
	}
	b.armSearching("searching-position", pos, signalbus.UpdatePosition)
	b.armSearching("searching-velocity", vel, signalbus.UpdateVelocity)
}

func (b *backed) armSearching(name string, interval uint, update signalbus.UpdateType) {
	if interval == 0 {
		return
	}
	timer, err := b.scheduler.Every(time.Duration(interval)*time.Second, func() { b.emitSearching(update) })
	if err != nil {
		b.logger.Error("failed to arm searching timer", slog.String("timer", name), logger.Err(err))
		return
	}
	b.setTimer(name, timer)
}

func (b *backed) stopSearching() {
	b.searching = false
	b.stopTimer("searching")
	b.stopTimer("searching-position")
	b.stopTimer("searching-velocity")
}

// emitSearching re-emits the cached sample, or a NO_FIX placeholder stamped with the current time if
// nothing is cached.
func (b *backed) emitSearching(update signalbus.UpdateType) {
	pos, okPos := b.signals.Position.Get()
	vel, okVel := b.signals.Velocity.Get()
	acc := b.accuracy()
	if !okPos || !okVel {
		pos, vel, acc = fix.Placeholder()
		now := b.scheduler.Now().Unix()
		pos.Timestamp, vel.Timestamp = now, now
	}
	b.bus.Emit(signalbus.Event{Kind: signalbus.KindUpdated, Update: update, Position: pos, Velocity: vel,
		Accuracy: acc})
}

// SetInterval implements Provider. A changed position interval is forwarded to a running backend.
func (b *backed) SetInterval(which Interval, seconds uint) error {
	if err := b.core.SetInterval(which, seconds); err != nil {
		return err
	}
	if which != IntervalPosition && which != IntervalVelocity {
		return nil
	}
	if b.searching {
		b.startSearching()
	}
	if which != IntervalPosition || !b.started.Load() {
		return nil
	}
	setter, ok := b.backend.(IntervalSetter)
	if !ok {
		return nil
	}
	if err := setter.SetInterval(b.intervals.Position); err != nil {
		return fmt.Errorf("failed to update %s backend interval: %w", b.method, err)
	}
	return nil
}

// SetOption implements Provider.
func (b *backed) SetOption(option string) error {
	setter, ok := b.backend.(OptionSetter)
	if !ok {
		return ErrNotAvailable
	}
	return setter.SetOption(option)
}

// RequestSingleLocation implements Provider.
func (b *backed) RequestSingleLocation(timeout time.Duration) error {
	return b.requestSingle(timeout, func() error {
		cb := Callbacks{Status: b.onStatus, Location: b.onSingleLocation}
		if err := b.backend.Start(b.intervals.Position, cb); err != nil {
			return fmt.Errorf("failed to start %s backend: %w", b.method, err)
		}
		return nil
	})
}

// LastPosition implements Provider.
func (b *backed) LastPosition() (fix.Position, fix.Accuracy, error) {
	pos, _, acc, err := b.lastFrom(b.backend)
	return pos, acc, err
}

// LastPositionVelocity implements Provider.
func (b *backed) LastPositionVelocity() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	return b.lastFrom(b.backend)
}

// LastVelocity implements Provider.
func (b *backed) LastVelocity() (fix.Velocity, fix.Accuracy, error) {
	_, vel, acc, err := b.lastFrom(b.backend)
	return vel, acc, err
}
