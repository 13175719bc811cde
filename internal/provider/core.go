// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wneessen/locationd/internal/batch"
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/geo"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/schedule"
	"github.com/wneessen/locationd/internal/settings"
	"github.com/wneessen/locationd/internal/signalbus"
	"github.com/wneessen/locationd/internal/signaling"
)

// core is the state and behaviour shared by all provider kinds. Kinds embed it and override what differs.
type core struct {
	method     Method
	bus        *signalbus.Bus
	logger     *logger.Logger
	settings   Settings
	scheduler  schedule.Scheduler
	settingKey settings.Key

	// vendorStart and vendorStop are the kind specific backend operations used by Start, Stop and the
	// setting change handler.
	vendorStart func() error
	vendorStop  func() error

	lifecycle sync.Mutex
	started   atomic.Bool

	signals       signaling.State
	intervals     signaling.Intervals
	batchInterval uint
	batchPeriod   uint
	extra         []Interval

	watches map[settings.Key]func()
	timers  map[string]schedule.Timer
	single  schedule.Timer
}

func (c *core) init(method Method, key settings.Key, opts Options) error {
	if opts.Settings == nil || opts.Scheduler == nil {
		return fmt.Errorf("%w: %s provider requires settings and a scheduler", ErrParameterInvalid, method)
	}
	c.method = method
	c.bus = signalbus.New(method.String())
	c.logger = logger.OrDiscard(opts.Logger).With(slog.String("provider", method.String()))
	c.settings = opts.Settings
	c.scheduler = opts.Scheduler
	c.settingKey = key
	c.intervals = signaling.Intervals{
		Position:  DefaultUpdateInterval,
		Velocity:  DefaultUpdateInterval,
		Satellite: DefaultUpdateInterval,
		Location:  DefaultUpdateInterval,
	}
	c.batchInterval = DefaultBatchInterval
	c.batchPeriod = DefaultBatchPeriod
	c.watches = make(map[settings.Key]func())
	c.timers = make(map[string]schedule.Timer)
	c.vendorStart = func() error { return nil }
	c.vendorStop = func() error { return nil }
	return nil
}

// Method implements Provider.
func (c *core) Method() Method {
	return c.method
}

// Bus implements Provider.
func (c *core) Bus() *signalbus.Bus {
	return c.bus
}

// Started implements Provider.
func (c *core) Started() bool {
	return c.started.Load()
}

// Start implements Provider.
func (c *core) Start() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.started.Load() {
		return nil
	}
	if !c.settingOn(c.settingKey) {
		return ErrSettingOff
	}

	c.started.Store(true)
	if err := c.vendorStart(); err != nil {
		c.started.Store(false)
		return err
	}
	c.watch(c.settingKey, c.onSetting)
	c.logger.Debug("provider started")
	return nil
}

// Stop implements Provider.
func (c *core) Stop() error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if !c.started.Load() {
		c.unwatchAll()
		return nil
	}

	c.started.Store(false)
	if err := c.vendorStop(); err != nil {
		c.logger.Error("failed to stop backend", logger.Err(err))
	}
	c.unwatchAll()
	c.halt()
	c.logger.Debug("provider stopped")
	return nil
}

// Close implements Provider.
func (c *core) Close() {
	_ = c.Stop()
}

// halt cancels every pending timer, signals Disabled if needed and clears all cached samples. The caller
// holds the lifecycle lock.
func (c *core) halt() {
	c.cancelSingle()
	for name, timer := range c.timers {
		timer.Stop()
		delete(c.timers, name)
	}
	c.signals.EnableTransition(c.bus, false, fix.StatusNoFix)
	c.signals.Reset()
}

// onSetting follows the provider's enable setting: a disabled setting stops a running provider while
// keeping its subscriptions, an enabled setting restarts it. Failures have no caller and are only logged.
func (c *core) onSetting(key settings.Key, value int) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	switch {
	case value == 0 && c.started.Load():
		c.logger.Debug("provider stopped by setting", slog.String("key", string(key)))
		c.started.Store(false)
		if err := c.vendorStop(); err != nil {
			c.logger.Error("failed to stop backend", logger.Err(err))
		}
		c.halt()
	case value != 0 && !c.started.Load():
		c.logger.Debug("provider resumed by setting", slog.String("key", string(key)))
		c.started.Store(true)
		if err := c.vendorStart(); err != nil {
			c.started.Store(false)
			c.logger.Error("failed to restart backend", logger.Err(err))
		}
	}
}

// settingOn reports whether key is enabled. Unreadable settings count as disabled.
func (c *core) settingOn(key settings.Key) bool {
	on, err := c.settings.Bool(key)
	if err != nil {
		c.logger.Warn("failed to read setting", slog.String("key", string(key)), logger.Err(err))
		return false
	}
	return on
}

// watch subscribes fn to key once. Registration failures are logged; the provider keeps running without
// change detection.
func (c *core) watch(key settings.Key, fn settings.Handler) {
	if _, ok := c.watches[key]; ok {
		return
	}
	cancel, err := c.settings.Watch(key, fn)
	if err != nil {
		c.logger.Warn("failed to watch setting", slog.String("key", string(key)), logger.Err(err))
		return
	}
	c.watches[key] = cancel
}

func (c *core) unwatchAll() {
	for key, cancel := range c.watches {
		cancel()
		delete(c.watches, key)
	}
}

func (c *core) setTimer(name string, timer schedule.Timer) {
	c.stopTimer(name)
	c.timers[name] = timer
}

func (c *core) stopTimer(name string) {
	if timer, ok := c.timers[name]; ok {
		timer.Stop()
		delete(c.timers, name)
	}
}

// readable guards the cached sample getters.
func (c *core) readable() error {
	if !c.settingOn(c.settingKey) {
		return ErrSettingOff
	}
	if !c.started.Load() {
		return fmt.Errorf("%w: %s provider is not started", ErrNotAvailable, c.method)
	}
	return nil
}

func (c *core) accuracy() fix.Accuracy {
	if acc, ok := c.signals.Accuracy.Get(); ok {
		return acc
	}
	return fix.NoAccuracy
}

// Position implements Provider.
func (c *core) Position() (fix.Position, fix.Accuracy, error) {
	if err := c.readable(); err != nil {
		return fix.Position{}, fix.NoAccuracy, err
	}
	pos, ok := c.signals.Position.Get()
	if !ok {
		return fix.Position{}, fix.NoAccuracy, ErrNotAvailable
	}
	return pos, c.accuracy(), nil
}

// PositionVelocity implements Provider.
func (c *core) PositionVelocity() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if err := c.readable(); err != nil {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, err
	}
	pos, okPos := c.signals.Position.Get()
	vel, okVel := c.signals.Velocity.Get()
	if !okPos || !okVel {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, ErrNotAvailable
	}
	return pos, vel, c.accuracy(), nil
}

// Velocity implements Provider.
func (c *core) Velocity() (fix.Velocity, fix.Accuracy, error) {
	if err := c.readable(); err != nil {
		return fix.Velocity{}, fix.NoAccuracy, err
	}
	vel, ok := c.signals.Velocity.Get()
	if !ok {
		return fix.Velocity{}, fix.NoAccuracy, ErrNotAvailable
	}
	return vel, c.accuracy(), nil
}

// lastFrom queries a backend for its last known sample, independent of the started state.
func (c *core) lastFrom(backend Backend) (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if !c.settingOn(c.settingKey) {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, ErrSettingOff
	}
	if backend == nil {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, ErrNotAvailable
	}
	return backend.LastPosition()
}

// LastPosition implements Provider.
func (c *core) LastPosition() (fix.Position, fix.Accuracy, error) {
	return fix.Position{}, fix.NoAccuracy, ErrNotSupported
}

// LastPositionVelocity implements Provider.
func (c *core) LastPositionVelocity() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, ErrNotSupported
}

// LastVelocity implements Provider.
func (c *core) LastVelocity() (fix.Velocity, fix.Accuracy, error) {
	return fix.Velocity{}, fix.NoAccuracy, ErrNotSupported
}

// Satellite implements Provider.
func (c *core) Satellite() (fix.Satellite, error) {
	return fix.Satellite{}, ErrNotSupported
}

// LastSatellite implements Provider.
func (c *core) LastSatellite() (fix.Satellite, error) {
	return fix.Satellite{}, ErrNotSupported
}

// NMEA implements Provider.
func (c *core) NMEA() (string, error) {
	return "", ErrNotSupported
}

// StartBatch implements Provider.
func (c *core) StartBatch() error {
	return ErrNotSupported
}

// StopBatch implements Provider.
func (c *core) StopBatch() error {
	return ErrNotSupported
}

// Batch implements Provider.
func (c *core) Batch() (*batch.Batch, error) {
	return nil, ErrNotSupported
}

// SetOption implements Provider.
func (c *core) SetOption(string) error {
	return ErrNotSupported
}

// SetMockLocation implements Provider.
func (c *core) SetMockLocation(fix.Position, fix.Velocity, fix.Accuracy) error {
	return ErrNotSupported
}

// ClearMockLocation implements Provider.
func (c *core) ClearMockLocation() error {
	return ErrNotSupported
}

// RequestSingleLocation implements Provider.
func (c *core) RequestSingleLocation(time.Duration) error {
	return ErrNotSupported
}

func (c *core) supports(which Interval) bool {
	switch which {
	case IntervalPosition, IntervalVelocity, IntervalLocation, IntervalMin:
		return true
	}
	for _, i := range c.extra {
		if i == which {
			return true
		}
	}
	return false
}

// Interval implements Provider.
func (c *core) Interval(which Interval) (uint, error) {
	if !c.supports(which) {
		return 0, fmt.Errorf("%w: %s interval on %s provider", ErrNotSupported, which, c.method)
	}
	switch which {
	case IntervalPosition:
		return c.intervals.Position, nil
	case IntervalVelocity:
		return c.intervals.Velocity, nil
	case IntervalSatellite:
		return c.intervals.Satellite, nil
	case IntervalLocation:
		return c.intervals.Location, nil
	case IntervalBatch:
		return c.batchInterval, nil
	case IntervalBatchPeriod:
		return c.batchPeriod, nil
	default:
		return c.intervals.MinInterval, nil
	}
}

// SetInterval implements Provider.
func (c *core) SetInterval(which Interval, seconds uint) error {
	if !c.supports(which) {
		return fmt.Errorf("%w: %s interval on %s provider", ErrNotSupported, which, c.method)
	}
	value := Clamp(which, seconds)
	switch which {
	case IntervalPosition:
		c.intervals.Position = value
	case IntervalVelocity:
		c.intervals.Velocity = value
	case IntervalSatellite:
		c.intervals.Satellite = value
	case IntervalLocation:
		c.intervals.Location = value
	case IntervalBatch:
		c.batchInterval = value
	case IntervalBatchPeriod:
		c.batchPeriod = value
	default:
		c.intervals.MinInterval = value
	}
	c.logger.Debug("interval changed", slog.String("interval", which.String()), slog.Uint64("seconds", uint64(value)))
	return nil
}

// MinDistance implements Provider.
func (c *core) MinDistance() float64 {
	return c.intervals.MinDistance
}

// SetMinDistance implements Provider.
func (c *core) SetMinDistance(meters float64) error {
	c.intervals.MinDistance = ClampDistance(meters)
	return nil
}

// AddBoundary implements Provider.
func (c *core) AddBoundary(b geo.Boundary) error {
	return c.signals.Fences().Add(b)
}

// RemoveBoundary implements Provider.
func (c *core) RemoveBoundary(b geo.Boundary) error {
	return c.signals.Fences().Remove(b)
}

// Boundaries implements Provider.
func (c *core) Boundaries() []signaling.Fence {
	return c.signals.Fences().List()
}

// onStatus handles a backend status report. Only the enabled to disabled transition is acted upon.
func (c *core) onStatus(enabled bool, status fix.Status) {
	if c.signals.Enabled() && !enabled {
		c.started.Store(false)
		c.signals.EnableTransition(c.bus, false, status)
	}
}

// onLocation runs distance gated signaling, if configured, followed by interval gated signaling. Samples
// arriving after the provider stopped are dropped.
func (c *core) onLocation(enabled bool, pos fix.Position, vel fix.Velocity, acc fix.Accuracy) {
	if !c.started.Load() {
		return
	}
	if c.intervals.DistanceBased() {
		c.signals.DistanceGated(c.bus, enabled, c.intervals, pos, vel, acc)
	}
	c.signals.Location(c.bus, enabled, c.intervals, pos, vel, acc)
}

func (c *core) onSatellite(_ bool, sat fix.Satellite) {
	if !c.started.Load() {
		return
	}
	c.signals.SatelliteUpdate(c.bus, c.intervals.Satellite, true, sat)
}

// requestSingle starts the backend through startSingle and arms the timeout. Whichever of the single shot
// callback and the timeout runs first reports the result and stops the provider.
func (c *core) requestSingle(timeout time.Duration, startSingle func() error) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrParameterInvalid)
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.started.Load() {
		return nil
	}
	if !c.settingOn(c.settingKey) {
		return ErrSettingOff
	}

	c.started.Store(true)
	if err := startSingle(); err != nil {
		c.started.Store(false)
		return err
	}
	c.cancelSingle()
	timer, err := c.scheduler.AfterFunc(timeout, c.onSingleTimeout)
	if err != nil {
		c.started.Store(false)
		if stopErr := c.vendorStop(); stopErr != nil {
			c.logger.Error("failed to stop backend", logger.Err(stopErr))
		}
		return fmt.Errorf("failed to arm single location timeout: %w", err)
	}
	c.single = timer
	return nil
}

func (c *core) onSingleLocation(_ bool, pos fix.Position, vel fix.Velocity, acc fix.Accuracy) {
	if c.single == nil || !pos.Valid() {
		return
	}
	c.cancelSingle()
	c.bus.Emit(signalbus.Event{Kind: signalbus.KindLocationUpdated, Position: pos, Velocity: vel, Accuracy: acc})
	_ = c.Stop()
}

func (c *core) onSingleTimeout() {
	if c.single == nil {
		return
	}
	c.single = nil
	pos, vel, acc := fix.Placeholder()
	c.bus.Emit(signalbus.Event{Kind: signalbus.KindLocationUpdated, Err: ErrNotAvailable, Position: pos,
		Velocity: vel, Accuracy: acc})
	_ = c.Stop()
}

func (c *core) cancelSingle() {
	if c.single != nil {
		c.single.Stop()
		c.single = nil
	}
}
