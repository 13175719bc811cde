// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/motion"
	"github.com/wneessen/locationd/internal/settings"
)

// FusedMode is the power profile of a Fused provider.
type FusedMode int

const (
	// FusedHigh keeps the backend running.
	FusedHigh FusedMode = iota
	// FusedBalanced powers the backend once per balanced interval until a fix arrives.
	FusedBalanced
	// FusedNoPower never powers the backend and republishes its last position when the restriction changes.
	FusedNoPower
)

// SleepInterval is the duty cycle period in seconds while the device is classified as sleeping.
const SleepInterval = 120

// String implements fmt.Stringer.
func (m FusedMode) String() string {
	switch m {
	case FusedHigh:
		return "high"
	case FusedBalanced:
		return "balanced"
	case FusedNoPower:
		return "no-power"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseFusedMode converts a mode name into a FusedMode.
func ParseFusedMode(name string) (FusedMode, error) {
	for _, m := range []FusedMode{FusedHigh, FusedBalanced, FusedNoPower} {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return FusedHigh, fmt.Errorf("%w: unknown fused mode %q", ErrParameterInvalid, name)
}

// FusedConfig configures a Fused provider.
type FusedConfig struct {
	Mode FusedMode
	// BalancedInterval is the duty cycle period in seconds. Zero selects DefaultBalancedInterval.
	BalancedInterval uint
	// Accelerometer is optional. Without one, FusedBalanced never backs off to SleepInterval.
	Accelerometer Accelerometer
}

// Fused is a power aware provider on top of a GPS backend.
type Fused struct {
	backed

	mode     FusedMode
	nextMode FusedMode
	balanced time.Duration

	accel      Accelerometer
	classifier *motion.Classifier
	duty       bool
}

// NewFused returns a Fused provider driven by backend.
func NewFused(backend Backend, config FusedConfig, opts Options) (*Fused, error) {
	if config.Mode < FusedHigh || config.Mode > FusedNoPower {
		return nil, fmt.Errorf("%w: unknown fused mode %d", ErrParameterInvalid, config.Mode)
	}
	interval := config.BalancedInterval
	if interval == 0 {
		interval = DefaultBalancedInterval
	}

	f := &Fused{
		mode:     config.Mode,
		nextMode: config.Mode,
		balanced: time.Duration(interval) * time.Second,
		accel:    config.Accelerometer,
	}
	if err := f.init(MethodFused, settings.UseMyLocation, backend, opts); err != nil {
		return nil, err
	}
	f.vendorStart = f.startFused
	f.vendorStop = f.stopFused
	f.status = f.onFusedStatus
	f.location = f.onFusedLocation
	return f, nil
}

// Mode returns the mode of the current or last run.
func (f *Fused) Mode() FusedMode {
	return f.mode
}

// SetMode selects the mode used from the next start on.
func (f *Fused) SetMode(mode FusedMode) error {
	if mode < FusedHigh || mode > FusedNoPower {
		return fmt.Errorf("%w: unknown fused mode %d", ErrParameterInvalid, mode)
	}
	f.nextMode = mode
	return nil
}

// SetOption implements Provider. Options are accepted and ignored.
func (f *Fused) SetOption(option string) error {
	f.logger.Debug("ignoring fused option", slog.String("option", option))
	return nil
}

func (f *Fused) startFused() error {
	f.mode = f.nextMode
	f.logger.Debug("starting fused provider", slog.String("mode", f.mode.String()))

	switch f.mode {
	case FusedNoPower:
		f.watch(settings.Restricted, f.republish)
		f.signals.EnableTransition(f.bus, true, fix.Status3DFix)
		return nil
	case FusedBalanced:
		// The backend is first powered by the initial duty tick.
		f.duty = false
		if err := f.armDuty(f.balanced); err != nil {
			return err
		}
		f.startMotion()
		return nil
	default:
		return f.startBackend()
	}
}

func (f *Fused) stopFused() error {
	f.stopMotion()
	powered := f.mode == FusedHigh || (f.mode == FusedBalanced && f.duty)
	f.duty = false
	if !powered {
		return nil
	}
	return f.stopBackend()
}

func (f *Fused) armDuty(period time.Duration) error {
	timer, err := f.scheduler.Every(period, f.wake)
	if err != nil {
		return fmt.Errorf("failed to arm duty cycle timer: %w", err)
	}
	f.setTimer("duty", timer)
	return nil
}

// wake powers the backend for the next duty cycle. A cycle still waiting for its fix is left alone.
func (f *Fused) wake() {
	if !f.started.Load() || f.duty {
		return
	}
	if err := f.backend.Start(f.intervals.Position, f.callbacks()); err != nil {
		f.logger.Error("failed to power backend for duty cycle", logger.Err(err))
		return
	}
	f.duty = true
}

func (f *Fused) onFusedStatus(enabled bool, status fix.Status) {
	if f.mode == FusedBalanced && !f.duty && !enabled {
		return
	}
	f.onBackendStatus(enabled, status)
}

func (f *Fused) onFusedLocation(enabled bool, pos fix.Position, vel fix.Velocity, acc fix.Accuracy) {
	f.onLocation(enabled, pos, vel, acc)
	if f.mode != FusedBalanced || !f.duty || !pos.Valid() || !f.started.Load() {
		return
	}
	f.duty = false
	if err := f.backend.Stop(); err != nil {
		f.logger.Error("failed to power down backend", logger.Err(err))
	}
}

func (f *Fused) republish(key settings.Key, _ int) {
	if !f.started.Load() {
		return
	}
	pos, vel, acc, err := f.backend.LastPosition()
	if err != nil {
		f.logger.Debug("no position to republish", slog.String("key", string(key)), logger.Err(err))
		return
	}
	f.onLocation(true, pos, vel, acc)
}

func (f *Fused) startMotion() {
	if f.accel == nil {
		return
	}
	classifier := motion.New(motion.DefaultConfig(), f.onMotion)
	if err := f.accel.Start(func(s motion.Sample) { classifier.Process(s) }); err != nil {
		f.logger.Debug("accelerometer unavailable, duty cycle stays fixed", logger.Err(err))
		return
	}
	f.classifier = classifier
}

func (f *Fused) stopMotion() {
	if f.classifier == nil {
		return
	}
	f.classifier = nil
	if err := f.accel.Stop(); err != nil {
		f.logger.Warn("failed to stop accelerometer", logger.Err(err))
	}
}

// onMotion stretches the duty cycle while the device sleeps and restores it on movement.
func (f *Fused) onMotion(prev, next motion.Motion) {
	f.logger.Debug("motion changed", slog.String("from", prev.String()), slog.String("to", next.String()))
	if !f.started.Load() {
		return
	}
	var err error
	switch {
	case next == motion.Sleep:
		err = f.armDuty(SleepInterval * time.Second)
	case next == motion.Movement && prev == motion.Sleep:
		err = f.armDuty(f.balanced)
	}
	if err != nil {
		f.logger.Error("failed to rearm duty cycle", logger.Err(err))
	}
}
