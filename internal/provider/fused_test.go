// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/motion"
	"github.com/wneessen/locationd/internal/settings"
	"github.com/wneessen/locationd/internal/signalbus"
)

const balanced = time.Duration(DefaultBalancedInterval) * time.Second

type fakeAccelerometer struct {
	fn       func(motion.Sample)
	startErr error
	stops    int
}

func (f *fakeAccelerometer) Start(fn func(motion.Sample)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.fn = fn
	return nil
}

func (f *fakeAccelerometer) Stop() error {
	f.stops++
	f.fn = nil
	return nil
}

func TestParseFusedMode(t *testing.T) {
	for _, mode := range []FusedMode{FusedHigh, FusedBalanced, FusedNoPower} {
		got, err := ParseFusedMode(mode.String())
		if err != nil || got != mode {
			t.Errorf("expected %s, got %s (%v)", mode, got, err)
		}
	}
	if _, err := ParseFusedMode("turbo"); !errors.Is(err, ErrParameterInvalid) {
		t.Errorf("expected invalid parameter, got %v", err)
	}
}

func TestFused_High(t *testing.T) {
	opts, _, sched := testOptions()
	backend := &fakeBackend{}
	fused, err := NewFused(backend, FusedConfig{Mode: FusedHigh}, opts)
	if err != nil {
		t.Fatalf("failed to create fused provider: %s", err)
	}
	rec := record(fused.Bus())
	_ = fused.Start()
	backend.deliver(100, 1, 1)
	backend.deliver(101, 1, 1)
	if backend.starts != 1 || backend.stops != 0 || sched.Pending() != 0 {
		t.Error("expected the backend to stay powered")
	}
	if rec.updates(signalbus.UpdatePosition) != 2 {
		t.Errorf("expected 2 position updates, got %v", rec.events)
	}
	_ = fused.Stop()
	if backend.stops != 1 {
		t.Errorf("expected the backend to be stopped once, got %d", backend.stops)
	}
}

func TestFused_Balanced(t *testing.T) {
	t.Run("duty cycle", func(t *testing.T) {
		opts, _, sched := testOptions()
		backend := &fakeBackend{}
		fused, _ := NewFused(backend, FusedConfig{Mode: FusedBalanced}, opts)
		rec := record(fused.Bus())
		if err := fused.Start(); err != nil {
			t.Fatalf("failed to start fused provider: %s", err)
		}
		if backend.starts != 0 || sched.Pending() != 1 {
			t.Fatalf("expected an armed duty timer without a powered backend, got %d starts", backend.starts)
		}

		sched.Advance(balanced)
		if backend.starts != 1 {
			t.Fatalf("expected the first cycle on the first tick, got %d starts", backend.starts)
		}
		backend.deliver(100, 1, 1)
		if backend.stops != 1 {
			t.Fatal("expected the backend to power down after the fix")
		}
		if rec.updates(signalbus.UpdatePosition) != 1 {
			t.Errorf("expected the fix to be signaled, got %v", rec.events)
		}

		sched.Advance(balanced)
		if backend.starts != 2 {
			t.Fatalf("expected the next cycle after the balanced interval, got %d starts", backend.starts)
		}
		sched.Advance(balanced)
		if backend.starts != 2 {
			t.Errorf("expected a pending cycle not to be restarted, got %d starts", backend.starts)
		}

		_ = fused.Stop()
		if backend.stops != 2 || sched.Pending() != 0 {
			t.Errorf("expected a powered cycle to be stopped, got %d stops and %d timers", backend.stops,
				sched.Pending())
		}
	})
	t.Run("sleeping device backs off", func(t *testing.T) {
		opts, _, sched := testOptions()
		backend := &fakeBackend{}
		accel := &fakeAccelerometer{}
		fused, _ := NewFused(backend, FusedConfig{Mode: FusedBalanced, Accelerometer: accel}, opts)
		_ = fused.Start()
		sched.Advance(balanced)
		backend.deliver(100, 1, 1)
		if accel.fn == nil {
			t.Fatal("expected the accelerometer to be started")
		}

		at := testEpoch
		for range 3000 {
			accel.fn(motion.Sample{Z: motion.Gravity, At: at})
			at = at.Add(100 * time.Millisecond)
			if fused.classifier.Motion() == motion.Sleep {
				break
			}
		}
		if fused.classifier.Motion() != motion.Sleep {
			t.Fatalf("expected the device to sleep, got %s", fused.classifier.Motion())
		}

		sched.Advance(balanced)
		if backend.starts != 1 {
			t.Errorf("expected no cycle at the balanced interval while sleeping, got %d starts", backend.starts)
		}
		sched.Advance(SleepInterval*time.Second - balanced)
		if backend.starts != 2 {
			t.Errorf("expected a cycle after the sleep interval, got %d starts", backend.starts)
		}

		_ = fused.Stop()
		if accel.stops != 1 {
			t.Error("expected the accelerometer to be stopped")
		}
	})
	t.Run("missing accelerometer is tolerated", func(t *testing.T) {
		opts, _, _ := testOptions()
		accel := &fakeAccelerometer{startErr: errors.New("no such device")}
		fused, _ := NewFused(&fakeBackend{}, FusedConfig{Mode: FusedBalanced, Accelerometer: accel}, opts)
		if err := fused.Start(); err != nil {
			t.Errorf("expected start to succeed without accelerometer, got %s", err)
		}
		_ = fused.Stop()
		if accel.stops != 0 {
			t.Error("expected an unstarted accelerometer not to be stopped")
		}
	})
}

func TestFused_NoPower(t *testing.T) {
	opts, store, _ := testOptions()
	backend := &fakeBackend{last: position(100, 9, 9), lastVel: fix.Velocity{Timestamp: 100}}
	fused, _ := NewFused(backend, FusedConfig{Mode: FusedNoPower}, opts)
	rec := record(fused.Bus())
	if err := fused.Start(); err != nil {
		t.Fatalf("failed to start fused provider: %s", err)
	}
	if backend.starts != 0 {
		t.Error("expected the backend not to be powered")
	}
	if len(rec.events) != 1 || rec.events[0].Kind != signalbus.KindEnabled || rec.events[0].Status != fix.Status3DFix {
		t.Fatalf("expected an eager enabled event, got %v", rec.events)
	}

	_ = store.SetInt(settings.LastGPSTimestamp, 100)
	if rec.updates(signalbus.UpdatePosition) != 0 {
		t.Errorf("expected no republish on foreign fixes, got %v", rec.events)
	}
	_ = store.SetInt(settings.Restricted, 1)
	if rec.updates(signalbus.UpdatePosition) != 1 {
		t.Errorf("expected the last position to be republished on restriction change, got %v", rec.events)
	}

	_ = fused.Stop()
	if backend.stops != 0 || rec.count(signalbus.KindDisabled) != 1 {
		t.Error("expected a disabled event without powering down the backend")
	}
	if store.Watchers(settings.Restricted) != 0 {
		t.Error("expected the restriction subscription to be released")
	}
}

func TestFused_SetMode(t *testing.T) {
	opts, _, _ := testOptions()
	fused, _ := NewFused(&fakeBackend{}, FusedConfig{Mode: FusedHigh}, opts)
	_ = fused.Start()
	if err := fused.SetMode(FusedNoPower); err != nil {
		t.Fatalf("failed to set mode: %s", err)
	}
	if fused.Mode() != FusedHigh {
		t.Errorf("expected the running mode to be kept, got %s", fused.Mode())
	}
	_ = fused.Stop()
	_ = fused.Start()
	if fused.Mode() != FusedNoPower {
		t.Errorf("expected the new mode after restart, got %s", fused.Mode())
	}
	if err := fused.SetMode(FusedMode(42)); !errors.Is(err, ErrParameterInvalid) {
		t.Errorf("expected invalid parameter, got %v", err)
	}
	_ = fused.Stop()
}
