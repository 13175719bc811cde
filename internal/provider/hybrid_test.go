// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"errors"
	"testing"
	"time"

	"github.com/wneessen/locationd/internal/settings"
	"github.com/wneessen/locationd/internal/signalbus"
)

type hybridFixture struct {
	store          *settings.Store
	gpsB, wpsB     *fakeBackend
	gps            *GPS
	wps            *WPS
	hybrid         *Hybrid
	hybridRecorder *recorder
}

func newHybridFixture(t *testing.T) *hybridFixture {
	t.Helper()
	opts, store, _ := testOptions()
	f := &hybridFixture{store: store, gpsB: &fakeBackend{}, wpsB: &fakeBackend{}}
	var err error
	if f.gps, err = NewGPS(f.gpsB, opts); err != nil {
		t.Fatalf("failed to create gps provider: %s", err)
	}
	if f.wps, err = NewWPS(f.wpsB, opts); err != nil {
		t.Fatalf("failed to create wps provider: %s", err)
	}
	if f.hybrid, err = NewHybrid(f.gps, f.wps, opts); err != nil {
		t.Fatalf("failed to create hybrid provider: %s", err)
	}
	f.hybridRecorder = record(f.hybrid.Bus())
	t.Cleanup(f.hybrid.Close)
	return f
}

func TestHybrid_Start(t *testing.T) {
	t.Run("starts every child", func(t *testing.T) {
		f := newHybridFixture(t)
		if err := f.hybrid.Start(); err != nil {
			t.Fatalf("failed to start hybrid provider: %s", err)
		}
		if !f.gps.Started() || !f.wps.Started() {
			t.Error("expected both children to be started")
		}
		if f.hybrid.Current() != MethodGPS {
			t.Errorf("expected gps to be current, got %s", f.hybrid.Current())
		}
		_ = f.hybrid.Stop()
		if f.gps.Started() || f.wps.Started() {
			t.Error("expected both children to be stopped")
		}
	})
	t.Run("most specific error when every child fails", func(t *testing.T) {
		f := newHybridFixture(t)
		f.gpsB.startErr = ErrNetworkFailed
		_ = f.store.SetBool(settings.WPSEnabled, false)
		if err := f.hybrid.Start(); !errors.Is(err, ErrSettingOff) {
			t.Errorf("expected setting off, got %v", err)
		}
		if f.hybrid.Started() {
			t.Error("expected hybrid provider to be stopped")
		}
	})
	t.Run("one child is enough", func(t *testing.T) {
		f := newHybridFixture(t)
		_ = f.store.SetBool(settings.GPSEnabled, false)
		if err := f.hybrid.Start(); err != nil {
			t.Fatalf("expected start to succeed with wps only, got %s", err)
		}
		if f.hybrid.Current() != MethodWPS {
			t.Errorf("expected wps to be current, got %s", f.hybrid.Current())
		}
	})
	t.Run("no children", func(t *testing.T) {
		opts, _, _ := testOptions()
		hybrid, _ := NewHybrid(nil, nil, opts)
		if err := hybrid.Start(); !errors.Is(err, ErrNotAvailable) {
			t.Errorf("expected not available, got %v", err)
		}
	})
}

func TestHybrid_Arbitration(t *testing.T) {
	f := newHybridFixture(t)
	if err := f.hybrid.Start(); err != nil {
		t.Fatalf("failed to start hybrid provider: %s", err)
	}
	rec := f.hybridRecorder

	f.wpsB.deliver(100, 52.5, 13.4)
	if len(rec.events) != 0 {
		t.Fatalf("expected wps to lose against gps, got %v", rec.events)
	}

	f.gpsB.deliver(101, 52.6, 13.5)
	if rec.count(signalbus.KindEnabled) != 1 || rec.updates(signalbus.UpdatePosition) != 1 {
		t.Fatalf("expected the gps fix to be accepted, got %v", rec.events)
	}
	if f.wps.Started() {
		t.Error("expected wps to be stopped once gps delivers")
	}

	_ = f.store.SetInt(settings.GPSState, settings.StateSearching)
	f.gpsB.deliver(102, 52.6, 13.5)
	if !f.wps.Started() || f.wpsB.starts != 2 {
		t.Fatal("expected wps to be started while gps is searching")
	}
	if rec.updates(signalbus.UpdatePosition) != 1 {
		t.Error("expected searching gps samples not to be accepted")
	}

	f.wpsB.deliver(103, 52.7, 13.6)
	if f.hybrid.Current() != MethodWPS {
		t.Errorf("expected wps to take over, got %s", f.hybrid.Current())
	}
	if rec.updates(signalbus.UpdatePosition) != 2 {
		t.Errorf("expected the wps fix to be accepted, got %v", rec.events)
	}
	pos, _, err := f.hybrid.Position()
	if err != nil || pos.Timestamp != 103 {
		t.Errorf("expected the wps fix to be cached, got %+v (%v)", pos, err)
	}
}

func TestHybrid_GPSSettingFallback(t *testing.T) {
	f := newHybridFixture(t)
	_ = f.hybrid.Start()
	f.gpsB.deliver(100, 1, 1)
	if f.wps.Started() {
		t.Fatal("expected wps to be stopped")
	}
	_ = f.store.SetBool(settings.GPSEnabled, false)
	if f.gps.Started() || !f.wps.Started() {
		t.Error("expected the hybrid provider to fall back to wps")
	}
	if f.hybrid.Current() != MethodWPS {
		t.Errorf("expected wps to be current, got %s", f.hybrid.Current())
	}
}

func TestHybrid_LastPosition(t *testing.T) {
	tests := []struct {
		name    string
		gpsTS   int64
		wpsTS   int64
		gpsErr  error
		wantLat float64
	}{
		{"newer wps wins", 100, 200, nil, 2},
		{"equal timestamps prefer gps", 100, 100, nil, 1},
		{"older wps loses", 200, 100, nil, 1},
		{"gps unavailable", 0, 100, ErrNotAvailable, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newHybridFixture(t)
			f.gpsB.last, f.gpsB.lastErr = position(tc.gpsTS, 1, 1), tc.gpsErr
			f.wpsB.last = position(tc.wpsTS, 2, 2)
			pos, _, err := f.hybrid.LastPosition()
			if err != nil {
				t.Fatalf("failed to get last position: %s", err)
			}
			if pos.Latitude != tc.wantLat {
				t.Errorf("expected latitude %f, got %f", tc.wantLat, pos.Latitude)
			}
		})
	}
	t.Run("both unavailable", func(t *testing.T) {
		f := newHybridFixture(t)
		f.gpsB.lastErr, f.wpsB.lastErr = ErrNotAvailable, ErrNotAvailable
		if _, _, err := f.hybrid.LastPosition(); !errors.Is(err, ErrNotAvailable) {
			t.Errorf("expected not available, got %v", err)
		}
	})
}

func TestHybrid_Intervals(t *testing.T) {
	f := newHybridFixture(t)
	if err := f.hybrid.SetInterval(IntervalSatellite, 10); err != nil {
		t.Fatalf("failed to set satellite interval: %s", err)
	}
	if got, _ := f.gps.Interval(IntervalSatellite); got != 10 {
		t.Errorf("expected gps satellite interval 10, got %d", got)
	}
	if err := f.hybrid.SetInterval(IntervalPosition, 5); err != nil {
		t.Fatalf("failed to set position interval: %s", err)
	}
	if got, _ := f.wps.Interval(IntervalPosition); got != 5 {
		t.Errorf("expected wps position interval 5, got %d", got)
	}
}

func TestHybrid_RequestSingleLocation(t *testing.T) {
	t.Run("single result is forwarded once", func(t *testing.T) {
		f := newHybridFixture(t)
		if err := f.hybrid.RequestSingleLocation(5 * time.Second); err != nil {
			t.Fatalf("failed to request single location: %s", err)
		}
		f.gpsB.deliver(100, 1, 1)
		if got := f.hybridRecorder.count(signalbus.KindLocationUpdated); got != 1 {
			t.Errorf("expected one forwarded location, got %d", got)
		}
		f.gps.Bus().Emit(signalbus.Event{Kind: signalbus.KindLocationUpdated, Position: position(101, 1, 1)})
		if got := f.hybridRecorder.count(signalbus.KindLocationUpdated); got != 1 {
			t.Errorf("expected later results not to be forwarded, got %d", got)
		}
	})
	t.Run("running child leaves nothing pending", func(t *testing.T) {
		f := newHybridFixture(t)
		if err := f.hybrid.Start(); err != nil {
			t.Fatalf("failed to start hybrid provider: %s", err)
		}
		if err := f.hybrid.RequestSingleLocation(5 * time.Second); err != nil {
			t.Fatalf("failed to request single location: %s", err)
		}
		if f.hybrid.singlePending {
			t.Error("expected no pending single request on a running child")
		}
		f.gps.Bus().Emit(signalbus.Event{Kind: signalbus.KindLocationUpdated, Position: position(101, 1, 1)})
		if got := f.hybridRecorder.count(signalbus.KindLocationUpdated); got != 0 {
			t.Errorf("expected an unrelated result not to be forwarded, got %d", got)
		}
		_ = f.hybrid.Stop()
	})
	t.Run("no children", func(t *testing.T) {
		opts, _, _ := testOptions()
		hybrid, _ := NewHybrid(nil, nil, opts)
		if err := hybrid.RequestSingleLocation(time.Second); !errors.Is(err, ErrNotAvailable) {
			t.Errorf("expected not available, got %v", err)
		}
	})
}
