// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package signaling

import (
	"errors"
	"testing"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/geo"
	"github.com/wneessen/locationd/internal/signalbus"
)

// recorder collects emitted events.
type recorder struct {
	events []signalbus.Event
}

func (r *recorder) Emit(e signalbus.Event) {
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []signalbus.Kind {
	kinds := make([]signalbus.Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func (r *recorder) count(kind signalbus.Kind, update signalbus.UpdateType) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && (update == 0 || e.Update.Has(update)) {
			n++
		}
	}
	return n
}

func position(ts int64, lat, lon float64) fix.Position {
	return fix.Position{Timestamp: ts, Latitude: lat, Longitude: lon, Status: fix.Status3DFix}
}

func TestState_EnableTransition(t *testing.T) {
	t.Run("enabled twice emits once", func(t *testing.T) {
		rec := &recorder{}
		var s State
		if !s.EnableTransition(rec, true, fix.Status3DFix) {
			t.Error("expected first transition to emit")
		}
		if s.EnableTransition(rec, true, fix.Status3DFix) {
			t.Error("expected repeated enable to be a no-op")
		}
		if len(rec.events) != 1 || rec.events[0].Kind != signalbus.KindEnabled {
			t.Fatalf("unexpected events: %v", rec.kinds())
		}
		if rec.events[0].Status != fix.Status3DFix {
			t.Errorf("expected enabled status 3d-fix, got %s", rec.events[0].Status)
		}
	})
	t.Run("disable only after enable", func(t *testing.T) {
		rec := &recorder{}
		var s State
		s.EnableTransition(rec, false, fix.StatusNoFix)
		if len(rec.events) != 0 {
			t.Fatalf("expected no event for false to false, got %v", rec.kinds())
		}
		s.EnableTransition(rec, true, fix.Status2DFix)
		s.EnableTransition(rec, false, fix.Status2DFix)
		s.EnableTransition(rec, false, fix.Status2DFix)
		want := []signalbus.Kind{signalbus.KindEnabled, signalbus.KindDisabled}
		if got := rec.kinds(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("expected %v, got %v", want, got)
		}
		if rec.events[1].Status != fix.StatusNoFix {
			t.Errorf("expected disabled to carry no-fix, got %s", rec.events[1].Status)
		}
	})
}

func TestState_PositionVelocity(t *testing.T) {
	t.Run("zero timestamp is rejected", func(t *testing.T) {
		rec := &recorder{}
		var s State
		iv := Intervals{Position: 1, Velocity: 1, Location: 1}
		if got := s.PositionVelocity(rec, iv, fix.Position{}, fix.Velocity{}, fix.Accuracy{}); got != 0 {
			t.Errorf("expected no update bits, got %s", got)
		}
		if len(rec.events) != 0 || s.posTS != 0 || s.velTS != 0 || s.locTS != 0 {
			t.Error("expected no emission and no state mutation")
		}
	})
	t.Run("all intervals fire in one combined event", func(t *testing.T) {
		rec := &recorder{}
		var s State
		iv := Intervals{Position: 1, Velocity: 1, Location: 1}
		got := s.PositionVelocity(rec, iv, position(10, 1, 1), fix.Velocity{Timestamp: 10}, fix.Accuracy{})
		want := signalbus.UpdatePosition | signalbus.UpdateVelocity | signalbus.UpdateLocationChanged
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
		if len(rec.events) != 1 || rec.events[0].Update != want {
			t.Errorf("expected a single combined event, got %v", rec.events)
		}
	})
	t.Run("first sample fires on a fresh baseline", func(t *testing.T) {
		rec := &recorder{}
		var s State
		iv := Intervals{Position: 10, Velocity: 10}
		got := s.PositionVelocity(rec, iv, position(3, 1, 1), fix.Velocity{Timestamp: 3}, fix.Accuracy{})
		if want := signalbus.UpdatePosition | signalbus.UpdateVelocity; got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
		if s.PositionVelocity(rec, iv, position(4, 1, 1), fix.Velocity{Timestamp: 4}, fix.Accuracy{}) != 0 {
			t.Error("expected the second sample to wait for the interval")
		}
		if s.PositionVelocity(rec, Intervals{Velocity: 1}, position(5, 1, 1), fix.Velocity{},
			fix.Accuracy{}) != 0 {
			t.Error("expected a velocity without timestamp not to fire")
		}
	})
	t.Run("zero intervals never fire", func(t *testing.T) {
		rec := &recorder{}
		var s State
		s.PositionVelocity(rec, Intervals{}, position(10, 1, 1), fix.Velocity{Timestamp: 10}, fix.Accuracy{})
		if len(rec.events) != 0 {
			t.Errorf("expected no events, got %v", rec.kinds())
		}
	})
	t.Run("interval gating is monotone", func(t *testing.T) {
		rec := &recorder{}
		var s State
		iv := Intervals{Position: 3}
		var fired []int64
		for ts := int64(100); ts <= 110; ts++ {
			if s.PositionVelocity(rec, iv, position(ts, 1, 1), fix.Velocity{}, fix.Accuracy{}) != 0 {
				fired = append(fired, ts)
			}
		}
		want := []int64{100, 103, 106, 109}
		if len(fired) != len(want) {
			t.Fatalf("expected fires at %v, got %v", want, fired)
		}
		for i := range want {
			if fired[i] != want[i] {
				t.Errorf("expected fires at %v, got %v", want, fired)
			}
		}
	})
	t.Run("shrinking the interval shortens the next wait only", func(t *testing.T) {
		rec := &recorder{}
		var s State
		s.PositionVelocity(rec, Intervals{Position: 10}, position(100, 1, 1), fix.Velocity{}, fix.Accuracy{})
		if s.PositionVelocity(rec, Intervals{Position: 2}, position(101, 1, 1), fix.Velocity{},
			fix.Accuracy{}) != 0 {
			t.Error("expected no fire one second after the last emission")
		}
		if s.PositionVelocity(rec, Intervals{Position: 2}, position(102, 1, 1), fix.Velocity{},
			fix.Accuracy{}) == 0 {
			t.Error("expected fire once the new interval elapsed")
		}
	})
	t.Run("velocity uses its own timestamp", func(t *testing.T) {
		rec := &recorder{}
		var s State
		iv := Intervals{Velocity: 5}
		s.PositionVelocity(rec, iv, position(100, 1, 1), fix.Velocity{Timestamp: 50}, fix.Accuracy{})
		got := s.PositionVelocity(rec, iv, position(200, 1, 1), fix.Velocity{Timestamp: 52}, fix.Accuracy{})
		if got != 0 {
			t.Errorf("expected velocity gating on velocity timestamps, got %s", got)
		}
	})
}

func TestState_DistanceGated(t *testing.T) {
	t.Run("strictly greater than the minimum distance", func(t *testing.T) {
		rec := &recorder{}
		var s State
		iv := Intervals{MinDistance: 100}
		origin := geo.Point{Lat: 37.5, Lon: 127.0}
		near := geo.Offset(origin, 0, 50)
		far := geo.Offset(origin, 0, 150)

		if !s.DistanceGated(rec, true, iv, position(1, origin.Lat, origin.Lon), fix.Velocity{}, fix.Accuracy{}) {
			t.Fatal("expected first sample to emit")
		}
		if s.DistanceGated(rec, true, iv, position(2, origin.Lat, origin.Lon), fix.Velocity{}, fix.Accuracy{}) {
			t.Error("expected the same position not to emit again")
		}
		if s.DistanceGated(rec, true, iv, position(3, near.Lat, near.Lon), fix.Velocity{}, fix.Accuracy{}) {
			t.Error("expected a 50m move not to emit")
		}
		if !s.DistanceGated(rec, true, iv, position(4, far.Lat, far.Lon), fix.Velocity{}, fix.Accuracy{}) {
			t.Error("expected a 150m move to emit")
		}
		if n := rec.count(signalbus.KindUpdated, signalbus.UpdateDistance); n != 2 {
			t.Errorf("expected 2 distance updates, got %d", n)
		}
	})
	t.Run("minimum interval forces an update", func(t *testing.T) {
		rec := &recorder{}
		var s State
		iv := Intervals{MinInterval: 5, MinDistance: 1000}
		s.DistanceGated(rec, true, iv, position(10, 1, 1), fix.Velocity{}, fix.Accuracy{})
		if s.DistanceGated(rec, true, iv, position(14, 1, 1), fix.Velocity{}, fix.Accuracy{}) {
			t.Error("expected no update before the minimum interval")
		}
		if !s.DistanceGated(rec, true, iv, position(15, 1, 1), fix.Velocity{}, fix.Accuracy{}) {
			t.Error("expected update after the minimum interval")
		}
	})
	t.Run("enable transition is emitted first", func(t *testing.T) {
		rec := &recorder{}
		var s State
		s.DistanceGated(rec, true, Intervals{MinDistance: 1}, position(1, 1, 1), fix.Velocity{}, fix.Accuracy{})
		got := rec.kinds()
		if len(got) != 2 || got[0] != signalbus.KindEnabled || got[1] != signalbus.KindUpdated {
			t.Errorf("expected enabled before updated, got %v", got)
		}
	})
	t.Run("zero timestamp is rejected", func(t *testing.T) {
		rec := &recorder{}
		var s State
		if s.DistanceGated(rec, true, Intervals{MinDistance: 1}, fix.Position{}, fix.Velocity{}, fix.Accuracy{}) {
			t.Error("expected zero timestamp to be rejected")
		}
		if len(rec.events) != 0 || s.Enabled() || s.distPosition.IsSet() {
			t.Error("expected no emission and no state mutation")
		}
	})
}

func TestState_Location(t *testing.T) {
	t.Run("snapshots are replaced and enabled precedes updated", func(t *testing.T) {
		rec := &recorder{}
		var s State
		pos := position(5, 1, 2)
		s.Location(rec, true, Intervals{Position: 1}, pos, fix.Velocity{Timestamp: 5, Speed: 3},
			fix.Accuracy{Level: fix.LevelDetailed})
		got := rec.kinds()
		if len(got) != 2 || got[0] != signalbus.KindEnabled || got[1] != signalbus.KindUpdated {
			t.Errorf("expected enabled then updated, got %v", got)
		}
		if p, ok := s.Position.Get(); !ok || p != pos {
			t.Errorf("expected cached position %v, got %v", pos, p)
		}
		if s.Velocity.Value().Speed != 3 || s.Accuracy.Value().Level != fix.LevelDetailed {
			t.Error("expected velocity and accuracy to be cached")
		}
	})
	t.Run("zero timestamp leaves previous snapshot untouched", func(t *testing.T) {
		rec := &recorder{}
		var s State
		pos := position(5, 1, 2)
		s.Location(rec, true, Intervals{Position: 1}, pos, fix.Velocity{}, fix.Accuracy{})
		events := len(rec.events)
		s.Location(rec, true, Intervals{Position: 1}, fix.Position{Latitude: 9}, fix.Velocity{}, fix.Accuracy{})
		if len(rec.events) != events {
			t.Error("expected no events for an invalid sample")
		}
		if s.Position.Value() != pos {
			t.Error("expected cached position to be unchanged")
		}
	})
	t.Run("reset clears snapshots and timestamps", func(t *testing.T) {
		rec := &recorder{}
		var s State
		s.Location(rec, true, Intervals{Position: 10}, position(5, 1, 2), fix.Velocity{}, fix.Accuracy{})
		s.Reset()
		if s.Position.IsSet() || s.posTS != 0 {
			t.Error("expected reset to clear cached state")
		}
		if s.PositionVelocity(rec, Intervals{Position: 10}, position(6, 1, 2), fix.Velocity{},
			fix.Accuracy{}) == 0 {
			t.Error("expected the first sample after reset to emit")
		}
	})
}

func TestState_SatelliteUpdate(t *testing.T) {
	t.Run("snapshot is always replaced", func(t *testing.T) {
		rec := &recorder{}
		var s State
		s.SatelliteUpdate(rec, 1, false, fix.Satellite{Timestamp: 3, InView: 7})
		if len(rec.events) != 0 {
			t.Error("expected no event with emit disabled")
		}
		if s.Satellite.Value().InView != 7 {
			t.Error("expected satellite snapshot to be cached")
		}
	})
	t.Run("emission is interval gated", func(t *testing.T) {
		rec := &recorder{}
		var s State
		for ts := int64(10); ts < 16; ts++ {
			s.SatelliteUpdate(rec, 2, true, fix.Satellite{Timestamp: ts})
		}
		if n := rec.count(signalbus.KindUpdated, signalbus.UpdateSatellite); n != 3 {
			t.Errorf("expected 3 satellite updates, got %d", n)
		}
	})
	t.Run("zero timestamp is rejected", func(t *testing.T) {
		rec := &recorder{}
		var s State
		s.SatelliteUpdate(rec, 0, true, fix.Satellite{InView: 4})
		if len(rec.events) != 0 || s.Satellite.IsSet() {
			t.Error("expected zero timestamp to be ignored")
		}
	})
}

func TestFences(t *testing.T) {
	center := geo.Point{Lat: 0, Lon: 0}
	circle, err := geo.NewCircle(center, 100)
	if err != nil {
		t.Fatalf("failed to create circle: %s", err)
	}
	outside := geo.Offset(center, 0, 1000)

	t.Run("zone transitions are edge triggered", func(t *testing.T) {
		rec := &recorder{}
		var s State
		if err := s.Fences().Add(circle); err != nil {
			t.Fatalf("failed to add boundary: %s", err)
		}
		iv := Intervals{}
		s.PositionVelocity(rec, iv, position(1, center.Lat, center.Lon), fix.Velocity{}, fix.Accuracy{})
		s.PositionVelocity(rec, iv, position(2, center.Lat, center.Lon), fix.Velocity{}, fix.Accuracy{})
		s.PositionVelocity(rec, iv, position(3, outside.Lat, outside.Lon), fix.Velocity{}, fix.Accuracy{})
		s.PositionVelocity(rec, iv, position(4, outside.Lat, outside.Lon), fix.Velocity{}, fix.Accuracy{})
		got := rec.kinds()
		if len(got) != 2 || got[0] != signalbus.KindZoneIn || got[1] != signalbus.KindZoneOut {
			t.Errorf("expected zone-in then zone-out, got %v", got)
		}
		if !rec.events[0].Boundary.Equal(circle) {
			t.Error("expected zone event to carry the boundary")
		}
	})
	t.Run("first scan outside emits zone-out", func(t *testing.T) {
		rec := &recorder{}
		var f Fences
		_ = f.Add(circle)
		f.Scan(rec, position(1, outside.Lat, outside.Lon), fix.Accuracy{})
		if len(rec.events) != 1 || rec.events[0].Kind != signalbus.KindZoneOut {
			t.Errorf("expected a single zone-out, got %v", rec.kinds())
		}
		if f.List()[0].Status != ZoneOut {
			t.Errorf("expected zone status out, got %s", f.List()[0].Status)
		}
	})
	t.Run("boundaries are tracked independently", func(t *testing.T) {
		rec := &recorder{}
		var f Fences
		far, _ := geo.NewCircle(outside, 100)
		_ = f.Add(circle)
		_ = f.Add(far)
		f.Scan(rec, position(1, center.Lat, center.Lon), fix.Accuracy{})
		f.Scan(rec, position(2, outside.Lat, outside.Lon), fix.Accuracy{})
		if n := rec.count(signalbus.KindZoneIn, 0); n != 2 {
			t.Errorf("expected 2 zone-in events, got %d", n)
		}
		if n := rec.count(signalbus.KindZoneOut, 0); n != 2 {
			t.Errorf("expected 2 zone-out events, got %d", n)
		}
	})
	t.Run("duplicates and unknown boundaries", func(t *testing.T) {
		var f Fences
		if err := f.Add(circle); err != nil {
			t.Fatalf("failed to add boundary: %s", err)
		}
		same, _ := geo.NewCircle(center, 100)
		if err := f.Add(same); !errors.Is(err, ErrDuplicateBoundary) {
			t.Errorf("expected ErrDuplicateBoundary, got %v", err)
		}
		if err := f.Remove(same); err != nil {
			t.Errorf("failed to remove boundary: %s", err)
		}
		if err := f.Remove(same); !errors.Is(err, ErrUnknownBoundary) {
			t.Errorf("expected ErrUnknownBoundary, got %v", err)
		}
		if f.Len() != 0 {
			t.Errorf("expected empty list, got %d", f.Len())
		}
	})
	t.Run("reset clears zone status", func(t *testing.T) {
		rec := &recorder{}
		var s State
		_ = s.Fences().Add(circle)
		s.Fences().Scan(rec, position(1, center.Lat, center.Lon), fix.Accuracy{})
		s.Reset()
		if s.Fences().List()[0].Status != ZoneNone {
			t.Error("expected zone status to be reset")
		}
		if s.Fences().Len() != 1 {
			t.Error("expected boundaries to survive a reset")
		}
	})
}
