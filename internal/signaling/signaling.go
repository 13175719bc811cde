// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package signaling decides which events a new sample produces and keeps the "last emitted" bookkeeping
// every provider needs for that decision.
//
// Within one sample the enable transition is evaluated before any interval gated update, and updates are
// emitted before the boundary scan, so observers always see Enabled before the first Updated of a turn.
package signaling

import (
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/geo"
	"github.com/wneessen/locationd/internal/signalbus"
	"github.com/wneessen/locationd/internal/snapshot"
)

// Intervals holds the configured emission intervals in seconds and the minimum distance in meters.
// A zero interval disables the corresponding update.
type Intervals struct {
	Position    uint
	Velocity    uint
	Satellite   uint
	Location    uint
	MinInterval uint
	MinDistance float64
}

// DistanceBased reports whether distance gated updates are configured.
func (iv Intervals) DistanceBased() bool {
	return iv.MinInterval > 0 || iv.MinDistance > 0
}

// State is the mutable signaling state of one provider. It is not safe for concurrent use; providers touch
// it only from their event loop.
type State struct {
	enabled bool

	posTS, velTS, locTS, distTS, satTS int64

	Position  snapshot.Slot[fix.Position]
	Velocity  snapshot.Slot[fix.Velocity]
	Accuracy  snapshot.Slot[fix.Accuracy]
	Satellite snapshot.Slot[fix.Satellite]

	distPosition snapshot.Slot[fix.Position]

	fences Fences
}

// Enabled reports the last signaled enable state.
func (s *State) Enabled() bool {
	return s.enabled
}

// Fences returns the tracked boundary list.
func (s *State) Fences() *Fences {
	return &s.fences
}

// Reset clears every cached snapshot, timestamp and zone status so a restarted provider starts from a clean
// slate. The enable state and the tracked boundaries themselves are kept.
func (s *State) Reset() {
	s.posTS, s.velTS, s.locTS, s.distTS, s.satTS = 0, 0, 0, 0, 0
	s.Position.Reset()
	s.Velocity.Reset()
	s.Accuracy.Reset()
	s.Satellite.Reset()
	s.distPosition.Reset()
	s.fences.resetZones()
}

// EnableTransition emits Enabled on a false to true transition and Disabled on a true to false transition.
// It returns true if an event was emitted.
func (s *State) EnableTransition(e signalbus.Emitter, enabled bool, status fix.Status) bool {
	switch {
	case s.enabled && !enabled:
		s.enabled = false
		e.Emit(signalbus.Event{Kind: signalbus.KindDisabled, Status: fix.StatusNoFix})
		return true
	case !s.enabled && enabled:
		s.enabled = true
		e.Emit(signalbus.Event{Kind: signalbus.KindEnabled, Status: status})
		return true
	default:
		return false
	}
}

// PositionVelocity emits one combined Updated event for every interval that has elapsed since its last
// emission, then scans the tracked boundaries. The first sample after a reset always emits. Samples with
// a zero timestamp are ignored.
func (s *State) PositionVelocity(e signalbus.Emitter, iv Intervals, pos fix.Position, vel fix.Velocity,
	acc fix.Accuracy,
) signalbus.UpdateType {
	if !pos.Valid() {
		return 0
	}

	var update signalbus.UpdateType
	if iv.Position > 0 && elapsed(pos.Timestamp, s.posTS, iv.Position) {
		update |= signalbus.UpdatePosition
		s.posTS = pos.Timestamp
	}
	if iv.Velocity > 0 && vel.Timestamp > 0 && elapsed(vel.Timestamp, s.velTS, iv.Velocity) {
		update |= signalbus.UpdateVelocity
		s.velTS = vel.Timestamp
	}
	if iv.Location > 0 && elapsed(pos.Timestamp, s.locTS, iv.Location) {
		update |= signalbus.UpdateLocationChanged
		s.locTS = pos.Timestamp
	}
	if update != 0 {
		e.Emit(signalbus.Event{
			Kind:     signalbus.KindUpdated,
			Update:   update,
			Position: pos,
			Velocity: vel,
			Accuracy: acc,
		})
	}

	s.fences.scan(e, pos, acc)
	return update
}

// DistanceGated applies the enable transition and emits a distance Updated event if either the minimum
// interval has elapsed or the position moved strictly more than the minimum distance since the last
// distance update. The first valid sample after a reset always emits. Samples with a zero timestamp are
// ignored.
func (s *State) DistanceGated(e signalbus.Emitter, enabled bool, iv Intervals, pos fix.Position,
	vel fix.Velocity, acc fix.Accuracy,
) bool {
	if !pos.Valid() {
		return false
	}
	s.EnableTransition(e, enabled, pos.Status)

	prev, havePrev := s.distPosition.Get()
	emit := false
	switch {
	case !havePrev:
		emit = true
	case iv.MinInterval > 0 && pos.Timestamp-s.distTS >= int64(iv.MinInterval):
		emit = true
	default:
		moved := geo.Distance(geo.Point{Lat: prev.Latitude, Lon: prev.Longitude},
			geo.Point{Lat: pos.Latitude, Lon: pos.Longitude})
		emit = moved > iv.MinDistance
	}
	if !emit {
		return false
	}

	e.Emit(signalbus.Event{
		Kind:     signalbus.KindUpdated,
		Update:   signalbus.UpdateDistance,
		Position: pos,
		Velocity: vel,
		Accuracy: acc,
	})
	s.distTS = pos.Timestamp
	s.distPosition.Set(pos)
	return true
}

// Location replaces the cached snapshots with the new sample, applies the enable transition and runs the
// interval gated position/velocity signaling. Samples with a zero timestamp are ignored.
func (s *State) Location(e signalbus.Emitter, enabled bool, iv Intervals, pos fix.Position, vel fix.Velocity,
	acc fix.Accuracy,
) signalbus.UpdateType {
	if !pos.Valid() {
		return 0
	}
	s.Position.Set(pos)
	s.Velocity.Set(vel)
	s.Accuracy.Set(acc)

	s.EnableTransition(e, enabled, pos.Status)
	return s.PositionVelocity(e, iv, pos, vel, acc)
}

// SatelliteUpdate always replaces the cached satellite snapshot and emits a satellite Updated event if emit is
// set and the interval has elapsed. Snapshots with a zero timestamp are ignored.
func (s *State) SatelliteUpdate(e signalbus.Emitter, interval uint, emit bool, sat fix.Satellite) bool {
	if !sat.Valid() {
		return false
	}
	s.Satellite.Set(sat)

	if !emit || sat.Timestamp-s.satTS < int64(interval) {
		return false
	}
	e.Emit(signalbus.Event{
		Kind:      signalbus.KindUpdated,
		Update:    signalbus.UpdateSatellite,
		Satellite: sat,
	})
	s.satTS = sat.Timestamp
	return true
}

// elapsed reports whether interval seconds have passed between last and ts. A zero last is a fresh
// baseline.
func elapsed(ts, last int64, interval uint) bool {
	return last == 0 || ts-last >= int64(interval)
}
