// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package signaling

import (
	"errors"
	"fmt"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/geo"
	"github.com/wneessen/locationd/internal/signalbus"
)

var (
	ErrDuplicateBoundary = errors.New("boundary is already tracked")
	ErrUnknownBoundary   = errors.New("boundary is not tracked")
)

// ZoneStatus is the last signaled relation of a position to a boundary.
type ZoneStatus int

const (
	ZoneNone ZoneStatus = iota
	ZoneIn
	ZoneOut
)

// String implements fmt.Stringer.
func (z ZoneStatus) String() string {
	switch z {
	case ZoneNone:
		return "none"
	case ZoneIn:
		return "in"
	case ZoneOut:
		return "out"
	default:
		return fmt.Sprintf("zone(%d)", int(z))
	}
}

// Fence is a tracked boundary with its zone status.
type Fence struct {
	Boundary geo.Boundary
	Status   ZoneStatus
}

// Fences is an ordered list of tracked boundaries.
type Fences struct {
	list []Fence
}

// Add starts tracking b. Structurally equal boundaries are tracked only once.
func (f *Fences) Add(b geo.Boundary) error {
	for _, fence := range f.list {
		if fence.Boundary.Equal(b) {
			return ErrDuplicateBoundary
		}
	}
	f.list = append(f.list, Fence{Boundary: b.Clone(), Status: ZoneNone})
	return nil
}

// Remove stops tracking the boundary structurally equal to b.
func (f *Fences) Remove(b geo.Boundary) error {
	for i, fence := range f.list {
		if fence.Boundary.Equal(b) {
			f.list = append(f.list[:i:i], f.list[i+1:]...)
			return nil
		}
	}
	return ErrUnknownBoundary
}

// List returns a copy of the tracked boundaries.
func (f *Fences) List() []Fence {
	out := make([]Fence, len(f.list))
	for i, fence := range f.list {
		out[i] = Fence{Boundary: fence.Boundary.Clone(), Status: fence.Status}
	}
	return out
}

// Len returns the number of tracked boundaries.
func (f *Fences) Len() int {
	return len(f.list)
}

// Scan recomputes the zone status of every boundary for pos and emits ZoneIn or ZoneOut on transitions.
func (f *Fences) Scan(e signalbus.Emitter, pos fix.Position, acc fix.Accuracy) {
	if !pos.Valid() {
		return
	}
	f.scan(e, pos, acc)
}

func (f *Fences) scan(e signalbus.Emitter, pos fix.Position, acc fix.Accuracy) {
	point := geo.Point{Lat: pos.Latitude, Lon: pos.Longitude}
	for i := range f.list {
		fence := &f.list[i]
		if fence.Boundary.Contains(point) {
			if fence.Status != ZoneIn {
				fence.Status = ZoneIn
				e.Emit(signalbus.Event{Kind: signalbus.KindZoneIn, Boundary: fence.Boundary, Position: pos,
					Accuracy: acc})
			}
			continue
		}
		if fence.Status != ZoneOut {
			fence.Status = ZoneOut
			e.Emit(signalbus.Event{Kind: signalbus.KindZoneOut, Boundary: fence.Boundary, Position: pos,
				Accuracy: acc})
		}
	}
}

func (f *Fences) resetZones() {
	for i := range f.list {
		f.list[i].Status = ZoneNone
	}
}
