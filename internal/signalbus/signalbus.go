// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package signalbus

import (
	"fmt"
	"strings"
	"sync"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/geo"
)

// Kind identifies the type of an Event.
type Kind int

const (
	KindEnabled Kind = iota
	KindDisabled
	KindUpdated
	KindLocationUpdated
	KindZoneIn
	KindZoneOut
	KindBatchUpdated
	KindStatusChanged
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindEnabled:
		return "enabled"
	case KindDisabled:
		return "disabled"
	case KindUpdated:
		return "updated"
	case KindLocationUpdated:
		return "location-updated"
	case KindZoneIn:
		return "zone-in"
	case KindZoneOut:
		return "zone-out"
	case KindBatchUpdated:
		return "batch-updated"
	case KindStatusChanged:
		return "status-changed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// UpdateType is the bitmask carried by KindUpdated events.
type UpdateType uint8

const (
	UpdatePosition UpdateType = 1 << iota
	UpdateVelocity
	UpdateSatellite
	UpdateDistance
	UpdateLocationChanged
)

// Has reports whether all bits of flag are set.
func (u UpdateType) Has(flag UpdateType) bool {
	return u&flag == flag && flag != 0
}

// String implements fmt.Stringer.
func (u UpdateType) String() string {
	names := []string{"position", "velocity", "satellite", "distance", "location-changed"}
	var parts []string
	for i, name := range names {
		if u&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Event is a single notification delivered to observers. Only the fields belonging to Kind are meaningful.
type Event struct {
	Kind   Kind
	Source string

	// KindEnabled, KindDisabled, KindStatusChanged
	Status fix.Status

	// KindUpdated
	Update UpdateType

	// KindLocationUpdated
	Err error

	// KindUpdated, KindLocationUpdated, KindZoneIn, KindZoneOut
	Position  fix.Position
	Velocity  fix.Velocity
	Accuracy  fix.Accuracy
	Satellite fix.Satellite

	// KindZoneIn, KindZoneOut
	Boundary geo.Boundary

	// KindBatchUpdated
	Count int
}

// Handler receives events. Handlers run synchronously on the emitting goroutine and must not block.
type Handler func(Event)

// Emitter is implemented by anything events can be emitted to.
type Emitter interface {
	Emit(Event)
}

type observer struct {
	id      uint64
	handler Handler
}

// Bus delivers events to its observers in registration order.
type Bus struct {
	mu        sync.Mutex
	source    string
	nextID    uint64
	observers []observer
}

// New returns a Bus that stamps emitted events with source.
func New(source string) *Bus {
	return &Bus{source: source}
}

// Source returns the name events of this Bus are stamped with.
func (b *Bus) Source() string {
	return b.source
}

// Subscribe registers h and returns a function that removes it again. The returned function is safe to
// call more than once.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.observers = append(b.observers, observer{id: id, handler: h})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, o := range b.observers {
			if o.id == id {
				b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
				return
			}
		}
	}
}

// SubscribeChan returns a buffered channel receiving every event and an unsubscribe function that also
// closes the channel. Events are dropped if the channel buffer is full.
func (b *Bus) SubscribeChan(size int) (<-chan Event, func()) {
	ch := make(chan Event, size)
	var once sync.Once
	var mu sync.Mutex
	closed := false

	unsub := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
	return ch, func() {
		once.Do(func() {
			unsub()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}

// Len returns the number of registered observers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// Emit stamps e with the bus source and delivers it to every observer registered at the time of the call.
// Observers may subscribe or unsubscribe from within a handler.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	observers := make([]observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.Unlock()

	if e.Source == "" {
		e.Source = b.source
	}
	for _, o := range observers {
		ev := e
		ev.Satellite = e.Satellite.Clone()
		ev.Boundary = e.Boundary.Clone()
		o.handler(ev)
	}
}
