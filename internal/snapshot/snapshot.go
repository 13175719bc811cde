// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package snapshot

import (
	"fmt"
)

// Cloner is implemented by values that own reference-typed data and need a deep copy on read and write.
type Cloner[T any] interface {
	Clone() T
}

// Slot holds an optional owned value. Writing replaces the previous value as a whole, reads hand out copies
// so the stored value can never be mutated from the outside.
type Slot[T any] struct {
	value T
	isset bool
}

// Of creates a Slot that holds value.
func Of[T any](value T) Slot[T] {
	var s Slot[T]
	s.Set(value)
	return s
}

// Reset drops the held value and marks the Slot as empty.
func (s *Slot[T]) Reset() {
	var zero T
	s.value = zero
	s.isset = false
}

// Set replaces the held value with a copy of val.
func (s *Slot[T]) Set(val T) {
	s.value = clone(val)
	s.isset = true
}

// Get returns a copy of the held value and whether the Slot was set.
func (s *Slot[T]) Get() (T, bool) {
	if !s.isset {
		var zero T
		return zero, false
	}
	return clone(s.value), true
}

// Value returns a copy of the held value, or the zero value if the Slot is empty.
func (s *Slot[T]) Value() T {
	v, _ := s.Get()
	return v
}

// IsSet returns true if the Slot holds a value.
func (s *Slot[T]) IsSet() bool {
	return s.isset
}

// String returns a string representation of the Slot.
func (s Slot[T]) String() string {
	if !s.isset {
		return "<unset>"
	}
	return fmt.Sprint(s.value)
}

func clone[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}
