// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package privacy gates access to location data behind named privileges.
package privacy

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Privilege names a capability a caller needs.
type Privilege string

const (
	// Location allows reading positions and starting providers.
	Location Privilege = "location"
	// LocationEnable allows toggling location methods.
	LocationEnable Privilege = "location.enable"
)

var ErrDenied = errors.New("privilege denied")

// Checker decides whether a privilege is granted.
type Checker interface {
	Check(Privilege) error
}

// Static is a Checker with a fixed deny list. The zero value grants every privilege.
type Static struct {
	mu     sync.RWMutex
	denied []Privilege
}

// NewStatic returns a Static checker denying the named privileges.
func NewStatic(denied ...string) *Static {
	s := &Static{}
	for _, name := range denied {
		s.denied = append(s.denied, Privilege(name))
	}
	return s
}

// Check implements Checker.
func (s *Static) Check(p Privilege) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if slices.Contains(s.denied, p) {
		return fmt.Errorf("%w: %s", ErrDenied, p)
	}
	return nil
}

// Deny revokes p.
func (s *Static) Deny(p Privilege) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.denied, p) {
		s.denied = append(s.denied, p)
	}
}

// Grant allows p again.
func (s *Static) Grant(p Privilege) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = slices.DeleteFunc(s.denied, func(d Privilege) bool { return d == p })
}
