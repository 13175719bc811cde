// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package backend holds glue shared by the vendor backends.
package backend

import (
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/provider"
)

// Passive reads the last positions of the GPS and WPS backends for the passive provider. Either backend
// may be nil.
type Passive struct {
	GPS provider.Backend
	WPS provider.Backend
}

// LastPosition implements provider.PassiveBackend.
func (p Passive) LastPosition() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	return last(p.GPS)
}

// LastWPSPosition implements provider.PassiveBackend.
func (p Passive) LastWPSPosition() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	return last(p.WPS)
}

func last(b provider.Backend) (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if b == nil {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, provider.ErrNotAvailable
	}
	return b.LastPosition()
}
