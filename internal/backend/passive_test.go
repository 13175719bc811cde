// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package backend

import (
	"errors"
	"testing"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/provider"
)

type fixed struct {
	pos fix.Position
}

func (f fixed) Start(uint, provider.Callbacks) error { return nil }
func (f fixed) Stop() error                          { return nil }
func (f fixed) LastPosition() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	return f.pos, fix.Velocity{Timestamp: f.pos.Timestamp}, fix.NoAccuracy, nil
}

func TestPassive(t *testing.T) {
	t.Run("positions are read from the matching backend", func(t *testing.T) {
		p := Passive{GPS: fixed{pos: fix.Position{Timestamp: 2, Latitude: 1}}, WPS: fixed{pos: fix.Position{Timestamp: 1}}}
		pos, _, _, err := p.LastPosition()
		if err != nil || pos.Latitude != 1 {
			t.Errorf("expected the gps position, got %+v (%v)", pos, err)
		}
		pos, _, _, err = p.LastWPSPosition()
		if err != nil || pos.Timestamp != 1 {
			t.Errorf("expected the wps position, got %+v (%v)", pos, err)
		}
	})
	t.Run("missing backends are not available", func(t *testing.T) {
		var p Passive
		if _, _, _, err := p.LastPosition(); !errors.Is(err, provider.ErrNotAvailable) {
			t.Errorf("expected not available, got %v", err)
		}
		if _, _, _, err := p.LastWPSPosition(); !errors.Is(err, provider.ErrNotAvailable) {
			t.Errorf("expected not available, got %v", err)
		}
	})
}
