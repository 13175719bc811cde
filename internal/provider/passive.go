// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"fmt"
	"log/slog"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/settings"
)

// Passive republishes positions that other consumers caused the GPS and WPS backends to obtain. It never
// powers a backend itself.
type Passive struct {
	core
	backend PassiveBackend
}

// NewPassive returns a Passive provider reading from backend.
func NewPassive(backend PassiveBackend, opts Options) (*Passive, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: passive provider requires a backend", ErrParameterInvalid)
	}
	p := &Passive{backend: backend}
	if err := p.init(MethodPassive, settings.UseMyLocation, opts); err != nil {
		return nil, err
	}
	p.vendorStart = p.subscribe
	return p, nil
}

func (p *Passive) subscribe() error {
	p.watch(settings.LastGPSTimestamp, p.refresh)
	p.watch(settings.LastWPSTimestamp, p.refresh)
	return nil
}

// refresh publishes the last position of the backend whose timestamp setting changed.
func (p *Passive) refresh(key settings.Key, _ int) {
	if !p.started.Load() {
		return
	}
	last := p.backend.LastPosition
	if key == settings.LastWPSTimestamp {
		last = p.backend.LastWPSPosition
	}
	pos, vel, acc, err := last()
	if err != nil {
		p.logger.Debug("no passive position available", slog.String("key", string(key)), logger.Err(err))
		return
	}
	p.onLocation(true, pos, vel, acc)
}

// LastPosition implements Provider.
func (p *Passive) LastPosition() (fix.Position, fix.Accuracy, error) {
	pos, _, acc, err := p.LastPositionVelocity()
	return pos, acc, err
}

// LastPositionVelocity implements Provider.
func (p *Passive) LastPositionVelocity() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if !p.settingOn(p.settingKey) {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, ErrSettingOff
	}
	return p.backend.LastPosition()
}

// LastVelocity implements Provider.
func (p *Passive) LastVelocity() (fix.Velocity, fix.Accuracy, error) {
	_, vel, acc, err := p.LastPositionVelocity()
	return vel, acc, err
}
