// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

import (
	"fmt"

	"github.com/wneessen/locationd/internal/batch"
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/privacy"
	"github.com/wneessen/locationd/internal/provider"
)

// Object is a provider handed out by Manager.New. Starting it and reading samples from it require the
// location privilege; every other operation is passed through.
type Object struct {
	provider.Provider
	privacy privacy.Checker
	logger  *logger.Logger
}

func (o *Object) allowed() error {
	if err := o.privacy.Check(privacy.Location); err != nil {
		o.logger.Warn("privilege not allowed", logger.Err(err))
		return fmt.Errorf("%w: %w", provider.ErrNotAllowed, err)
	}
	return nil
}

// Start implements provider.Provider.
func (o *Object) Start() error {
	if err := o.allowed(); err != nil {
		return err
	}
	return o.Provider.Start()
}

// StartBatch implements provider.Provider.
func (o *Object) StartBatch() error {
	if err := o.allowed(); err != nil {
		return err
	}
	return o.Provider.StartBatch()
}

// SetOption implements provider.Provider.
func (o *Object) SetOption(option string) error {
	if err := o.allowed(); err != nil {
		return err
	}
	return o.Provider.SetOption(option)
}

// Position implements provider.Provider.
func (o *Object) Position() (fix.Position, fix.Accuracy, error) {
	if err := o.allowed(); err != nil {
		return fix.Position{}, fix.NoAccuracy, err
	}
	return o.Provider.Position()
}

// PositionVelocity implements provider.Provider.
func (o *Object) PositionVelocity() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if err := o.allowed(); err != nil {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, err
	}
	return o.Provider.PositionVelocity()
}

// Velocity implements provider.Provider.
func (o *Object) Velocity() (fix.Velocity, fix.Accuracy, error) {
	if err := o.allowed(); err != nil {
		return fix.Velocity{}, fix.NoAccuracy, err
	}
	return o.Provider.Velocity()
}

// LastPosition implements provider.Provider.
func (o *Object) LastPosition() (fix.Position, fix.Accuracy, error) {
	if err := o.allowed(); err != nil {
		return fix.Position{}, fix.NoAccuracy, err
	}
	return o.Provider.LastPosition()
}

// LastPositionVelocity implements provider.Provider.
func (o *Object) LastPositionVelocity() (fix.Position, fix.Velocity, fix.Accuracy, error) {
	if err := o.allowed(); err != nil {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, err
	}
	return o.Provider.LastPositionVelocity()
}

// LastVelocity implements provider.Provider.
func (o *Object) LastVelocity() (fix.Velocity, fix.Accuracy, error) {
	if err := o.allowed(); err != nil {
		return fix.Velocity{}, fix.NoAccuracy, err
	}
	return o.Provider.LastVelocity()
}

// Satellite implements provider.Provider.
func (o *Object) Satellite() (fix.Satellite, error) {
	if err := o.allowed(); err != nil {
		return fix.Satellite{}, err
	}
	return o.Provider.Satellite()
}

// LastSatellite implements provider.Provider.
func (o *Object) LastSatellite() (fix.Satellite, error) {
	if err := o.allowed(); err != nil {
		return fix.Satellite{}, err
	}
	return o.Provider.LastSatellite()
}

// Batch implements provider.Provider.
func (o *Object) Batch() (*batch.Batch, error) {
	if err := o.allowed(); err != nil {
		return nil, err
	}
	return o.Provider.Batch()
}
