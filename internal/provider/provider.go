// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package provider implements the positioning providers behind the uniform Provider contract: GPS, WPS,
// Mock and Passive wrap a vendor backend each, Fused adds motion assisted duty cycling on top of a GPS
// backend and Hybrid arbitrates between a GPS and a WPS provider.
//
// Providers are not bound to a particular event loop. Every method and every backend callback must be
// invoked from the same single goroutine; the lifecycle mutex only serialises Start and Stop.
package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/locationd/internal/batch"
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/geo"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/motion"
	"github.com/wneessen/locationd/internal/schedule"
	"github.com/wneessen/locationd/internal/settings"
	"github.com/wneessen/locationd/internal/signalbus"
	"github.com/wneessen/locationd/internal/signaling"
)

// Method identifies a provider kind.
type Method int

const (
	MethodNone Method = iota - 1
	MethodHybrid
	MethodGPS
	MethodWPS
	MethodMock
	MethodPassive
	MethodFused
)

// Methods lists every provider kind.
var Methods = []Method{MethodHybrid, MethodGPS, MethodWPS, MethodMock, MethodPassive, MethodFused}

// String implements fmt.Stringer.
func (m Method) String() string {
	switch m {
	case MethodHybrid:
		return "hybrid"
	case MethodGPS:
		return "gps"
	case MethodWPS:
		return "wps"
	case MethodMock:
		return "mock"
	case MethodPassive:
		return "passive"
	case MethodFused:
		return "fused"
	default:
		return "none"
	}
}

// ParseMethod converts a method name into a Method.
func ParseMethod(name string) (Method, error) {
	for _, m := range Methods {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return MethodNone, fmt.Errorf("%w: unknown method %q", ErrParameterInvalid, name)
}

// Provider is the uniform contract every provider kind implements. Operations without meaning for a kind
// return ErrNotSupported.
type Provider interface {
	Method() Method
	Bus() *signalbus.Bus
	Started() bool

	Start() error
	Stop() error
	RequestSingleLocation(timeout time.Duration) error
	StartBatch() error
	StopBatch() error

	Position() (fix.Position, fix.Accuracy, error)
	PositionVelocity() (fix.Position, fix.Velocity, fix.Accuracy, error)
	Velocity() (fix.Velocity, fix.Accuracy, error)
	LastPosition() (fix.Position, fix.Accuracy, error)
	LastPositionVelocity() (fix.Position, fix.Velocity, fix.Accuracy, error)
	LastVelocity() (fix.Velocity, fix.Accuracy, error)
	Satellite() (fix.Satellite, error)
	LastSatellite() (fix.Satellite, error)
	NMEA() (string, error)
	Batch() (*batch.Batch, error)

	SetOption(option string) error
	SetMockLocation(pos fix.Position, vel fix.Velocity, acc fix.Accuracy) error
	ClearMockLocation() error

	Interval(which Interval) (uint, error)
	SetInterval(which Interval, seconds uint) error
	MinDistance() float64
	SetMinDistance(meters float64) error

	AddBoundary(b geo.Boundary) error
	RemoveBoundary(b geo.Boundary) error
	Boundaries() []signaling.Fence

	// Close stops the provider and releases every subscription it holds.
	Close()
}

// Callbacks are handed to a backend on start. Backends must invoke them on the event loop, never from
// within Start itself. Nil callbacks are not invoked.
type Callbacks struct {
	Status    func(enabled bool, status fix.Status)
	Location  func(enabled bool, pos fix.Position, vel fix.Velocity, acc fix.Accuracy)
	Satellite func(enabled bool, sat fix.Satellite)
}

// Backend is the vendor operation table shared by the GPS, WPS, Mock and Fused providers.
type Backend interface {
	Start(interval uint, cb Callbacks) error
	Stop() error
	LastPosition() (fix.Position, fix.Velocity, fix.Accuracy, error)
}

// IntervalSetter is implemented by backends that accept a new update interval while running.
type IntervalSetter interface {
	SetInterval(seconds uint) error
}

// SatelliteSource is implemented by backends that know the last satellite constellation.
type SatelliteSource interface {
	LastSatellite() (fix.Satellite, error)
}

// NMEASource is implemented by backends that keep the last raw NMEA sentences.
type NMEASource interface {
	NMEA() (string, error)
}

// Batcher is implemented by backends supporting batch mode. fn receives the number of recorded samples.
type Batcher interface {
	StartBatch(interval, period uint, fn func(enabled bool, count int)) error
	StopBatch() error
}

// OptionSetter is implemented by backends accepting free form options.
type OptionSetter interface {
	SetOption(option string) error
}

// MockBackend is the operation table of the Mock provider.
type MockBackend interface {
	Backend
	SetMockLocation(pos fix.Position, vel fix.Velocity, acc fix.Accuracy, status func(bool, fix.Status)) error
	ClearMockLocation(status func(bool, fix.Status)) error
}

// PassiveBackend reports the last positions other consumers obtained.
type PassiveBackend interface {
	LastPosition() (fix.Position, fix.Velocity, fix.Accuracy, error)
	LastWPSPosition() (fix.Position, fix.Velocity, fix.Accuracy, error)
}

// Accelerometer delivers motion samples on the event loop.
type Accelerometer interface {
	Start(fn func(motion.Sample)) error
	Stop() error
}

// Settings is the part of the settings store the providers consult.
type Settings interface {
	Int(key settings.Key) (int, error)
	Bool(key settings.Key) (bool, error)
	Watch(key settings.Key, fn settings.Handler) (func(), error)
}

// Options carries the collaborators shared by every provider.
type Options struct {
	Logger    *logger.Logger
	Settings  Settings
	Scheduler schedule.Scheduler
	// BatchLog is the file a batching GPS backend records its samples to.
	BatchLog string
}
