// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package fix holds the location samples that flow from vendor backends through the providers to observers.
package fix

import (
	"fmt"
	"slices"
)

// Status is the validity status of a position fix.
type Status int

const (
	StatusNoFix Status = iota
	Status2DFix
	Status3DFix
	StatusFixInvalid
	StatusMock
	// StatusMockFail is reported when a mock location could not be applied.
	StatusMockFail
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusNoFix:
		return "no-fix"
	case Status2DFix:
		return "2d-fix"
	case Status3DFix:
		return "3d-fix"
	case StatusFixInvalid:
		return "fix-invalid"
	case StatusMock:
		return "mock"
	case StatusMockFail:
		return "mock-fail"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Level is the coarse accuracy class of a fix. Higher values are more precise.
type Level int

const (
	LevelNone Level = iota
	LevelCountry
	LevelRegion
	LevelLocality
	LevelPostalCode
	LevelStreet
	LevelDetailed
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelCountry:
		return "country"
	case LevelRegion:
		return "region"
	case LevelLocality:
		return "locality"
	case LevelPostalCode:
		return "postalcode"
	case LevelStreet:
		return "street"
	case LevelDetailed:
		return "detailed"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Position is a single position sample. Timestamp is in seconds; a zero timestamp marks the sample as invalid.
type Position struct {
	Timestamp int64   `json:"timestamp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Status    Status  `json:"status"`
}

// Valid reports whether the position carries a usable timestamp.
func (p Position) Valid() bool {
	return p.Timestamp != 0
}

// Velocity is a single velocity sample sharing the timestamp domain of Position.
type Velocity struct {
	Timestamp int64   `json:"timestamp"`
	Speed     float64 `json:"speed"`
	Direction float64 `json:"direction"`
	Climb     float64 `json:"climb"`
}

// Accuracy describes the precision of a fix.
type Accuracy struct {
	Level      Level   `json:"level"`
	Horizontal float64 `json:"horizontal"`
	Vertical   float64 `json:"vertical"`
}

// NoAccuracy is the placeholder used when no accuracy was reported.
var NoAccuracy = Accuracy{Level: LevelNone}

// SatelliteDetail describes one satellite in view.
type SatelliteDetail struct {
	PRN       uint32 `json:"prn"`
	Used      bool   `json:"used"`
	Elevation uint32 `json:"elevation"`
	Azimuth   uint32 `json:"azimuth"`
	SNR       int32  `json:"snr"`
}

// Satellite is a satellite constellation snapshot.
type Satellite struct {
	Timestamp int64             `json:"timestamp"`
	InView    uint32            `json:"in_view"`
	InUse     uint32            `json:"in_use"`
	Details   []SatelliteDetail `json:"details,omitempty"`
}

// Clone returns a deep copy of the satellite snapshot.
func (s Satellite) Clone() Satellite {
	s.Details = slices.Clone(s.Details)
	return s
}

// Valid reports whether the satellite snapshot carries a usable timestamp.
func (s Satellite) Valid() bool {
	return s.Timestamp != 0
}

// Placeholder returns the all-zero NO_FIX sample used when a request could not be satisfied.
func Placeholder() (Position, Velocity, Accuracy) {
	return Position{Status: StatusNoFix}, Velocity{}, NoAccuracy
}
