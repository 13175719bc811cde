// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"fmt"
)

// Interval selects one of the configurable provider intervals.
type Interval int

const (
	IntervalPosition Interval = iota
	IntervalVelocity
	IntervalSatellite
	IntervalLocation
	IntervalBatch
	IntervalBatchPeriod
	// IntervalMin is the minimum interval of distance based updates. Zero disables it.
	IntervalMin
)

// String implements fmt.Stringer.
func (i Interval) String() string {
	switch i {
	case IntervalPosition:
		return "position"
	case IntervalVelocity:
		return "velocity"
	case IntervalSatellite:
		return "satellite"
	case IntervalLocation:
		return "location"
	case IntervalBatch:
		return "batch"
	case IntervalBatchPeriod:
		return "batch-period"
	case IntervalMin:
		return "min"
	default:
		return fmt.Sprintf("interval(%d)", int(i))
	}
}

// Interval bounds in seconds and the minimum distance bound in meters.
const (
	DefaultUpdateInterval   uint = 1
	MaxUpdateInterval       uint = 120
	DefaultBatchInterval    uint = 1
	MaxBatchInterval        uint = 255
	DefaultBatchPeriod      uint = 60
	MaxBatchPeriod          uint = 60000
	MaxMinInterval          uint = 120
	MaxMinDistance               = 120.0
	DefaultBalancedInterval uint = 20
)

// Clamp maps a requested interval onto its valid range: zero selects the default, values above the maximum
// are capped. The distance based minimum interval keeps zero, which disables it.
func Clamp(which Interval, seconds uint) uint {
	switch which {
	case IntervalBatch:
		return clamp(seconds, DefaultBatchInterval, MaxBatchInterval)
	case IntervalBatchPeriod:
		return clamp(seconds, DefaultBatchPeriod, MaxBatchPeriod)
	case IntervalMin:
		return min(seconds, MaxMinInterval)
	default:
		return clamp(seconds, DefaultUpdateInterval, MaxUpdateInterval)
	}
}

// ClampDistance caps meters at MaxMinDistance. Non-positive values disable distance gating.
func ClampDistance(meters float64) float64 {
	if meters <= 0 {
		return 0
	}
	return min(meters, MaxMinDistance)
}

func clamp(v, def, maximum uint) uint {
	if v == 0 {
		return def
	}
	return min(v, maximum)
}
