// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package motion classifies accelerometer samples into movement, immobility and sleep.
//
// The classifier first calibrates the squared gravity baseline over a fixed number of samples. Afterwards
// the deviation of the squared acceleration magnitude from that baseline is low-pass filtered, squared and
// integrated into a running energy estimate which is compared against thresholds derived from a noise and
// a motion level.
package motion

import (
	"fmt"
	"math"
	"time"
)

// Gravity is the standard gravitational acceleration in m/s².
const Gravity = -9.81

// Motion is the current classification.
type Motion int

const (
	Undecided Motion = iota
	Movement
	Immobility
	Sleep
)

// String implements fmt.Stringer.
func (m Motion) String() string {
	switch m {
	case Undecided:
		return "undecided"
	case Movement:
		return "movement"
	case Immobility:
		return "immobility"
	case Sleep:
		return "sleep"
	default:
		return fmt.Sprintf("motion(%d)", int(m))
	}
}

// Calibration is the state of the gravity baseline calibration.
type Calibration int

const (
	Uninitialized Calibration = iota
	Ongoing
	Complete
)

// String implements fmt.Stringer.
func (c Calibration) String() string {
	switch c {
	case Uninitialized:
		return "uninitialized"
	case Ongoing:
		return "ongoing"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("calibration(%d)", int(c))
	}
}

// Sample is one accelerometer reading in m/s².
type Sample struct {
	X, Y, Z float64
	At      time.Time
}

// Config holds the tunables of a Classifier.
type Config struct {
	NoiseLevel          float64
	MotionLevel         float64
	SamplingFrequency   float64 // Hz
	CutoffFrequency     float64 // Hz
	ImmobilityInterval  time.Duration
	IntegrationInterval time.Duration
	CalibrationInterval time.Duration
}

// DefaultConfig returns the configuration for a 10 Hz accelerometer.
func DefaultConfig() Config {
	return Config{
		NoiseLevel:          0.5,
		MotionLevel:         2.0,
		SamplingFrequency:   10,
		CutoffFrequency:     4,
		ImmobilityInterval:  30 * time.Second,
		IntegrationInterval: 10 * time.Second,
		CalibrationInterval: 60 * time.Second,
	}
}

// Energy returns the energy estimate that corresponds to an acceleration noise of the given level.
func Energy(level float64) float64 {
	return level * level / 18.0 * (level*math.Pi + 4*Gravity*Gravity)
}

// ImmobilityThreshold returns the energy below which a device is considered immobile.
func (c Config) ImmobilityThreshold() float64 {
	return Energy(c.NoiseLevel)
}

// MovementThreshold returns the energy above which a device is considered moving.
func (c Config) MovementThreshold() float64 {
	return Energy(c.MotionLevel)
}

// ImmobilityLevel returns the initial energy estimate, halfway between noise and motion.
func (c Config) ImmobilityLevel() float64 {
	return Energy(2 * c.NoiseLevel)
}

// CalibrationSamples returns the number of samples averaged into the gravity baseline.
func (c Config) CalibrationSamples() int {
	return int(c.SamplingFrequency * c.CalibrationInterval.Seconds())
}

// ReplacementRate returns the weight of a new sample in the running energy estimate.
func (c Config) ReplacementRate() float64 {
	return 1.0 / (c.SamplingFrequency * c.IntegrationInterval.Seconds())
}

// Classifier is a per-instance motion classifier. It is not safe for concurrent use.
type Classifier struct {
	config   Config
	filter   lowPass
	onChange func(prev, next Motion)

	calibration Calibration
	samples     int
	gravity2    float64
	energy      float64
	motion      Motion
	lastMoving  time.Time
}

// New returns a Classifier for config. onChange, if not nil, is called on every classification change.
func New(config Config, onChange func(prev, next Motion)) *Classifier {
	c := &Classifier{config: config, onChange: onChange}
	c.Reset()
	return c
}

// Reset restores the initial state, discarding calibration and filter history.
func (c *Classifier) Reset() {
	c.filter = newLowPass(c.config.CutoffFrequency, c.config.SamplingFrequency)
	c.calibration = Uninitialized
	c.samples = 0
	c.gravity2 = Gravity * Gravity
	c.energy = c.config.ImmobilityLevel()
	c.motion = Undecided
	c.lastMoving = time.Time{}
}

// Motion returns the current classification.
func (c *Classifier) Motion() Motion {
	return c.motion
}

// Calibration returns the calibration state.
func (c *Classifier) Calibration() Calibration {
	return c.calibration
}

// Energy returns the running energy estimate.
func (c *Classifier) Energy() float64 {
	return c.energy
}

// Baseline returns the squared gravity baseline.
func (c *Classifier) Baseline() float64 {
	return c.gravity2
}

// Process feeds one sample into the classifier and returns the resulting classification.
func (c *Classifier) Process(s Sample) Motion {
	a2 := s.X*s.X + s.Y*s.Y + s.Z*s.Z

	switch c.calibration {
	case Uninitialized:
		c.gravity2 = a2
		c.samples = 1
		c.calibration = Ongoing
	case Ongoing:
		if c.samples < c.config.CalibrationSamples() {
			c.gravity2 += a2
			c.samples++
			break
		}
		c.gravity2 /= float64(c.samples)
		c.calibration = Complete
	case Complete:
		s2a := c.filter.process((a2 - c.gravity2) / 3.0)
		rate := c.config.ReplacementRate()
		c.energy = s2a*s2a*rate + c.energy*(1-rate)
		c.classify(s.At)
	}
	return c.motion
}

func (c *Classifier) classify(at time.Time) {
	switch {
	case c.energy > c.config.MovementThreshold():
		c.set(Movement)
	case c.energy < c.config.ImmobilityThreshold():
		switch c.motion {
		case Undecided, Movement:
			c.set(Immobility)
			c.lastMoving = at
		case Immobility:
			if at.Sub(c.lastMoving) > c.config.ImmobilityInterval {
				c.set(Sleep)
			}
		default:
		}
	}
}

func (c *Classifier) set(m Motion) {
	if c.motion == m {
		return
	}
	prev := c.motion
	c.motion = m
	if c.onChange != nil {
		c.onChange(prev, m)
	}
}

// lowPass is a second order Butterworth low-pass filter derived with the bilinear transform.
type lowPass struct {
	g, b1, b2 float64
	u1, u2    float64
	v1, v2    float64
}

func newLowPass(cutoff, samplingFrequency float64) lowPass {
	if samplingFrequency <= 0 {
		return lowPass{g: 0.25}
	}
	omega := math.Tan(math.Pi * cutoff / samplingFrequency)
	omega2 := omega * omega
	cos := math.Cos(math.Pi / 4.0)
	b0 := 1.0 / (1 + 2*omega*cos + omega2)
	return lowPass{
		g:  b0 * omega2,
		b1: b0 * 2 * (omega2 - 1),
		b2: b0 * (1 - 2*omega*cos + omega2),
	}
}

func (f *lowPass) process(u float64) float64 {
	v := f.g*(u+2*f.u1+f.u2) - f.b1*f.v1 - f.b2*f.v2
	f.u2, f.u1 = f.u1, u
	f.v2, f.v1 = f.v1, v
	return v
}
