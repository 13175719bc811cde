// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package motion

import (
	"math"
	"testing"
	"time"
)

var testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// feed sends n identical samples at 10 Hz starting at *at and advances *at.
func feed(c *Classifier, n int, x, y, z float64, at *time.Time) Motion {
	var m Motion
	for range n {
		m = c.Process(Sample{X: x, Y: y, Z: z, At: *at})
		*at = at.Add(100 * time.Millisecond)
	}
	return m
}

func TestConfig_Thresholds(t *testing.T) {
	conf := DefaultConfig()
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"immobility threshold", conf.ImmobilityThreshold(), 5.3683},
		{"immobility level", conf.ImmobilityLevel(), 21.5603},
		{"movement threshold", conf.MovementThreshold(), 86.9395},
		{"replacement rate", conf.ReplacementRate(), 0.01},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if math.Abs(tc.got-tc.want) > 1e-3 {
				t.Errorf("expected %f, got %f", tc.want, tc.got)
			}
		})
	}
	if conf.CalibrationSamples() != 600 {
		t.Errorf("expected 600 calibration samples, got %d", conf.CalibrationSamples())
	}
}

func TestClassifier_Calibration(t *testing.T) {
	c := New(DefaultConfig(), nil)
	at := testStart
	if c.Calibration() != Uninitialized {
		t.Fatalf("expected uninitialized calibration, got %s", c.Calibration())
	}
	feed(c, 1, 0, 0, 10, &at)
	if c.Calibration() != Ongoing {
		t.Fatalf("expected ongoing calibration, got %s", c.Calibration())
	}
	feed(c, 599, 0, 0, 10, &at)
	if c.Calibration() != Ongoing {
		t.Fatalf("expected calibration to still be ongoing, got %s", c.Calibration())
	}
	feed(c, 1, 0, 0, 10, &at)
	if c.Calibration() != Complete {
		t.Fatalf("expected complete calibration, got %s", c.Calibration())
	}
	if math.Abs(c.Baseline()-100) > 1e-9 {
		t.Errorf("expected baseline of 100, got %f", c.Baseline())
	}
	if c.Motion() != Undecided {
		t.Errorf("expected calibration not to classify, got %s", c.Motion())
	}
}

func TestClassifier_Process(t *testing.T) {
	t.Run("resting device becomes immobile and then sleeps", func(t *testing.T) {
		var transitions []Motion
		c := New(DefaultConfig(), func(_, next Motion) { transitions = append(transitions, next) })
		at := testStart
		feed(c, 601, 0, 0, -Gravity, &at)

		immobileAt := time.Time{}
		for range 1000 {
			if c.Process(Sample{Z: -Gravity, At: at}) == Immobility && immobileAt.IsZero() {
				immobileAt = at
			}
			at = at.Add(100 * time.Millisecond)
			if c.Motion() == Sleep {
				break
			}
		}
		if immobileAt.IsZero() {
			t.Fatal("expected the device to become immobile")
		}
		if c.Motion() != Sleep {
			t.Fatalf("expected the device to sleep, got %s", c.Motion())
		}
		if slept := at.Sub(immobileAt); slept <= 30*time.Second {
			t.Errorf("expected sleep only after the immobility interval, got %s", slept)
		}
		if len(transitions) != 2 || transitions[0] != Immobility || transitions[1] != Sleep {
			t.Errorf("unexpected transitions: %v", transitions)
		}
	})
	t.Run("sustained acceleration is classified as movement", func(t *testing.T) {
		c := New(DefaultConfig(), nil)
		at := testStart
		feed(c, 601, 0, 0, -Gravity, &at)
		if m := feed(c, 5, 0, 0, 25, &at); m != Movement {
			t.Errorf("expected movement, got %s", m)
		}
		if c.Energy() <= DefaultConfig().MovementThreshold() {
			t.Errorf("expected energy above the movement threshold, got %f", c.Energy())
		}
	})
	t.Run("sleep is sticky", func(t *testing.T) {
		c := New(DefaultConfig(), nil)
		at := testStart
		feed(c, 601, 0, 0, -Gravity, &at)
		feed(c, 1000, 0, 0, -Gravity, &at)
		if c.Motion() != Sleep {
			t.Fatalf("expected sleep, got %s", c.Motion())
		}
		feed(c, 100, 0, 0, -Gravity, &at)
		if c.Motion() != Sleep {
			t.Errorf("expected sleep to persist, got %s", c.Motion())
		}
	})
	t.Run("instances do not share filter state", func(t *testing.T) {
		a := New(DefaultConfig(), nil)
		b := New(DefaultConfig(), nil)
		atA, atB := testStart, testStart
		feed(a, 601, 0, 0, -Gravity, &atA)
		feed(b, 601, 0, 0, -Gravity, &atB)
		feed(a, 5, 0, 0, 25, &atA)
		feed(b, 5, 0, 0, -Gravity, &atB)
		if a.Motion() != Movement {
			t.Errorf("expected first classifier to detect movement, got %s", a.Motion())
		}
		if b.Motion() == Movement {
			t.Error("expected second classifier to be unaffected")
		}
	})
	t.Run("reset restores the initial state", func(t *testing.T) {
		c := New(DefaultConfig(), nil)
		at := testStart
		feed(c, 700, 0, 0, 25, &at)
		c.Reset()
		if c.Calibration() != Uninitialized || c.Motion() != Undecided {
			t.Error("expected reset to restore the initial state")
		}
		if math.Abs(c.Energy()-DefaultConfig().ImmobilityLevel()) > 1e-9 {
			t.Errorf("expected energy to be reset, got %f", c.Energy())
		}
	})
}

func TestLowPass(t *testing.T) {
	t.Run("unity gain at DC", func(t *testing.T) {
		f := newLowPass(4, 10)
		var v float64
		for range 200 {
			v = f.process(1)
		}
		if math.Abs(v-1) > 1e-6 {
			t.Errorf("expected DC gain of 1, got %f", v)
		}
	})
	t.Run("zero gain at nyquist", func(t *testing.T) {
		f := newLowPass(4, 10)
		var v float64
		sign := 1.0
		for range 400 {
			v = f.process(sign)
			sign = -sign
		}
		if math.Abs(v) > 1e-6 {
			t.Errorf("expected nyquist to be suppressed, got %f", v)
		}
	})
}
