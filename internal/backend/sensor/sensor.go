// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package sensor reads a Linux IIO accelerometer through sysfs.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/locationd/internal/job"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/motion"
	"github.com/wneessen/locationd/internal/schedule"
)

const (
	// DefaultRoot is where the kernel lists IIO devices.
	DefaultRoot = "/sys/bus/iio/devices"
	// DefaultPeriod samples at the 10 Hz the motion classifier is tuned for.
	DefaultPeriod = time.Millisecond * 100
)

var ErrNoAccelerometer = errors.New("no accelerometer found")

// Accelerometer polls the raw axis values of one IIO device.
type Accelerometer struct {
	device string
	period time.Duration
	loop   schedule.Poster
	logger *logger.Logger
	now    func() time.Time

	cancel context.CancelFunc
}

// Discover returns the first IIO device below root that exposes accelerometer channels.
func Discover(root string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*", "in_accel_x_raw"))
	if err != nil {
		return "", fmt.Errorf("failed to search for accelerometers: %w", err)
	}
	if len(matches) == 0 {
		return "", ErrNoAccelerometer
	}
	return filepath.Dir(matches[0]), nil
}

// New returns an Accelerometer for the IIO device directory. Samples are delivered on loop.
func New(device string, period time.Duration, loop schedule.Poster, log *logger.Logger) *Accelerometer {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Accelerometer{
		device: device,
		period: period,
		loop:   loop,
		logger: logger.OrDiscard(log).With(slog.String("device", device)),
		now:    time.Now,
	}
}

// Start implements provider.Accelerometer. The device is read once up front so a missing or unreadable
// device fails right away.
func (a *Accelerometer) Start(fn func(motion.Sample)) error {
	if a.cancel != nil {
		return nil
	}
	if _, err := a.Read(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	poll := job.New("accelerometer", a.period, func(ctx context.Context) error {
		sample, err := a.Read()
		if err != nil {
			return err
		}
		a.loop.Post(func() {
			if ctx.Err() == nil {
				fn(sample)
			}
		})
		return nil
	}, a.logger)
	go func() {
		if err := poll.Start(ctx); err != nil {
			a.logger.Error("accelerometer polling failed", logger.Err(err))
		}
	}()
	return nil
}

// Stop implements provider.Accelerometer.
func (a *Accelerometer) Stop() error {
	if a.cancel == nil {
		return nil
	}
	a.cancel()
	a.cancel = nil
	return nil
}

// Read returns one sample in m/s². Per axis scale files take precedence over the shared one.
func (a *Accelerometer) Read() (motion.Sample, error) {
	shared, err := readFloat(filepath.Join(a.device, "in_accel_scale"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return motion.Sample{}, err
	}
	if err != nil {
		shared = 1
	}

	var axes [3]float64
	for i, axis := range []string{"x", "y", "z"} {
		raw, err := readFloat(filepath.Join(a.device, "in_accel_"+axis+"_raw"))
		if err != nil {
			return motion.Sample{}, err
		}
		scale, err := readFloat(filepath.Join(a.device, "in_accel_"+axis+"_scale"))
		if err != nil {
			scale = shared
		}
		axes[i] = raw * scale
	}
	return motion.Sample{X: axes[0], Y: axes[1], Z: axes[2], At: a.now()}, nil
}

func readFloat(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %q: %w", path, err)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return value, nil
}
