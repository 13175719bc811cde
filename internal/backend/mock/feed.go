// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/job"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/schedule"
)

const (
	// FeedAccuracy is the horizontal accuracy reported for feed coordinates. We consider the file as the
	// most accurate data available.
	FeedAccuracy = 5
	// DefaultFeedPeriod is the time between two feed coordinates.
	DefaultFeedPeriod = time.Second * 10
)

var ErrNoCoordinates = errors.New("no valid coordinates found in feed file")

// Coordinate is one feed line.
type Coordinate struct {
	Lat, Lon float64
}

// Sink receives feed coordinates on the event loop, typically the mock provider's SetMockLocation.
type Sink func(pos fix.Position, vel fix.Velocity, acc fix.Accuracy) error

// Feed replays a file of "lat,lon" lines into a Sink, one coordinate per period. The file is re-read on
// every tick so it can be edited while the daemon runs; after the last line it starts over.
type Feed struct {
	path   string
	period time.Duration
	loop   schedule.Poster
	sink   Sink
	logger *logger.Logger
	now    func() time.Time

	next int
}

// NewFeed returns a Feed for the file at path. A non-positive period selects DefaultFeedPeriod.
func NewFeed(path string, period time.Duration, loop schedule.Poster, sink Sink, log *logger.Logger) *Feed {
	if period <= 0 {
		period = DefaultFeedPeriod
	}
	return &Feed{
		path:   path,
		period: period,
		loop:   loop,
		sink:   sink,
		logger: logger.OrDiscard(log).With(slog.String("feed", path)),
		now:    time.Now,
	}
}

// Run replays the feed until ctx is canceled.
func (f *Feed) Run(ctx context.Context) error {
	if err := f.tick(ctx); err != nil {
		f.logger.Warn("failed to replay mock feed", logger.Err(err))
	}
	return job.New("mock-feed", f.period, f.tick, f.logger).Start(ctx)
}

func (f *Feed) tick(context.Context) error {
	coords, err := ReadCoordinates(f.path)
	if err != nil {
		return err
	}
	coord := coords[f.next%len(coords)]
	f.next = (f.next + 1) % len(coords)

	ts := f.now().Unix()
	pos := fix.Position{Timestamp: ts, Latitude: coord.Lat, Longitude: coord.Lon, Status: fix.StatusMock}
	vel := fix.Velocity{Timestamp: ts}
	acc := fix.Accuracy{Level: fix.LevelDetailed, Horizontal: FeedAccuracy}
	f.loop.Post(func() {
		if err := f.sink(pos, vel, acc); err != nil {
			f.logger.Debug("mock location not applied", logger.Err(err))
		}
	})
	return nil
}

// ReadCoordinates reads every valid "lat,lon" line of the file at path. Comments starting with '#' and
// malformed lines are skipped.
func ReadCoordinates(path string) ([]Coordinate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed file %q: %w", path, err)
	}
	var coords []Coordinate
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		coords = append(coords, Coordinate{Lat: lat, Lon: lon})
	}
	if len(coords) == 0 {
		return nil, ErrNoCoordinates
	}
	return coords, nil
}
