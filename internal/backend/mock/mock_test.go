// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/provider"
	"github.com/wneessen/locationd/internal/schedule"
)

const (
	testLat = 40.7185
	testLon = -74.0025
)

var testEpoch = time.Date(2025, 11, 24, 10, 0, 0, 0, time.UTC)

type recorder struct {
	statuses  []fix.Status
	enabled   []bool
	locations []fix.Position
}

func (r *recorder) callbacks() provider.Callbacks {
	return provider.Callbacks{
		Location: func(_ bool, p fix.Position, _ fix.Velocity, _ fix.Accuracy) {
			r.locations = append(r.locations, p)
		},
	}
}

func (r *recorder) status(enabled bool, s fix.Status) {
	r.enabled = append(r.enabled, enabled)
	r.statuses = append(r.statuses, s)
}

func TestBackend(t *testing.T) {
	t.Run("injected locations are reported and repeated", func(t *testing.T) {
		sched := schedule.NewManual(testEpoch)
		b := New(sched, nil)
		rec := &recorder{}
		if err := b.Start(2, rec.callbacks()); err != nil {
			t.Fatalf("failed to start backend: %s", err)
		}
		pos := fix.Position{Latitude: testLat, Longitude: testLon}
		if err := b.SetMockLocation(pos, fix.Velocity{}, fix.NoAccuracy, rec.status); err != nil {
			t.Fatalf("failed to set mock location: %s", err)
		}
		if len(rec.locations) != 1 {
			t.Fatalf("expected the injected location right away, got %d", len(rec.locations))
		}
		first := rec.locations[0]
		if first.Timestamp != testEpoch.Unix() || first.Status != fix.StatusMock {
			t.Errorf("expected a stamped mock location, got %+v", first)
		}

		sched.Advance(4 * time.Second)
		if len(rec.locations) != 3 {
			t.Fatalf("expected two repetitions, got %d", len(rec.locations))
		}
		if rec.locations[2].Timestamp != testEpoch.Add(4*time.Second).Unix() {
			t.Errorf("expected repetitions to carry fresh timestamps, got %d", rec.locations[2].Timestamp)
		}

		if err := b.SetInterval(10); err != nil {
			t.Fatalf("failed to set interval: %s", err)
		}
		sched.Advance(5 * time.Second)
		if len(rec.locations) != 3 {
			t.Error("expected the new interval to apply")
		}

		if err := b.ClearMockLocation(rec.status); err != nil {
			t.Fatalf("failed to clear mock location: %s", err)
		}
		if len(rec.statuses) != 1 || rec.enabled[0] || rec.statuses[0] != fix.StatusNoFix {
			t.Errorf("expected a disabled status after clearing, got %v", rec.statuses)
		}
		if sched.Pending() != 0 {
			t.Errorf("expected no pending timers, got %d", sched.Pending())
		}
		if _, _, _, err := b.LastPosition(); !errors.Is(err, provider.ErrNotAvailable) {
			t.Errorf("expected no last position after clearing, got %v", err)
		}
	})
	t.Run("invalid coordinates are reported as mock failure", func(t *testing.T) {
		b := New(schedule.NewManual(testEpoch), nil)
		rec := &recorder{}
		_ = b.Start(1, rec.callbacks())
		tests := []fix.Position{
			{Timestamp: 1, Latitude: 91},
			{Timestamp: 1, Latitude: -91},
			{Timestamp: 1, Longitude: 181},
			{Timestamp: 1, Longitude: -181},
		}
		for _, pos := range tests {
			_ = b.SetMockLocation(pos, fix.Velocity{}, fix.NoAccuracy, rec.status)
		}
		if len(rec.statuses) != len(tests) {
			t.Fatalf("expected %d failures, got %d", len(tests), len(rec.statuses))
		}
		for _, s := range rec.statuses {
			if s != fix.StatusMockFail {
				t.Errorf("expected mock failure, got %s", s)
			}
		}
		if len(rec.locations) != 0 {
			t.Error("expected no location for invalid coordinates")
		}
	})
	t.Run("injection before start is reported on start", func(t *testing.T) {
		sched := schedule.NewManual(testEpoch)
		b := New(sched, nil)
		rec := &recorder{}
		pos := fix.Position{Timestamp: 100, Latitude: testLat, Longitude: testLon}
		_ = b.SetMockLocation(pos, fix.Velocity{}, fix.NoAccuracy, rec.status)
		last, vel, _, err := b.LastPosition()
		if err != nil || last.Timestamp != 100 || vel.Timestamp != 100 {
			t.Errorf("unexpected last position %+v %+v (%v)", last, vel, err)
		}

		_ = b.Start(1, rec.callbacks())
		if len(rec.locations) != 0 {
			t.Error("expected start not to invoke callbacks")
		}
		sched.Advance(time.Second)
		if len(rec.locations) != 1 {
			t.Errorf("expected the injection to repeat after start, got %d", len(rec.locations))
		}
		_ = b.Stop()
		sched.Advance(time.Minute)
		if len(rec.locations) != 1 {
			t.Error("expected no repetitions after stop")
		}
	})
}

func writeFeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write feed file: %s", err)
	}
	return path
}

func TestReadCoordinates(t *testing.T) {
	t.Run("valid lines are read", func(t *testing.T) {
		path := writeFeed(t, "# route\n40.7185, -74.0025\ninvalid\n1,2,3\n41.0,-74.5\n")
		coords, err := ReadCoordinates(path)
		if err != nil {
			t.Fatalf("failed to read coordinates: %s", err)
		}
		want := []Coordinate{{testLat, testLon}, {41, -74.5}}
		if len(coords) != len(want) || coords[0] != want[0] || coords[1] != want[1] {
			t.Errorf("expected %v, got %v", want, coords)
		}
	})
	t.Run("read of non-existent file fails", func(t *testing.T) {
		if _, err := ReadCoordinates("non-existent.txt"); err == nil {
			t.Error("expected error, but didn't get one")
		}
	})
	t.Run("reading invalid file fails", func(t *testing.T) {
		path := writeFeed(t, "# nothing\nfoo,bar\n")
		if _, err := ReadCoordinates(path); !errors.Is(err, ErrNoCoordinates) {
			t.Errorf("expected error to be %s, got %v", ErrNoCoordinates, err)
		}
	})
}

type queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *queue) Post(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = append(q.fns, fn)
}

func (q *queue) drain() {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func TestFeed_Run(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		path := writeFeed(t, "1,2\n3,4\n")
		loop := &queue{}
		var got []fix.Position
		sink := func(pos fix.Position, _ fix.Velocity, acc fix.Accuracy) error {
			if acc.Horizontal != FeedAccuracy {
				t.Errorf("expected feed accuracy, got %f", acc.Horizontal)
			}
			got = append(got, pos)
			return nil
		}
		feed := NewFeed(path, time.Second, loop, sink, nil)

		ctx, cancel := context.WithCancel(t.Context())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = feed.Run(ctx)
		}()

		time.Sleep(2500 * time.Millisecond)
		synctest.Wait()
		loop.drain()
		cancel()
		<-done

		if len(got) != 3 {
			t.Fatalf("expected 3 coordinates, got %d", len(got))
		}
		if got[0].Latitude != 1 || got[1].Latitude != 3 || got[2].Latitude != 1 {
			t.Errorf("expected the feed to wrap around, got %v", got)
		}
		if got[1].Timestamp-got[0].Timestamp != 1 {
			t.Errorf("expected one coordinate per second, got %v", got)
		}
	})
}
