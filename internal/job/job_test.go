// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/locationd/internal/logger"
)

func TestJob_Start(t *testing.T) {
	t.Run("job runs at the interval", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var count atomic.Int32
			ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond*55)
			defer cancel()

			testJob := New("poll", time.Millisecond*10, func(context.Context) error {
				count.Add(1)
				return nil
			}, logger.Discard())
			if err := testJob.Start(ctx); err != nil {
				t.Fatalf("failed to start job: %s", err)
			}
			synctest.Wait()

			if count.Load() != 5 {
				t.Errorf("expected job to execute 5 times, got %d", count.Load())
			}
			if testJob.Runs() != 5 {
				t.Errorf("expected 5 runs, got %d", testJob.Runs())
			}
		})
	})
	t.Run("overlapping ticks are skipped", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond*55)
			defer cancel()

			testJob := New("slow", time.Millisecond*10, func(ctx context.Context) error {
				select {
				case <-ctx.Done():
				case <-time.After(time.Millisecond * 25):
				}
				return nil
			}, logger.Discard())
			_ = testJob.Start(ctx)
			synctest.Wait()

			if testJob.Skipped() == 0 {
				t.Error("expected skipped ticks")
			}
			if testJob.Runs()+testJob.Skipped() != 5 {
				t.Errorf("expected 5 ticks, got %d runs and %d skipped", testJob.Runs(), testJob.Skipped())
			}
		})
	})
	t.Run("task errors do not stop the job", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(t.Context(), time.Millisecond*35)
			defer cancel()

			testJob := New("failing", time.Millisecond*10, func(context.Context) error {
				return errors.New("intentionally failing")
			}, logger.Discard())
			_ = testJob.Start(ctx)
			synctest.Wait()

			if testJob.Runs() != 3 {
				t.Errorf("expected 3 runs, got %d", testJob.Runs())
			}
		})
	})
	t.Run("invalid job returns an error", func(t *testing.T) {
		if err := New("nil", time.Millisecond, nil, nil).Start(t.Context()); !errors.Is(err, ErrInvalidJob) {
			t.Errorf("expected ErrInvalidJob, got %v", err)
		}
		noop := func(context.Context) error { return nil }
		if err := New("zero", 0, noop, nil).Start(t.Context()); !errors.Is(err, ErrInvalidJob) {
			t.Errorf("expected ErrInvalidJob, got %v", err)
		}
	})
}
