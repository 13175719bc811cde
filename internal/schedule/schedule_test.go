// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/locationd/internal/logger"
)

func TestLoop(t *testing.T) {
	t.Run("posted functions run in order", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			loop := NewLoop()
			var order []int
			for i := range 5 {
				loop.Post(func() { order = append(order, i) })
			}
			go loop.Run(ctx)
			synctest.Wait()
			cancel()
			<-loop.Done()

			if len(order) != 5 {
				t.Fatalf("expected 5 executions, got %d", len(order))
			}
			for i, v := range order {
				if v != i {
					t.Errorf("expected %d at position %d, got %d", i, i, v)
				}
			}
		})
	})
	t.Run("call waits for completion", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			loop := NewLoop()
			go loop.Run(ctx)

			ran := false
			if err := loop.Call(ctx, func() { ran = true }); err != nil {
				t.Fatalf("call failed: %s", err)
			}
			if !ran {
				t.Error("expected function to have run")
			}
		})
	})
	t.Run("call on a stopped loop fails", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			loop := NewLoop()
			go loop.Run(ctx)
			cancel()
			<-loop.Done()

			err := loop.Call(t.Context(), func() {})
			if !errors.Is(err, ErrLoopStopped) {
				t.Errorf("expected ErrLoopStopped, got %v", err)
			}
		})
	})
	t.Run("functions may post from the loop", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()
			loop := NewLoop()
			go loop.Run(ctx)

			var count atomic.Int32
			loop.Post(func() {
				count.Add(1)
				loop.Post(func() { count.Add(1) })
			})
			synctest.Wait()
			if count.Load() != 2 {
				t.Errorf("expected 2 executions, got %d", count.Load())
			}
		})
	})
}

func TestManual(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("after func fires once", func(t *testing.T) {
		m := NewManual(start)
		fired := 0
		if _, err := m.AfterFunc(5*time.Second, func() { fired++ }); err != nil {
			t.Fatalf("failed to schedule: %s", err)
		}
		m.Advance(4 * time.Second)
		if fired != 0 {
			t.Fatal("expected timer not to fire early")
		}
		m.Advance(time.Second)
		m.Advance(time.Minute)
		if fired != 1 {
			t.Errorf("expected exactly one invocation, got %d", fired)
		}
		if m.Pending() != 0 {
			t.Errorf("expected no pending timers, got %d", m.Pending())
		}
	})
	t.Run("every fires per period", func(t *testing.T) {
		m := NewManual(start)
		var at []time.Time
		timer, err := m.Every(2*time.Second, func() { at = append(at, m.Now()) })
		if err != nil {
			t.Fatalf("failed to schedule: %s", err)
		}
		m.Advance(7 * time.Second)
		if len(at) != 3 {
			t.Fatalf("expected 3 invocations, got %d", len(at))
		}
		if !at[2].Equal(start.Add(6 * time.Second)) {
			t.Errorf("expected third invocation at +6s, got %s", at[2].Sub(start))
		}
		if !timer.Stop() {
			t.Error("expected stop to report a pending timer")
		}
		if timer.Stop() {
			t.Error("expected second stop to report false")
		}
		m.Advance(10 * time.Second)
		if len(at) != 3 {
			t.Errorf("expected no invocation after stop, got %d", len(at))
		}
	})
	t.Run("due order and stop from a callback", func(t *testing.T) {
		m := NewManual(start)
		var order []string
		var late Timer
		_, _ = m.AfterFunc(2*time.Second, func() {
			order = append(order, "second")
			late.Stop()
		})
		_, _ = m.AfterFunc(time.Second, func() { order = append(order, "first") })
		late, _ = m.AfterFunc(3*time.Second, func() { order = append(order, "late") })
		m.Advance(5 * time.Second)
		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("unexpected order: %v", order)
		}
	})
	t.Run("invalid period", func(t *testing.T) {
		if _, err := NewManual(start).Every(0, func() {}); err == nil {
			t.Error("expected an error for a zero period")
		}
	})
}

func TestGocron(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	loop := NewLoop()
	go loop.Run(ctx)

	scheduler, err := NewGocron(loop, logger.Discard())
	if err != nil {
		t.Fatalf("failed to create scheduler: %s", err)
	}
	t.Cleanup(func() { _ = scheduler.Shutdown() })

	t.Run("after func runs on the loop", func(t *testing.T) {
		fired := make(chan struct{})
		if _, err = scheduler.AfterFunc(10*time.Millisecond, func() { close(fired) }); err != nil {
			t.Fatalf("failed to schedule: %s", err)
		}
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatal("timer did not fire")
		}
	})
	t.Run("stopped timer does not fire", func(t *testing.T) {
		var fired atomic.Bool
		timer, err := scheduler.AfterFunc(50*time.Millisecond, func() { fired.Store(true) })
		if err != nil {
			t.Fatalf("failed to schedule: %s", err)
		}
		timer.Stop()
		time.Sleep(200 * time.Millisecond)
		if fired.Load() {
			t.Error("expected stopped timer not to fire")
		}
	})
	t.Run("invalid period", func(t *testing.T) {
		if _, err = scheduler.Every(0, func() {}); err == nil {
			t.Error("expected an error for a zero period")
		}
	})
}
