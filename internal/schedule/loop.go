// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package schedule provides the single threaded cooperative event loop all provider callbacks run on and
// the cancelable timers scheduled onto it.
package schedule

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned by Call when the loop is no longer running.
var ErrLoopStopped = errors.New("event loop is not running")

// Poster queues a function for execution on an event loop.
type Poster interface {
	Post(fn func())
}

// Loop executes posted functions one after another on the goroutine that calls Run. Posting never blocks,
// so backends and timers may post from any goroutine without stalling.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// NewLoop returns an idle Loop. Functions posted before Run are executed once Run is called.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues fn. Functions posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes queued functions until ctx is canceled. It must be called at most once.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			fn()
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Call executes fn on the loop and waits for it to return. It must not be called from the loop itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
