// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package schedule

import (
	"fmt"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler driven by Advance. Due timer functions run synchronously on the
// goroutine calling Advance, which therefore acts as the event loop.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

// NewManual returns a Manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc implements Scheduler.
func (m *Manual) AfterFunc(d time.Duration, fn func()) (Timer, error) {
	return m.add(d, 0, fn), nil
}

// Every implements Scheduler.
func (m *Manual) Every(d time.Duration, fn func()) (Timer, error) {
	if d <= 0 {
		return nil, fmt.Errorf("invalid timer interval: %s", d)
	}
	return m.add(d, d, fn), nil
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward by d, running every timer that becomes due in due order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		next := m.next(target)
		if next == nil {
			break
		}
		m.now = next.due
		if next.period > 0 {
			next.due = next.due.Add(next.period)
		} else {
			m.remove(next)
		}
		m.mu.Unlock()
		next.fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) add(d, period time.Duration, fn func()) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	timer := &manualTimer{owner: m, seq: m.seq, due: m.now.Add(d), period: period, fn: fn}
	m.timers = append(m.timers, timer)
	return timer
}

func (m *Manual) next(target time.Time) *manualTimer {
	var next *manualTimer
	for _, timer := range m.timers {
		if timer.due.After(target) {
			continue
		}
		if next == nil || timer.due.Before(next.due) || (timer.due.Equal(next.due) && timer.seq < next.seq) {
			next = timer
		}
	}
	return next
}

func (m *Manual) remove(timer *manualTimer) bool {
	for i, t := range m.timers {
		if t == timer {
			m.timers = append(m.timers[:i:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}

type manualTimer struct {
	owner  *Manual
	seq    uint64
	due    time.Time
	period time.Duration
	fn     func()
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	return t.owner.remove(t)
}
