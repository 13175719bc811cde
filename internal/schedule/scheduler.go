// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package schedule

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/wneessen/locationd/internal/logger"
)

// Timer is a pending scheduled function.
type Timer interface {
	// Stop prevents any future invocation. An invocation that is already running is not interrupted.
	// It returns false if the timer was already stopped.
	Stop() bool
}

// Scheduler arms timers whose functions run on the event loop.
type Scheduler interface {
	Now() time.Time
	// AfterFunc runs fn once after d.
	AfterFunc(d time.Duration, fn func()) (Timer, error)
	// Every runs fn every d, starting d from now.
	Every(d time.Duration, fn func()) (Timer, error)
}

// Gocron is a Scheduler backed by a gocron scheduler. Job tasks run on gocron's goroutines and only post
// the timer function onto the loop.
type Gocron struct {
	scheduler gocron.Scheduler
	loop      Poster
	logger    *logger.Logger
}

// NewGocron creates and starts a gocron backed Scheduler posting onto loop.
func NewGocron(loop Poster, log *logger.Logger) (*Gocron, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	scheduler.Start()
	return &Gocron{scheduler: scheduler, loop: loop, logger: logger.OrDiscard(log)}, nil
}

// Shutdown stops all timers.
func (g *Gocron) Shutdown() error {
	return g.scheduler.Shutdown()
}

// Now implements Scheduler.
func (g *Gocron) Now() time.Time {
	return time.Now()
}

// AfterFunc implements Scheduler.
func (g *Gocron) AfterFunc(d time.Duration, fn func()) (Timer, error) {
	definition := gocron.OneTimeJob(gocron.OneTimeJobStartImmediately())
	if d > 0 {
		definition = gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(d)))
	}
	return g.newTimer(definition, fn, true)
}

// Every implements Scheduler.
func (g *Gocron) Every(d time.Duration, fn func()) (Timer, error) {
	if d <= 0 {
		return nil, fmt.Errorf("invalid timer interval: %s", d)
	}
	return g.newTimer(gocron.DurationJob(d), fn, false)
}

func (g *Gocron) newTimer(definition gocron.JobDefinition, fn func(), once bool) (Timer, error) {
	timer := &gocronTimer{scheduler: g.scheduler}
	task := func() {
		g.loop.Post(func() {
			if timer.canceled.Load() {
				return
			}
			if once {
				timer.Stop()
			}
			fn()
		})
	}

	job, err := g.scheduler.NewJob(definition, gocron.NewTask(task),
		gocron.WithSingletonMode(gocron.LimitModeReschedule))
	if err != nil {
		return nil, fmt.Errorf("failed to schedule timer: %w", err)
	}
	timer.job = job
	g.logger.Debug("timer scheduled", slog.String("job_id", job.ID().String()))
	return timer, nil
}

type gocronTimer struct {
	scheduler gocron.Scheduler
	job       gocron.Job
	canceled  atomic.Bool
}

func (t *gocronTimer) Stop() bool {
	if t.canceled.Swap(true) {
		return false
	}
	if t.job != nil {
		_ = t.scheduler.RemoveJob(t.job.ID())
	}
	return true
}
