// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package job runs a polling task at a fixed rate on its own goroutine.
package job

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wneessen/locationd/internal/logger"
)

var ErrInvalidJob = errors.New("job requires a task and a positive interval")

// Job is a named task polled at a fixed interval. Runs never overlap: a tick that fires while the previous
// run is still in progress is skipped and counted.
type Job struct {
	name     string
	interval time.Duration
	task     func(context.Context) error
	logger   *logger.Logger

	runs    atomic.Uint64
	skipped atomic.Uint64
}

// New returns a Job that calls task every interval once started.
func New(name string, interval time.Duration, task func(context.Context) error, log *logger.Logger) *Job {
	return &Job{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.OrDiscard(log).With("job", name),
	}
}

// Start runs the job until ctx is canceled. Task errors are logged and do not end the job.
func (j *Job) Start(ctx context.Context) error {
	if j.task == nil || j.interval <= 0 {
		return fmt.Errorf("%s: %w", j.name, ErrInvalidJob)
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// one slot: a run is in progress
	sem := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			select {
			case sem <- struct{}{}:
				go func() {
					defer func() { <-sem }()
					j.runs.Add(1)
					if err := j.task(ctx); err != nil && ctx.Err() == nil {
						j.logger.Warn("job run failed", logger.Err(err))
					}
				}()
			default:
				j.skipped.Add(1)
			}
		}
	}
}

// Runs returns the number of started runs.
func (j *Job) Runs() uint64 {
	return j.runs.Load()
}

// Skipped returns the number of ticks skipped because the previous run was still in progress.
func (j *Job) Skipped() uint64 {
	return j.skipped.Load()
}
