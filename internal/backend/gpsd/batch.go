// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/job"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/provider"
)

// recorder appends samples to the batch log at the batch interval.
type recorder struct {
	file     *os.File
	interval uint
	count    int
	lastTS   int64
	cancel   context.CancelFunc
}

// formatDetail renders a sample as one batch log line.
func formatDetail(pos fix.Position, vel fix.Velocity, acc fix.Accuracy) string {
	values := []float64{pos.Latitude, pos.Longitude, pos.Altitude, vel.Speed, vel.Direction, acc.Horizontal,
		acc.Vertical}
	fields := make([]string, 0, len(values)+1)
	fields = append(fields, strconv.FormatInt(pos.Timestamp, 10))
	for _, v := range values {
		fields = append(fields, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return strings.Join(fields, ";") + "\n"
}

func (r *recorder) record(pos fix.Position, vel fix.Velocity, acc fix.Accuracy) error {
	if r.count > 0 && pos.Timestamp-r.lastTS < int64(r.interval) {
		return nil
	}
	if _, err := io.WriteString(r.file, formatDetail(pos, vel, acc)); err != nil {
		return fmt.Errorf("failed to write batch log: %w", err)
	}
	r.count++
	r.lastTS = pos.Timestamp
	return nil
}

func (r *recorder) reset() error {
	r.count = 0
	if err := r.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate batch log: %w", err)
	}
	_, err := r.file.Seek(0, io.SeekStart)
	return err
}

// StartBatch implements provider.Batcher. Samples are recorded every interval seconds; every period
// seconds fn receives the number of recorded samples and the log starts over.
func (b *Backend) StartBatch(interval, period uint, fn func(enabled bool, count int)) error {
	if b.config.BatchLog == "" {
		return fmt.Errorf("%w: no batch log configured", provider.ErrConfiguration)
	}
	if b.batch != nil {
		return nil
	}
	file, err := os.OpenFile(b.config.BatchLog, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open batch log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.batch = &recorder{file: file, interval: interval, cancel: cancel}
	flush := job.New("gpsd-batch", time.Duration(period)*time.Second, func(context.Context) error {
		b.loop.Post(func() { b.flush(ctx, fn) })
		return nil
	}, b.logger)
	go func() {
		if err := flush.Start(ctx); err != nil {
			b.logger.Error("batch flush job failed", logger.Err(err))
		}
	}()
	b.ensureStream()
	b.logger.Debug("batch recording started", slog.String("file", b.config.BatchLog))
	return nil
}

// StopBatch implements provider.Batcher.
func (b *Backend) StopBatch() error {
	if b.batch == nil {
		return nil
	}
	rec := b.batch
	b.batch = nil
	rec.cancel()
	b.releaseStream()
	if err := rec.file.Close(); err != nil {
		return fmt.Errorf("failed to close batch log: %w", err)
	}
	return nil
}

func (b *Backend) flush(ctx context.Context, fn func(bool, int)) {
	if ctx.Err() != nil || b.batch == nil || b.batch.count == 0 {
		return
	}
	if err := b.batch.file.Sync(); err != nil {
		b.logger.Warn("failed to sync batch log", logger.Err(err))
	}
	fn(true, b.batch.count)
	if err := b.batch.reset(); err != nil {
		b.logger.Error("failed to reset batch log", logger.Err(err))
	}
}
