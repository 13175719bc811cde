// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package batch implements the fixed capacity sample array collected during a batch session and the
// reader for the semicolon separated batch log.
package batch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// fields is the number of semicolon separated values of one batch log line.
const fields = 8

var (
	ErrIndexOutOfRange = errors.New("batch index out of range")
	ErrInvalidCapacity = errors.New("batch capacity must be positive")
)

// Detail is one location sample of a batch.
type Detail struct {
	Timestamp          int64
	Latitude           float64
	Longitude          float64
	Altitude           float64
	Speed              float64
	Direction          float64
	HorizontalAccuracy float64
	VerticalAccuracy   float64
}

// Batch is an owned array of Details with a capacity fixed at creation.
type Batch struct {
	details []Detail
}

// New allocates a zeroed Batch holding n samples.
func New(n int) (*Batch, error) {
	if n <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Batch{details: make([]Detail, n)}, nil
}

// Len returns the capacity of the batch.
func (b *Batch) Len() int {
	return len(b.details)
}

// SetDetail stores d at index i.
func (b *Batch) SetDetail(i int, d Detail) error {
	if i < 0 || i >= len(b.details) {
		return fmt.Errorf("%w: %d (capacity %d)", ErrIndexOutOfRange, i, len(b.details))
	}
	b.details[i] = d
	return nil
}

// Detail returns the sample stored at index i.
func (b *Batch) Detail(i int) (Detail, error) {
	if i < 0 || i >= len(b.details) {
		return Detail{}, fmt.Errorf("%w: %d (capacity %d)", ErrIndexOutOfRange, i, len(b.details))
	}
	return b.details[i], nil
}

// Details returns a copy of all samples.
func (b *Batch) Details() []Detail {
	out := make([]Detail, len(b.details))
	copy(out, b.details)
	return out
}

// Clone returns a deep copy with an independent lifetime.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	return &Batch{details: b.Details()}
}

// ParseLine converts one batch log line into a Detail. The fields are, in order: timestamp, latitude,
// longitude, altitude, speed, direction, horizontal accuracy and vertical accuracy. Missing trailing fields
// stay zero and fields beyond the eighth are ignored.
func ParseLine(line string) (Detail, error) {
	var d Detail
	targets := []*float64{nil, &d.Latitude, &d.Longitude, &d.Altitude, &d.Speed, &d.Direction,
		&d.HorizontalAccuracy, &d.VerticalAccuracy}

	line = strings.TrimSpace(line)
	if line == "" {
		return d, nil
	}
	for i, raw := range strings.SplitN(line, ";", fields+1) {
		if i == fields {
			break
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return d, fmt.Errorf("field %d: %w", i, err)
		}
		if i == 0 {
			d.Timestamp = int64(value)
			continue
		}
		*targets[i] = value
	}
	return d, nil
}

// Read fills a new batch of n samples from r, one line per sample. A malformed line only leaves its own
// row partially filled and a short input leaves the remaining rows zeroed. All line errors are joined into
// the returned error; the batch is returned regardless.
func Read(r io.Reader, n int) (*Batch, error) {
	b, err := New(n)
	if err != nil {
		return nil, err
	}

	var errs []error
	scanner := bufio.NewScanner(r)
	for i := 0; i < n && scanner.Scan(); i++ {
		d, err := ParseLine(scanner.Text())
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", i+1, err))
		}
		b.details[i] = d
	}
	if err = scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return b, errors.Join(errs...)
}

// LoadFile reads up to n samples from the batch log at path.
func LoadFile(path string, n int) (*Batch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch log: %w", err)
	}
	defer func() { _ = file.Close() }()
	return Read(file, n)
}
