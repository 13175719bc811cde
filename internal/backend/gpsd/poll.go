// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"github.com/wneessen/locationd/internal/fix"
)

const (
	fallbackAccuracy3DFix = 10  // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25  // worse than 3D, but still accurate enough
	fallbackAccuracyNoFix = 1e6 // effectively unusable
	pollTimeout           = time.Second * 2
	maxNMEASentences      = 32
)

var ErrNoReport = errors.New("no report received from gpsd")

// pollClient is a minimal one-shot gpsd client. Every call opens its own connection.
type pollClient struct {
	addr string
}

// tpv matches the subset of gpsd's TPV report we care about.
type tpv struct {
	Class string    `json:"class"`
	Mode  int       `json:"mode"`
	Time  time.Time `json:"time"`
	Lat   float64   `json:"lat"`
	Lon   float64   `json:"lon"`
	Alt   float64   `json:"alt"`
	Track float64   `json:"track"`
	Speed float64   `json:"speed"`
	Climb float64   `json:"climb"`
	Epx   float64   `json:"epx"`
	Epy   float64   `json:"epy"`
	Eph   float64   `json:"eph"`
	Epv   float64   `json:"epv"`
}

// sample converts the report into a fix. now stamps reports without a time.
func (r tpv) sample(now time.Time) (fix.Position, fix.Velocity, fix.Accuracy) {
	ts := now.Unix()
	if !r.Time.IsZero() {
		ts = r.Time.Unix()
	}
	status := fix.Status2DFix
	if r.Mode >= 3 {
		status = fix.Status3DFix
	}
	pos := fix.Position{Timestamp: ts, Latitude: r.Lat, Longitude: r.Lon, Altitude: r.Alt, Status: status}
	vel := fix.Velocity{Timestamp: ts, Speed: r.Speed, Direction: r.Track, Climb: r.Climb}
	acc := fix.Accuracy{Level: fix.LevelDetailed, Horizontal: horizontalAccuracy(r), Vertical: r.Epv}
	return pos, vel, acc
}

// hasFix reports whether the report carries at least a 2D fix.
func (r tpv) hasFix() bool {
	return r.Mode >= 2
}

func (c *pollClient) dial(ctx context.Context, watch string) (net.Conn, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gpsd: %w", err)
	}

	// Respect context deadline if present, otherwise we add a safety net so we don't hang
	// forever if ctx has no deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(pollTimeout))
	}
	if _, err = fmt.Fprint(conn, "?WATCH="+watch+"\n"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to write WATCH: %w", err)
	}
	return conn, nil
}

// Poll connects to gpsd, enables watch mode and returns the first TPV report with a fix.
func (c *pollClient) Poll(ctx context.Context) (fix.Position, fix.Velocity, fix.Accuracy, error) {
	conn, err := c.dial(ctx, `{"enable":true,"json":true}`)
	if err != nil {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, err
	}
	defer func() {
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if err = ctx.Err(); err != nil {
			return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, err
		}
		var report tpv
		if err = json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue
		}
		if report.Class != "TPV" || !report.hasFix() {
			continue
		}
		pos, vel, acc := report.sample(time.Now())
		return pos, vel, acc, nil
	}
	if err = scanner.Err(); err != nil {
		return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, fmt.Errorf("failed to scan gpsd response: %w", err)
	}
	return fix.Position{}, fix.Velocity{}, fix.NoAccuracy, ErrNoReport
}

// NMEA connects to gpsd in NMEA watch mode and returns the sentences of one reporting cycle, which ends
// with the first RMC sentence.
func (c *pollClient) NMEA(ctx context.Context) (string, error) {
	conn, err := c.dial(ctx, `{"enable":true,"nmea":true}`)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = conn.Close()
	}()

	var sentences []string
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() && len(sentences) < maxNMEASentences {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sentences = append(sentences, line)
		if len(line) > 6 && line[3:6] == "RMC" {
			break
		}
	}
	if len(sentences) == 0 {
		if err = scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to scan gpsd response: %w", err)
		}
		return "", ErrNoReport
	}
	return strings.Join(sentences, "\n"), nil
}

func horizontalAccuracy(r tpv) float64 {
	switch {
	case r.Eph > 0:
		return r.Eph
	case r.Epx > 0 && r.Epy > 0:
		// sqrt(epx² + epy²)
		return math.Hypot(r.Epx, r.Epy)
	}
	switch r.Mode {
	case 3:
		return fallbackAccuracy3DFix
	case 2:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}
