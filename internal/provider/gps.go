// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"log/slog"

	"github.com/wneessen/locationd/internal/batch"
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/settings"
	"github.com/wneessen/locationd/internal/signalbus"
)

// GPS is a satellite positioning provider. Besides positions it reports the satellite constellation,
// raw NMEA sentences and supports batch recording if its backend does.
type GPS struct {
	backed

	batchLog string
	batching bool
	batch    *batch.Batch
}

// NewGPS returns a GPS provider driven by backend.
func NewGPS(backend Backend, opts Options) (*GPS, error) {
	g := &GPS{batchLog: opts.BatchLog}
	if err := g.init(MethodGPS, settings.GPSEnabled, backend, opts); err != nil {
		return nil, err
	}
	g.stateKey = settings.GPSState
	g.satellites = true
	g.extra = []Interval{IntervalSatellite, IntervalBatch, IntervalBatchPeriod}
	return g, nil
}

// Satellite implements Provider.
func (g *GPS) Satellite() (fix.Satellite, error) {
	if err := g.readable(); err != nil {
		return fix.Satellite{}, err
	}
	sat, ok := g.signals.Satellite.Get()
	if !ok {
		return fix.Satellite{}, ErrNotAvailable
	}
	return sat, nil
}

// LastSatellite implements Provider.
func (g *GPS) LastSatellite() (fix.Satellite, error) {
	if !g.settingOn(g.settingKey) {
		return fix.Satellite{}, ErrSettingOff
	}
	source, ok := g.backend.(SatelliteSource)
	if !ok {
		return fix.Satellite{}, ErrNotAvailable
	}
	return source.LastSatellite()
}

// NMEA implements Provider.
func (g *GPS) NMEA() (string, error) {
	if !g.settingOn(g.settingKey) {
		return "", ErrSettingOff
	}
	source, ok := g.backend.(NMEASource)
	if !ok {
		return "", ErrNotAvailable
	}
	return source.NMEA()
}

// StartBatch implements Provider. The backend records samples at the batch interval and reports the
// recorded count once per batch period.
func (g *GPS) StartBatch() error {
	if !g.settingOn(g.settingKey) {
		return ErrSettingOff
	}
	batcher, ok := g.backend.(Batcher)
	if !ok {
		return ErrNotAvailable
	}
	if g.batching {
		return nil
	}
	if err := batcher.StartBatch(g.batchInterval, g.batchPeriod, g.onBatch); err != nil {
		return err
	}
	g.batch = nil
	g.batching = true
	g.logger.Debug("batch mode started", slog.Uint64("interval", uint64(g.batchInterval)),
		slog.Uint64("period", uint64(g.batchPeriod)))
	return nil
}

// StopBatch implements Provider.
func (g *GPS) StopBatch() error {
	batcher, ok := g.backend.(Batcher)
	if !ok {
		return ErrNotAvailable
	}
	if !g.batching {
		return nil
	}
	g.batching = false
	return batcher.StopBatch()
}

// Batch implements Provider. It returns a copy of the batch loaded by the running batch recording.
func (g *GPS) Batch() (*batch.Batch, error) {
	if err := g.readable(); err != nil {
		return nil, err
	}
	if !g.batching || g.batch == nil {
		return nil, ErrNotAvailable
	}
	return g.batch.Clone(), nil
}

func (g *GPS) onBatch(enabled bool, count int) {
	if !enabled {
		g.batching = false
		return
	}
	if g.batchLog != "" && count > 0 {
		loaded, err := batch.LoadFile(g.batchLog, count)
		if err != nil {
			g.logger.Warn("batch log contains malformed lines", logger.Err(err))
		}
		if loaded != nil {
			g.batch = loaded
			count = loaded.Len()
		}
	}
	g.bus.Emit(signalbus.Event{Kind: signalbus.KindBatchUpdated, Count: count})
}
