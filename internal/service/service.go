// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package service wires the providers, their backends and the remote observers into the locationd daemon.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/wneessen/locationd/internal/backend"
	"github.com/wneessen/locationd/internal/backend/gpsd"
	"github.com/wneessen/locationd/internal/backend/mock"
	"github.com/wneessen/locationd/internal/backend/sensor"
	"github.com/wneessen/locationd/internal/backend/wps"
	"github.com/wneessen/locationd/internal/config"
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/geofence"
	"github.com/wneessen/locationd/internal/http"
	"github.com/wneessen/locationd/internal/location"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/metrics"
	"github.com/wneessen/locationd/internal/mqtt"
	"github.com/wneessen/locationd/internal/privacy"
	"github.com/wneessen/locationd/internal/provider"
	"github.com/wneessen/locationd/internal/schedule"
	"github.com/wneessen/locationd/internal/settings"
	"github.com/wneessen/locationd/internal/stream"
)

const (
	mqttConnectTimeout = 10 * time.Second
	stopTimeout        = 5 * time.Second
)

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	method    provider.Method
	loop      *schedule.Loop
	scheduler *schedule.Gocron
	store     *settings.Store
	manager   *location.Manager
	fences    []geofence.Fence

	metrics   *metrics.Collector
	stream    *stream.Hub
	publisher *mqtt.Publisher

	gpsd    *gpsd.Backend
	wps     *wps.Backend
	scanner *wps.WifiScanner
	mock  *mock.Backend
	accel *sensor.Accelerometer

	// owned by the loop
	object    *location.Object
	suspended bool
	detach    []func()
}

func New(conf *config.Config, log *logger.Logger) (*Service, error) {
	log = logger.OrDiscard(log)
	method, err := conf.Method()
	if err != nil {
		return nil, err
	}

	loop := schedule.NewLoop()
	scheduler, err := schedule.NewGocron(loop, log)
	if err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(conf.Settings.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}
	store, err := settings.Open(conf.Settings.Path, settings.WithDispatcher(loop.Post),
		settings.WithLogger(log.With(slog.String("component", "settings"))))
	if err != nil {
		return nil, err
	}

	service := &Service{
		config:    conf,
		logger:    log,
		method:    method,
		loop:      loop,
		scheduler: scheduler,
		store:     store,
		metrics:   metrics.New(),
		stream:    stream.New(log.With(slog.String("component", "stream"))),
		mock:      mock.New(scheduler, log),
	}
	service.gpsd = gpsd.New(gpsd.Config{
		Host:     conf.GPSD.Host,
		Port:     conf.GPSD.Port,
		BatchLog: conf.GPSD.BatchLog,
		Retry:    conf.GPSD.Retry,
	}, loop, store, log)

	if service.wps, err = service.newWPSBackend(); err != nil {
		log.Warn("network positioning is not available", logger.Err(err))
	}
	if service.accel, err = service.newAccelerometer(); err != nil {
		log.Debug("no accelerometer available, motion detection disabled", logger.Err(err))
	}

	if conf.Geofence.File != "" {
		if service.fences, err = geofence.LoadFile(conf.Geofence.File); err != nil {
			service.close()
			return nil, err
		}
	}

	if conf.MQTT.Enabled {
		service.publisher, err = mqtt.New(mqtt.Config{
			Broker:      conf.MQTT.Broker,
			ClientID:    conf.MQTT.ClientID,
			Username:    conf.MQTT.Username,
			Password:    conf.MQTT.Password,
			TopicPrefix: conf.MQTT.TopicPrefix,
			QoS:         byte(conf.MQTT.QoS), //nolint:gosec
			Retain:      conf.MQTT.Retain,
		}, log.With(slog.String("component", "mqtt")))
		if err != nil {
			service.close()
			return nil, err
		}
	}

	service.manager, err = location.Init(location.Config{
		Settings:  store,
		Privacy:   privacy.NewStatic(conf.Privacy.Denied...),
		Factory:   service.newProvider,
		Supported: service.supported,
		Logger:    log,
	})
	if err != nil {
		service.close()
		return nil, err
	}

	return service, nil
}

func (s *Service) newWPSBackend() (*wps.Backend, error) {
	var resolver wps.Resolver
	var err error
	switch s.config.WPS.Resolver {
	case config.ResolverGoogle:
		resolver, err = wps.NewGoogle(s.config.WPS.GoogleAPIKey)
	default:
		endpoint := s.config.WPS.Endpoint
		if endpoint == "" {
			endpoint = wps.DefaultIchnaeaEndpoint
		}
		resolver, err = wps.NewIchnaea(http.New(s.logger), endpoint)
	}
	if err != nil {
		return nil, err
	}

	scanner, err := wps.NewWifiScanner()
	if err != nil {
		return nil, err
	}
	s.scanner = scanner
	return wps.New(wps.Config{Period: s.config.WPS.Period, RateLimit: float64(s.config.WPS.RateLimit)},
		scanner, resolver, s.loop, s.store, s.logger)
}

func (s *Service) newAccelerometer() (*sensor.Accelerometer, error) {
	device := s.config.Sensor.Device
	if device == "" {
		var err error
		if device, err = sensor.Discover(sensor.DefaultRoot); err != nil {
			return nil, err
		}
	}
	return sensor.New(device, s.config.Sensor.Period, s.loop, s.logger.With(slog.String("backend", "sensor"))), nil
}

func (s *Service) supported(method provider.Method) bool {
	switch method {
	case provider.MethodWPS:
		return s.wps != nil
	case provider.MethodGPS, provider.MethodMock, provider.MethodPassive, provider.MethodFused:
		return true
	default:
		return false
	}
}

// newProvider builds the provider for method. Interface fields are only assigned for backends that
// exist so the providers never see a typed nil.
func (s *Service) newProvider(method provider.Method) (provider.Provider, error) {
	opts := provider.Options{
		Logger:    s.logger,
		Settings:  s.store,
		Scheduler: s.scheduler,
		BatchLog:  s.config.GPSD.BatchLog,
	}

	switch method {
	case provider.MethodGPS:
		return provider.NewGPS(s.gpsd, opts)
	case provider.MethodWPS:
		if s.wps == nil {
			return nil, fmt.Errorf("%w: no network positioning backend", provider.ErrNotAvailable)
		}
		return provider.NewWPS(s.wps, opts)
	case provider.MethodHybrid:
		gps, err := provider.NewGPS(s.gpsd, opts)
		if err != nil {
			return nil, err
		}
		var net *provider.WPS
		if s.wps != nil {
			if net, err = provider.NewWPS(s.wps, opts); err != nil {
				return nil, err
			}
		}
		return provider.NewHybrid(gps, net, opts)
	case provider.MethodMock:
		return provider.NewMock(s.mock, opts)
	case provider.MethodPassive:
		passive := backend.Passive{GPS: s.gpsd}
		if s.wps != nil {
			passive.WPS = s.wps
		}
		return provider.NewPassive(passive, opts)
	case provider.MethodFused:
		mode, err := s.config.FusedMode()
		if err != nil {
			return nil, err
		}
		fused := provider.FusedConfig{Mode: mode, BalancedInterval: s.config.Fused.BalancedInterval}
		if s.accel != nil {
			fused.Accelerometer = s.accel
		}
		return provider.NewFused(s.gpsd, fused, opts)
	default:
		return nil, fmt.Errorf("%w: %s", provider.ErrNotSupported, method)
	}
}

// Run starts the configured provider and blocks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	defer s.close()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go s.loop.Run(loopCtx)

	var err error
	if callErr := s.loop.Call(ctx, func() { err = s.open() }); callErr != nil {
		return callErr
	}
	if err != nil {
		return err
	}

	if s.config.Settings.WatchDBus {
		go s.store.WatchDBus(ctx)
	}
	go s.monitorSleepResume(ctx)
	if s.config.Mock.File != "" {
		go s.runMockFeed(ctx)
	}
	if s.publisher != nil {
		go s.connectMQTT(ctx)
	}

	httpErr := make(chan error, 1)
	if s.config.HTTP.Listen != "" {
		go func() { httpErr <- s.serveHTTP(ctx) }()
	}

	select {
	case <-ctx.Done():
	case err = <-httpErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if callErr := s.loop.Call(shutdownCtx, s.shutdown); callErr != nil {
		s.logger.Error("failed to stop provider", logger.Err(callErr))
	}
	return err
}

// open creates the location object, registers the observers and starts it. It runs on the loop.
func (s *Service) open() error {
	if !s.manager.IsSupportedMethod(s.method) {
		return fmt.Errorf("%w: %s", provider.ErrNotSupported, s.method)
	}
	if s.method == provider.MethodMock && s.config.Mock.File != "" {
		if err := s.manager.EnableMethod(provider.MethodMock, true); err != nil {
			s.logger.Warn("failed to enable mock locations for the feed", logger.Err(err))
		}
	}

	object, err := s.manager.New(s.method)
	if err != nil {
		return err
	}
	s.object = object
	s.configure()

	bus := object.Bus()
	s.detach = append(s.detach, s.metrics.Attach(bus), s.stream.Attach(bus))
	if s.publisher != nil {
		s.detach = append(s.detach, s.publisher.Attach(bus))
	}

	if err = s.manager.AddSettingNotify(s.method, s.onSetting); err != nil {
		s.logger.Debug("method has no setting to follow", slog.String("method", s.method.String()),
			logger.Err(err))
	}
	s.start()
	return nil
}

func (s *Service) configure() {
	intervals := []struct {
		which   provider.Interval
		seconds uint
	}{
		{provider.IntervalPosition, s.config.Provider.PosInterval},
		{provider.IntervalVelocity, s.config.Provider.VelInterval},
		{provider.IntervalLocation, s.config.Provider.LocInterval},
		{provider.IntervalMin, s.config.Provider.MinInterval},
	}
	for _, iv := range intervals {
		if err := s.object.SetInterval(iv.which, iv.seconds); err != nil {
			s.logger.Warn("failed to set interval", slog.String("interval", iv.which.String()), logger.Err(err))
		}
	}
	if err := s.object.SetMinDistance(s.config.Provider.MinDistance); err != nil {
		s.logger.Warn("failed to set minimum distance", logger.Err(err))
	}
	for _, fence := range s.fences {
		if err := s.object.AddBoundary(fence.Boundary); err != nil {
			s.logger.Warn("failed to track boundary", slog.String("name", fence.Name), logger.Err(err))
		}
	}
}

// start starts the location object. A disabled setting is not an error, the object is started once the
// setting is turned on.
func (s *Service) start() {
	if s.object == nil || s.object.Started() {
		return
	}
	err := s.object.Start()
	switch {
	case err == nil:
		s.logger.Info("location provider started", slog.String("method", s.method.String()))
	case errors.Is(err, provider.ErrSettingOff):
		s.logger.Info("location provider is disabled by setting", slog.String("method", s.method.String()))
	default:
		s.logger.Error("failed to start location provider", slog.String("method", s.method.String()),
			logger.Err(err))
	}
}

func (s *Service) stop() {
	if s.object == nil || !s.object.Started() {
		return
	}
	if err := s.object.Stop(); err != nil {
		s.logger.Error("failed to stop location provider", logger.Err(err))
	}
}

func (s *Service) onSetting(method provider.Method, enabled bool) {
	s.logger.Debug("method setting changed", slog.String("method", method.String()),
		slog.Bool("enabled", enabled))
	if enabled && !s.suspended {
		s.start()
	}
}

func (s *Service) shutdown() {
	if s.object == nil {
		return
	}
	_ = s.manager.IgnoreSettingNotify(s.method)
	for _, detach := range s.detach {
		detach()
	}
	s.detach = nil
	if err := s.manager.Free(s.object); err != nil {
		s.logger.Error("failed to release location provider", logger.Err(err))
	}
	s.object = nil
}

func (s *Service) runMockFeed(ctx context.Context) {
	if s.method != provider.MethodMock {
		s.logger.Warn("mock feed configured but the mock method is not selected",
			slog.String("method", s.method.String()))
		return
	}
	feed := mock.NewFeed(s.config.Mock.File, s.config.Mock.Period, s.loop, s.setMockLocation,
		s.logger.With(slog.String("component", "mock-feed")))
	if err := feed.Run(ctx); err != nil {
		s.logger.Error("mock feed stopped", logger.Err(err))
	}
}

func (s *Service) setMockLocation(pos fix.Position, vel fix.Velocity, acc fix.Accuracy) error {
	if s.object == nil {
		return provider.ErrNotAvailable
	}
	return s.object.SetMockLocation(pos, vel, acc)
}

func (s *Service) connectMQTT(ctx context.Context) {
	connectCtx, cancel := context.WithTimeout(ctx, mqttConnectTimeout)
	defer cancel()
	if err := s.publisher.Connect(connectCtx); err != nil {
		s.logger.Warn("MQTT broker not reachable yet, retrying in background", logger.Err(err))
	}
	<-ctx.Done()
	s.publisher.Disconnect()
}

func (s *Service) close() {
	s.stream.Close()
	if s.scanner != nil {
		if err := s.scanner.Close(); err != nil {
			s.logger.Error("failed to close wifi scanner", logger.Err(err))
		}
	}
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error("failed to shut down scheduler", logger.Err(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("failed to close settings store", logger.Err(err))
	}
}
