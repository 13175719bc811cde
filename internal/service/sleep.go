// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/locationd/internal/logger"
)

const (
	dbusInterface   = "org.freedesktop.login1.Manager"
	dbusWatchMember = "PrepareForSleep"

	debounceWindow   = 2 * time.Second
	signalBufferSize = 8

	busReconnectDelay   = 5 * time.Second
	resumeSettleDelay   = 5 * time.Second
	reconnectDelay      = 2 * time.Second
	subscribeRetryDelay = 10 * time.Second
)

// monitorSleepResume suspends the location provider while the system sleeps. Lost system bus
// connections are re-established until ctx is canceled.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResume time.Time

	for {
		conn := s.connectToSystemBus(ctx)
		if conn == nil {
			return
		}
		if !s.subscribeSleep(ctx, conn) {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		s.logger.Debug("subscribed to dbus signal", slog.String("interface", dbusInterface),
			slog.String("member", dbusWatchMember))

		s.handleSleepSignals(ctx, sigCh, &lastResume)

		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Service) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := dbus.ConnectSystemBus()
		if err == nil {
			go func() {
				<-ctx.Done()
				_ = conn.Close()
			}()
			return conn
		}
		s.logger.Debug("system bus not reachable", logger.Err(err))
		select {
		case <-time.After(busReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Service) subscribeSleep(ctx context.Context, conn *dbus.Conn) bool {
	err := conn.AddMatchSignal(dbus.WithMatchInterface(dbusInterface), dbus.WithMatchMember(dbusWatchMember))
	if err == nil {
		return true
	}
	s.logger.Error("failed to subscribe to dbus signal", slog.String("interface", dbusInterface),
		slog.String("member", dbusWatchMember), logger.Err(err))
	_ = conn.Close()
	select {
	case <-time.After(subscribeRetryDelay):
	case <-ctx.Done():
	}
	return false
}

func (s *Service) handleSleepSignals(ctx context.Context, sigCh <-chan *dbus.Signal, lastResume *time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				return
			}
			s.processSleepSignal(ctx, sgn, lastResume)
		}
	}
}

// processSleepSignal stops the provider before sleep and restarts it after resume. Resume signals within
// the debounce window are ignored.
func (s *Service) processSleepSignal(ctx context.Context, sgn *dbus.Signal, lastResume *time.Time) {
	if sgn.Name != dbusInterface+"."+dbusWatchMember || len(sgn.Body) != 1 {
		return
	}
	sleeping, ok := sgn.Body[0].(bool)
	if !ok {
		return
	}
	if sleeping {
		s.loop.Post(s.suspend)
		return
	}

	now := time.Now()
	if now.Sub(*lastResume) < debounceWindow {
		return
	}
	*lastResume = now

	// gpsd and the wifi interface need a moment after wake up
	select {
	case <-ctx.Done():
		return
	case <-time.After(resumeSettleDelay):
	}
	s.loop.Post(s.resume)
}

func (s *Service) suspend() {
	if s.object == nil || !s.object.Started() {
		return
	}
	s.logger.Debug("system is going to sleep, stopping location provider")
	s.stop()
	s.suspended = true
}

func (s *Service) resume() {
	if !s.suspended {
		return
	}
	s.suspended = false
	s.logger.Debug("system resumed, restarting location provider")
	s.start()
}
