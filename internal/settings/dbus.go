// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/locationd/internal/logger"
)

const (
	// DBusInterface is the interface of the Changed signal carrying (key string, value int32).
	DBusInterface = "dev.neessen.locationd.Settings"
	DBusMember    = "Changed"

	signalBufferSize    = 16
	busReconnectDelay   = 5 * time.Second
	subscribeRetryDelay = 10 * time.Second
)

var ErrMalformedSignal = errors.New("malformed settings signal")

// Apply stores the setting carried by a Changed signal.
func (s *Store) Apply(sgn *dbus.Signal) error {
	if sgn == nil || len(sgn.Body) != 2 {
		return ErrMalformedSignal
	}
	key, ok := sgn.Body[0].(string)
	if !ok {
		return fmt.Errorf("%w: key is %T", ErrMalformedSignal, sgn.Body[0])
	}
	var value int
	switch v := sgn.Body[1].(type) {
	case int32:
		value = int(v)
	case bool:
		if v {
			value = 1
		}
	default:
		return fmt.Errorf("%w: value is %T", ErrMalformedSignal, sgn.Body[1])
	}
	return s.SetInt(Key(key), value)
}

// WatchDBus applies Changed signals received on the system bus until ctx is canceled. Lost connections
// are re-established.
func (s *Store) WatchDBus(ctx context.Context) {
	for {
		conn := s.connectSystemBus(ctx)
		if conn == nil {
			return
		}

		if err := conn.AddMatchSignal(dbus.WithMatchInterface(DBusInterface),
			dbus.WithMatchMember(DBusMember)); err != nil {
			s.logger.Error("failed to subscribe to settings signal", logger.Err(err))
			_ = conn.Close()
			select {
			case <-time.After(subscribeRetryDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		s.logger.Debug("watching settings on the system bus", slog.String("interface", DBusInterface))
		s.applySignals(ctx, sigCh)

		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			s.logger.Error("failed to close system bus connection", logger.Err(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Store) applySignals(ctx context.Context, sigCh <-chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sgn, ok := <-sigCh:
			if !ok {
				return
			}
			if sgn.Name != DBusInterface+"."+DBusMember {
				continue
			}
			if err := s.Apply(sgn); err != nil {
				s.logger.Warn("failed to apply settings signal", logger.Err(err))
			}
		}
	}
}

func (s *Store) connectSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := dbus.ConnectSystemBus()
		if err == nil {
			return conn
		}
		s.logger.Warn("failed to connect to system bus", logger.Err(err))
		select {
		case <-time.After(busReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}
