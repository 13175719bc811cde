// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"

	"github.com/wneessen/locationd/internal/location"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/settings"
)

// HandleRestrictionSignal toggles the system wide location restriction whenever a signal is received.
func (s *Service) HandleRestrictionSignal(ctx context.Context, sigChan <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			s.loop.Post(s.toggleRestriction)
		}
	}
}

func (s *Service) toggleRestriction() {
	restricted, err := s.store.Int(settings.Restricted)
	if err != nil {
		s.logger.Error("failed to read restriction", logger.Err(err))
		return
	}
	enable := restricted == location.RestrictOff
	if err = s.manager.EnableRestriction(enable); err != nil {
		s.logger.Error("failed to toggle restriction", logger.Err(err))
		return
	}
	s.logger.Info("location restriction toggled", slog.Bool("restricted", enable))
}
