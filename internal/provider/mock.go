// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package provider

import (
	"github.com/wneessen/locationd/internal/fix"
	"github.com/wneessen/locationd/internal/settings"
	"github.com/wneessen/locationd/internal/signalbus"
)

// Mock is a provider reporting locations injected through SetMockLocation.
type Mock struct {
	backed
	mock MockBackend
}

// NewMock returns a Mock provider driven by backend.
func NewMock(backend MockBackend, opts Options) (*Mock, error) {
	m := &Mock{mock: backend}
	if backend == nil {
		return nil, ErrParameterInvalid
	}
	if err := m.init(MethodMock, settings.MockEnabled, backend, opts); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMockLocation implements Provider.
func (m *Mock) SetMockLocation(pos fix.Position, vel fix.Velocity, acc fix.Accuracy) error {
	if !m.settingOn(m.settingKey) {
		return ErrSettingOff
	}
	return m.mock.SetMockLocation(pos, vel, acc, m.onMockStatus)
}

// ClearMockLocation implements Provider.
func (m *Mock) ClearMockLocation() error {
	if !m.settingOn(m.settingKey) {
		return ErrSettingOff
	}
	return m.mock.ClearMockLocation(m.onMockStatus)
}

func (m *Mock) onMockStatus(enabled bool, status fix.Status) {
	if status == fix.StatusMockFail {
		m.bus.Emit(signalbus.Event{Kind: signalbus.KindStatusChanged, Status: status})
		return
	}
	m.onStatus(enabled, status)
}
