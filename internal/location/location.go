// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package location is the public entry point to the location service. It creates providers, maps methods
// onto their settings and checks the caller's privileges before positions are handed out.
package location

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/privacy"
	"github.com/wneessen/locationd/internal/provider"
	"github.com/wneessen/locationd/internal/settings"
)

// Restriction bits stored in settings.Restricted. They remember which settings were switched off by
// EnableRestriction so that lifting the restriction restores them.
const (
	RestrictOff    = 0
	RestrictNone   = 0x01
	RestrictGPS    = 0x02
	RestrictWPS    = 0x04
	RestrictHybrid = 0x08
)

// Factory creates the provider for a method.
type Factory func(method provider.Method) (provider.Provider, error)

// Settings is the part of the settings store the facade needs.
type Settings interface {
	Int(key settings.Key) (int, error)
	SetInt(key settings.Key, value int) error
	Watch(key settings.Key, fn settings.Handler) (func(), error)
}

// Config holds the collaborators of a Manager.
type Config struct {
	Settings Settings
	Privacy  privacy.Checker
	Factory  Factory
	// Supported reports whether a vendor backend exists for a method. Nil supports every method the
	// Factory knows.
	Supported func(provider.Method) bool
	Logger    *logger.Logger
}

// SettingFunc is notified when the enable setting of a method changes.
type SettingFunc func(method provider.Method, enabled bool)

// Manager implements the location entry points.
type Manager struct {
	settings  Settings
	privacy   privacy.Checker
	factory   Factory
	supported func(provider.Method) bool
	logger    *logger.Logger

	mu       sync.Mutex
	notifies map[provider.Method]func()
}

// Init validates config and returns a ready Manager.
func Init(config Config) (*Manager, error) {
	if config.Settings == nil || config.Factory == nil {
		return nil, fmt.Errorf("%w: settings and provider factory are required", provider.ErrNotAvailable)
	}
	if config.Privacy == nil {
		config.Privacy = &privacy.Static{}
	}
	return &Manager{
		settings:  config.Settings,
		privacy:   config.Privacy,
		factory:   config.Factory,
		supported: config.Supported,
		logger:    logger.OrDiscard(config.Logger),
		notifies:  make(map[provider.Method]func()),
	}, nil
}

// SettingKey returns the enable setting of method.
func SettingKey(method provider.Method) (settings.Key, bool) {
	switch method {
	case provider.MethodHybrid:
		return settings.UseMyLocation, true
	case provider.MethodGPS:
		return settings.GPSEnabled, true
	case provider.MethodWPS:
		return settings.WPSEnabled, true
	case provider.MethodMock:
		return settings.MockEnabled, true
	default:
		return "", false
	}
}

// MethodForKey is the inverse of SettingKey.
func MethodForKey(key settings.Key) provider.Method {
	for _, m := range []provider.Method{provider.MethodHybrid, provider.MethodGPS, provider.MethodWPS,
		provider.MethodMock} {
		if k, _ := SettingKey(m); k == key {
			return m
		}
	}
	return provider.MethodNone
}

// New creates the provider for method, wrapped in the privilege checks.
func (m *Manager) New(method provider.Method) (*Object, error) {
	p, err := m.factory(method)
	if err != nil {
		m.logger.Error("failed to create location object", slog.String("method", method.String()),
			logger.Err(err))
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: no provider for method %s", provider.ErrNotSupported, method)
	}
	return &Object{Provider: p, privacy: m.privacy, logger: m.logger}, nil
}

// Free stops obj and releases its subscriptions.
func (m *Manager) Free(obj *Object) error {
	if obj == nil {
		return provider.ErrParameterInvalid
	}
	obj.Close()
	return nil
}

// IsSupportedMethod reports whether method can be served. Hybrid is supported as soon as any of its
// children is.
func (m *Manager) IsSupportedMethod(method provider.Method) bool {
	if m.supported == nil {
		return method != provider.MethodNone
	}
	if method == provider.MethodHybrid {
		return m.supported(provider.MethodGPS) || m.supported(provider.MethodWPS) ||
			m.supported(provider.MethodMock)
	}
	return m.supported(method)
}

// IsEnabledMethod reports the enable setting of method.
func (m *Manager) IsEnabledMethod(method provider.Method) (bool, error) {
	key, ok := SettingKey(method)
	if !ok {
		return false, fmt.Errorf("%w: method %s has no setting", provider.ErrNotSupported, method)
	}
	value, err := m.settings.Int(key)
	if err != nil {
		return false, fmt.Errorf("%w: %w", provider.ErrNotAvailable, err)
	}
	return value != 0, nil
}

// EnableMethod switches the setting of method. Enabling any method also enables the master setting;
// disabling the last enabled method disables it.
func (m *Manager) EnableMethod(method provider.Method, enable bool) error {
	if err := m.privacy.Check(privacy.LocationEnable); err != nil {
		return fmt.Errorf("%w: %w", provider.ErrNotAllowed, err)
	}
	if restricted, _ := m.settings.Int(settings.Restricted); restricted > RestrictOff {
		return fmt.Errorf("%w: location settings are restricted", provider.ErrNotAllowed)
	}
	key, ok := SettingKey(method)
	if !ok {
		return fmt.Errorf("%w: method %s has no setting", provider.ErrNotSupported, method)
	}
	if err := m.set(key, enable); err != nil {
		return err
	}

	if enable {
		return m.set(settings.UseMyLocation, true)
	}
	for _, other := range []provider.Method{provider.MethodGPS, provider.MethodWPS, provider.MethodMock} {
		if on, _ := m.IsEnabledMethod(other); on {
			return nil
		}
	}
	return m.set(settings.UseMyLocation, false)
}

// EnableRestriction switches every location setting off and remembers which ones were on. Lifting the
// restriction switches exactly those back on.
func (m *Manager) EnableRestriction(enable bool) error {
	if err := m.privacy.Check(privacy.LocationEnable); err != nil {
		return fmt.Errorf("%w: %w", provider.ErrNotAllowed, err)
	}
	restriction, err := m.settings.Int(settings.Restricted)
	if err != nil {
		return fmt.Errorf("%w: failed to read restriction status: %w", provider.ErrNotAllowed, err)
	}
	restorable := []struct {
		key settings.Key
		bit int
	}{
		{settings.GPSEnabled, RestrictGPS},
		{settings.WPSEnabled, RestrictWPS},
		{settings.UseMyLocation, RestrictHybrid},
	}

	if enable {
		if restriction != RestrictOff {
			return nil
		}
		value := 0
		for _, r := range restorable {
			if on, _ := m.settings.Int(r.key); on == 0 {
				continue
			}
			value |= r.bit
			if err = m.set(r.key, false); err != nil {
				return err
			}
		}
		if value == 0 {
			value = RestrictNone
		}
		return m.setInt(settings.Restricted, value)
	}

	if restriction == RestrictOff {
		return nil
	}
	for _, r := range restorable {
		if restriction&r.bit == 0 {
			continue
		}
		if err = m.set(r.key, true); err != nil {
			return err
		}
	}
	return m.setInt(settings.Restricted, RestrictOff)
}

// AddSettingNotify registers fn for changes of the setting of method, replacing an earlier registration.
func (m *Manager) AddSettingNotify(method provider.Method, fn SettingFunc) error {
	key, ok := SettingKey(method)
	if !ok || fn == nil {
		return provider.ErrParameterInvalid
	}
	unwatch, err := m.settings.Watch(key, func(key settings.Key, value int) {
		fn(MethodForKey(key), value != 0)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", provider.ErrNotAvailable, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.notifies[method]; ok {
		prev()
	}
	m.notifies[method] = unwatch
	return nil
}

// IgnoreSettingNotify removes the registration of AddSettingNotify for method.
func (m *Manager) IgnoreSettingNotify(method provider.Method) error {
	if _, ok := SettingKey(method); !ok {
		return provider.ErrParameterInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	unwatch, ok := m.notifies[method]
	if !ok {
		return provider.ErrParameterInvalid
	}
	unwatch()
	delete(m.notifies, method)
	return nil
}

func (m *Manager) set(key settings.Key, on bool) error {
	value := 0
	if on {
		value = 1
	}
	return m.setInt(key, value)
}

func (m *Manager) setInt(key settings.Key, value int) error {
	if err := m.settings.SetInt(key, value); err != nil {
		m.logger.Error("failed to update setting", slog.String("key", string(key)), logger.Err(err))
		return errors.Join(provider.ErrNotAllowed, err)
	}
	return nil
}
