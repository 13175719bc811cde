// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/wneessen/locationd/internal/provider"
)

func TestNew(t *testing.T) {
	t.Run("new config with all defaults set", func(t *testing.T) {
		t.Setenv("XDG_STATE_HOME", "/tmp/state")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.LogLevel != slog.LevelInfo {
			t.Errorf("expected log level to be: %s, got %s", slog.LevelInfo, conf.LogLevel)
		}
		method, err := conf.Method()
		if err != nil || method != provider.MethodHybrid {
			t.Errorf("expected hybrid method, got %s (%v)", method, err)
		}
		mode, err := conf.FusedMode()
		if err != nil || mode != provider.FusedHigh {
			t.Errorf("expected high fused mode, got %s (%v)", mode, err)
		}
		if conf.GPSD.Host != "localhost" || conf.GPSD.Port != "2947" {
			t.Errorf("unexpected gpsd address: %s:%s", conf.GPSD.Host, conf.GPSD.Port)
		}
		if conf.GPSD.Retry != 30*time.Second {
			t.Errorf("expected gpsd retry of 30s, got %s", conf.GPSD.Retry)
		}
		if conf.WPS.Resolver != ResolverIchnaea || conf.WPS.RateLimit != 10 {
			t.Errorf("unexpected wps defaults: %s, %d", conf.WPS.Resolver, conf.WPS.RateLimit)
		}
		if conf.Sensor.Period != 100*time.Millisecond {
			t.Errorf("expected sensor period of 100ms, got %s", conf.Sensor.Period)
		}
		if conf.Provider.PosInterval != 1 || conf.Provider.MinInterval != 0 {
			t.Errorf("unexpected interval defaults: %d, %d", conf.Provider.PosInterval, conf.Provider.MinInterval)
		}
		if conf.MQTT.Enabled || conf.MQTT.TopicPrefix != "locationd" {
			t.Errorf("unexpected mqtt defaults: %t, %s", conf.MQTT.Enabled, conf.MQTT.TopicPrefix)
		}
		want := filepath.Join("/tmp/state", "locationd", "settings.db")
		if conf.Settings.Path != want {
			t.Errorf("expected settings path %s, got %s", want, conf.Settings.Path)
		}
	})
	t.Run("env overrides defaults", func(t *testing.T) {
		t.Setenv("LOCATIOND_PROVIDER_METHOD", "gps")
		t.Setenv("LOCATIOND_PROVIDER_MIN_DISTANCE", "25.5")
		t.Setenv("LOCATIOND_FUSED_MODE", "no-power")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if method, _ := conf.Method(); method != provider.MethodGPS {
			t.Errorf("expected gps method, got %s", method)
		}
		if conf.Provider.MinDistance != 25.5 {
			t.Errorf("expected min distance of 25.5, got %f", conf.Provider.MinDistance)
		}
		if mode, _ := conf.FusedMode(); mode != provider.FusedNoPower {
			t.Errorf("expected no-power mode, got %s", mode)
		}
	})
	t.Run("zero rate limit selects the default", func(t *testing.T) {
		t.Setenv("LOCATIOND_WPS_RATE_LIMIT", "0")
		conf, err := New()
		if err != nil {
			t.Fatalf("failed to create config: %s", err)
		}
		if conf.WPS.RateLimit != 10 {
			t.Errorf("expected default rate limit of 10, got %d", conf.WPS.RateLimit)
		}
	})
	t.Run("new config with invalid values from env", func(t *testing.T) {
		t.Setenv("LOCATIOND_LOGLEVEL", "invalid")
		_, err := New()
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})

	invalid := []struct {
		name  string
		env   map[string]string
		match error
	}{
		{"unknown method", map[string]string{"LOCATIOND_PROVIDER_METHOD": "sonar"}, provider.ErrParameterInvalid},
		{"unknown fused mode", map[string]string{"LOCATIOND_FUSED_MODE": "turbo"}, provider.ErrParameterInvalid},
		{"unknown resolver", map[string]string{"LOCATIOND_WPS_RESOLVER": "bing"}, nil},
		{"google without key", map[string]string{"LOCATIOND_WPS_RESOLVER": "google"}, ErrMissingGoogleKey},
		{"negative rate limit", map[string]string{"LOCATIOND_WPS_RATE_LIMIT": "-1"}, nil},
		{"negative distance", map[string]string{"LOCATIOND_PROVIDER_MIN_DISTANCE": "-1"}, nil},
		{"mqtt without broker", map[string]string{"LOCATIOND_MQTT_ENABLED": "true"}, nil},
		{"mqtt qos", map[string]string{"LOCATIOND_MQTT_QOS": "3"}, nil},
	}
	for _, tc := range invalid {
		t.Run("config validate "+tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := New()
			if err == nil {
				t.Fatal("expected config to fail, but didn't")
			}
			if tc.match != nil && !errors.Is(err, tc.match) {
				t.Errorf("expected error to match %s, got %s", tc.match, err)
			}
		})
	}
}

func TestNewFromFile(t *testing.T) {
	t.Run("reading config from valid file succeeds", func(t *testing.T) {
		conf, err := NewFromFile("../../etc", "locationd.toml")
		if err != nil {
			t.Fatalf("failed to load config: %s", err)
		}
		if conf.Settings.Path != "/var/lib/locationd/settings.db" || !conf.Settings.WatchDBus {
			t.Errorf("unexpected settings section: %+v", conf.Settings)
		}
		if mode, _ := conf.FusedMode(); mode != provider.FusedBalanced {
			t.Errorf("expected balanced mode, got %s", mode)
		}
		if conf.Provider.LocInterval != 5 {
			t.Errorf("expected location interval of 5, got %d", conf.Provider.LocInterval)
		}
		if conf.HTTP.Listen != "127.0.0.1:9410" {
			t.Errorf("unexpected listen address: %s", conf.HTTP.Listen)
		}
		if conf.Geofence.File != "/etc/locationd/geofence.yaml" {
			t.Errorf("unexpected geofence file: %s", conf.Geofence.File)
		}
	})
	t.Run("reading config from non-existent file fails", func(t *testing.T) {
		_, err := NewFromFile("../../etc", "non-existent.toml")
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
	t.Run("reading invalid config file fails", func(t *testing.T) {
		_, err := NewFromFile("../../testdata", "invalid.toml")
		if err == nil {
			t.Error("expected config to fail, but didn't")
		}
	})
}
