// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kkyr/fig"

	"github.com/wneessen/locationd/internal/provider"
)

const (
	configEnv = "LOCATIOND"

	ResolverIchnaea = "ichnaea"
	ResolverGoogle  = "google"
)

var ErrMissingGoogleKey = errors.New("wps.google_api_key is required for the google resolver")

// Config represents the application's configuration structure.
type Config struct {
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Settings struct {
		// Path of the bbolt settings database
		Path      string `fig:"path"`
		WatchDBus bool   `fig:"watch_dbus"`
	} `fig:"settings"`

	GPSD struct {
		Host     string        `fig:"host" default:"localhost"`
		Port     string        `fig:"port" default:"2947"`
		BatchLog string        `fig:"batch_log"`
		Retry    time.Duration `fig:"retry" default:"30s"`
	} `fig:"gpsd"`

	WPS struct {
		// Allowed values: ichnaea, google
		Resolver     string        `fig:"resolver" default:"ichnaea"`
		Endpoint     string        `fig:"endpoint"`
		GoogleAPIKey string        `fig:"google_api_key"`
		RateLimit    int           `fig:"rate_limit" default:"10"`
		Period       time.Duration `fig:"period" default:"30s"`
	} `fig:"wps"`

	Sensor struct {
		// IIO device directory, discovered when empty
		Device string        `fig:"device"`
		Period time.Duration `fig:"period" default:"100ms"`
	} `fig:"sensor"`

	Fused struct {
		// Allowed values: high, balanced, no-power
		Mode             string `fig:"mode" default:"high"`
		BalancedInterval uint   `fig:"balanced_interval" default:"20"`
	} `fig:"fused"`

	Provider struct {
		// Allowed values: hybrid, gps, wps, mock, passive, fused
		Method      string  `fig:"method" default:"hybrid"`
		PosInterval uint    `fig:"pos_interval" default:"1"`
		VelInterval uint    `fig:"vel_interval" default:"1"`
		LocInterval uint    `fig:"loc_interval" default:"1"`
		MinInterval uint    `fig:"min_interval"`
		MinDistance float64 `fig:"min_distance"`
	} `fig:"provider"`

	Geofence struct {
		File string `fig:"file"`
	} `fig:"geofence"`

	Privacy struct {
		Denied []string `fig:"denied"`
	} `fig:"privacy"`

	HTTP struct {
		// Serves /metrics and /ws, disabled when empty
		Listen string `fig:"listen"`
	} `fig:"http"`

	MQTT struct {
		Enabled     bool   `fig:"enabled"`
		Broker      string `fig:"broker"`
		ClientID    string `fig:"client_id" default:"locationd"`
		TopicPrefix string `fig:"topic_prefix" default:"locationd"`
		Username    string `fig:"username"`
		Password    string `fig:"password"`
		QoS         uint   `fig:"qos"`
		Retain      bool   `fig:"retain"`
	} `fig:"mqtt"`

	Mock struct {
		// File with one "lat,lon" pair per line replayed into the mock provider
		File   string        `fig:"file"`
		Period time.Duration `fig:"period" default:"10s"`
	} `fig:"mock"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if _, err := c.Method(); err != nil {
		return err
	}
	if _, err := c.FusedMode(); err != nil {
		return err
	}
	switch c.WPS.Resolver {
	case ResolverIchnaea:
	case ResolverGoogle:
		if c.WPS.GoogleAPIKey == "" {
			return ErrMissingGoogleKey
		}
	default:
		return fmt.Errorf("invalid wps resolver: %s", c.WPS.Resolver)
	}
	if c.WPS.RateLimit < 1 {
		return fmt.Errorf("invalid wps rate limit: %d", c.WPS.RateLimit)
	}
	if c.Provider.MinDistance < 0 {
		return fmt.Errorf("invalid minimum distance: %f", c.Provider.MinDistance)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
	}
	if c.Settings.Path == "" {
		c.Settings.Path = filepath.Join(stateDir(), "locationd", "settings.db")
	}

	return nil
}

// Method returns the configured provider method.
func (c *Config) Method() (provider.Method, error) {
	return provider.ParseMethod(c.Provider.Method)
}

// FusedMode returns the configured fused provider mode.
func (c *Config) FusedMode() (provider.FusedMode, error) {
	return provider.ParseFusedMode(c.Fused.Mode)
}

func stateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state")
}
