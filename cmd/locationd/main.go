// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the locationd service.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/wneessen/locationd/internal/config"
	"github.com/wneessen/locationd/internal/logger"
	"github.com/wneessen/locationd/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	log := logger.New(slog.LevelError)

	confPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	conf, err := loadConfig(*confPath)
	if err != nil {
		log.Error("failed to load config", logger.Err(err))
		os.Exit(1)
	}
	log = logger.New(conf.LogLevel)

	serv, err := service.New(conf, log)
	if err != nil {
		log.Error("failed to initialize locationd service", logger.Err(err))
		os.Exit(1)
	}

	// SIGUSR1 toggles the system wide location restriction
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)
	go serv.HandleRestrictionSignal(ctx, sigChan)

	log.Info("starting locationd service", slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date))
	if err = serv.Run(ctx); err != nil {
		log.Error("locationd service failed", logger.Err(err))
		os.Exit(1)
	}
	log.Info("shutting down locationd service")
}

// loadConfig reads the given file, the first config file found in the default locations or only the
// defaults and environment.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.NewFromFile(filepath.Dir(path), filepath.Base(path))
	}
	if dir, file := findConfigFile(); file != "" {
		return config.NewFromFile(dir, file)
	}
	return config.New()
}

func findConfigFile() (string, string) {
	dirs := []string{"/etc/locationd"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append([]string{filepath.Join(home, ".config", "locationd")}, dirs...)
	}
	for _, dir := range dirs {
		for _, ext := range []string{"toml", "yaml", "yml", "json"} {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return dir, filepath.Base(path)
			}
		}
	}
	return "", ""
}
