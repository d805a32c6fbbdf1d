// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for airwave binaries.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Relay configures the signaling relay server.
	Relay RelayConfig `yaml:"relay"`

	// Station configures the client daemon.
	Station StationConfig `yaml:"station"`

	// EnvironmentOverrides contains per-environment overrides,
	// applied after the base config is loaded.
	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Relay   *RelayConfig   `yaml:"relay,omitempty"`
	Station *StationConfig `yaml:"station,omitempty"`
}

// RelayConfig configures the signaling relay server.
type RelayConfig struct {
	// ListenAddr is the address the relay binds for websocket
	// signaling and the HTTP API. Default: :8730
	ListenAddr string `yaml:"listen_addr"`

	// DatabasePath is the SQLite database holding channels, role
	// grants, audio configs, and the audit log.
	// Default: ${HOME}/.local/share/airwave/relay.db
	DatabasePath string `yaml:"database_path"`

	// PingInterval is the websocket keepalive interval. A client that
	// misses two intervals is considered disconnected and its
	// membership is dropped. Default: 20s
	PingInterval time.Duration `yaml:"ping_interval"`

	// DefaultCapacity applies to channels whose stored capacity is
	// zero. Default: 50
	DefaultCapacity int `yaml:"default_capacity"`
}

// StationConfig configures the client daemon.
type StationConfig struct {
	// RelayURL is the websocket URL of the signaling relay,
	// e.g. "ws://dispatch.example:8730/ws".
	RelayURL string `yaml:"relay_url"`

	// Callsign identifies this user on the radio network.
	Callsign string `yaml:"callsign"`

	// NegotiationTimeout bounds how long a peer link may stay in
	// negotiating before it is failed and retried. Default: 10s
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values; the config file is still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultDB := filepath.Join(homeDir, ".local", "share", "airwave", "relay.db")

	return &Config{
		Environment: Development,
		Relay: RelayConfig{
			ListenAddr:      ":8730",
			DatabasePath:    defaultDB,
			PingInterval:    20 * time.Second,
			DefaultCapacity: 50,
		},
		Station: StationConfig{
			NegotiationTimeout: 10 * time.Second,
		},
	}
}

// Load loads configuration from the AIRWAVE_CONFIG environment
// variable. There are no fallbacks — if AIRWAVE_CONFIG is not set,
// this fails. This ensures deterministic, auditable configuration.
func Load() (*Config, error) {
	configPath := os.Getenv("AIRWAVE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("AIRWAVE_CONFIG environment variable not set; " +
			"set it to the path of your airwave.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific section.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Relay != nil {
		mergeRelay(&c.Relay, overrides.Relay)
	}
	if overrides.Station != nil {
		mergeStation(&c.Station, overrides.Station)
	}
}

func mergeRelay(base, override *RelayConfig) {
	if override.ListenAddr != "" {
		base.ListenAddr = override.ListenAddr
	}
	if override.DatabasePath != "" {
		base.DatabasePath = override.DatabasePath
	}
	if override.PingInterval != 0 {
		base.PingInterval = override.PingInterval
	}
	if override.DefaultCapacity != 0 {
		base.DefaultCapacity = override.DefaultCapacity
	}
}

func mergeStation(base, override *StationConfig) {
	if override.RelayURL != "" {
		base.RelayURL = override.RelayURL
	}
	if override.Callsign != "" {
		base.Callsign = override.Callsign
	}
	if override.NegotiationTimeout != 0 {
		base.NegotiationTimeout = override.NegotiationTimeout
	}
}

func (c *Config) validate() error {
	switch c.Environment {
	case Development, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.Relay.PingInterval < time.Second {
		return fmt.Errorf("relay.ping_interval %s is below 1s", c.Relay.PingInterval)
	}
	if c.Relay.DefaultCapacity < 1 {
		return fmt.Errorf("relay.default_capacity must be at least 1")
	}
	return nil
}
