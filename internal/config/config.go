package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"echoping/internal/address"
	"echoping/internal/probe"
	"echoping/internal/storage"
)

// Config represents configuration data for the probing service.
type Config struct {
	Listen          string `yaml:"listen"`
	DataDirectory   string `yaml:"data_directory"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	EchoPort        int    `yaml:"echo_port"`
	TTL             int    `yaml:"ttl"`
	TOS             int    `yaml:"tos"`
	HistorySize     int    `yaml:"history_size"`
	Metrics         bool   `yaml:"metrics"`
	// Address seeds the target when nothing has been saved yet.
	Address string `yaml:"address"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Listen:          ":8080",
		DataDirectory:   filepath.Join(".dist", "data"),
		IntervalSeconds: 5,
		TimeoutSeconds:  5,
		EchoPort:        probe.EchoPort,
		HistorySize:     storage.DefaultHistorySize,
		Metrics:         true,
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	defaults := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = defaults.Listen
	}
	if cfg.DataDirectory == "" {
		cfg.DataDirectory = defaults.DataDirectory
	}
	if cfg.IntervalSeconds <= 0 {
		cfg.IntervalSeconds = defaults.IntervalSeconds
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if cfg.EchoPort == 0 {
		cfg.EchoPort = defaults.EchoPort
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaults.HistorySize
	}
	if cfg.EchoPort < 0 || cfg.EchoPort > 65535 {
		return Config{}, fmt.Errorf("echo_port %d out of range", cfg.EchoPort)
	}
	if cfg.TTL < 0 || cfg.TTL > 255 {
		return Config{}, fmt.Errorf("ttl %d out of range", cfg.TTL)
	}
	if cfg.TOS < 0 || cfg.TOS > 255 {
		return Config{}, fmt.Errorf("tos %d out of range", cfg.TOS)
	}
	if cfg.Address != "" {
		if _, err := address.Parse(cfg.Address); err != nil {
			return Config{}, fmt.Errorf("address: %w", err)
		}
	}
	return cfg, nil
}

// Interval is the delay between the starts of consecutive probes.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Timeout bounds the wait for one echo reply.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AddressFile is where the chosen target is saved.
func (c Config) AddressFile() string {
	return filepath.Join(c.DataDirectory, "addresses.json")
}

// ResultsFile is where recent results are kept.
func (c Config) ResultsFile() string {
	return filepath.Join(c.DataDirectory, "results.json")
}

// SeedAddress returns the configured fallback target.
func (c Config) SeedAddress() (address.Address, bool) {
	if c.Address == "" {
		return address.Address{}, false
	}
	a, err := address.Parse(c.Address)
	return a, err == nil
}
