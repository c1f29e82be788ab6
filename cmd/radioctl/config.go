package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/radioctl/internal/radio"
)

type fileConfig struct {
	Path           string `toml:"path"`
	Baud           int    `toml:"baud"`
	ReadTimeout    string `toml:"read_timeout"`
	CommandTimeout string `toml:"command_timeout"`
	ReadyTimeout   string `toml:"ready_timeout"`
}

// loadConfig layers a TOML file over the built-in defaults. Only keys the
// file actually defines override anything.
func loadConfig(path string) (radio.Config, error) {
	cfg := radio.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return radio.Config{}, fmt.Errorf("load radio config: %w", err)
	}

	if meta.IsDefined("path") {
		if p := strings.TrimSpace(raw.Path); p != "" {
			cfg.Path = p
		}
	}

	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return radio.Config{}, fmt.Errorf("invalid baud: %d", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}

	if meta.IsDefined("read_timeout") {
		d, err := parseTimeout(raw.ReadTimeout)
		if err != nil {
			return radio.Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}

	if meta.IsDefined("command_timeout") {
		d, err := parseTimeout(raw.CommandTimeout)
		if err != nil {
			return radio.Config{}, fmt.Errorf("parse command_timeout: %w", err)
		}
		cfg.CommandTimeout = d
	}

	if meta.IsDefined("ready_timeout") {
		d, err := parseTimeout(raw.ReadyTimeout)
		if err != nil {
			return radio.Config{}, fmt.Errorf("parse ready_timeout: %w", err)
		}
		cfg.ReadyTimeout = d
	}

	return cfg, nil
}

func parseTimeout(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive: %s", d)
	}
	return d, nil
}
