// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultInitialSlots is the request table size allocated on the first
// send of an epoch.
const DefaultInitialSlots = 170

// Config holds client tunables.
type Config struct {
	DefaultTimeout   time.Duration
	ConnectTimeout   time.Duration
	ReconnectTimeout time.Duration
	PackThreshold    int
	InitialSlots     int
	Log              LogConfig
	JournalPath      string
}

// DefaultConfig returns the built-in tunables.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:   300 * time.Millisecond,
		ConnectTimeout:   300 * time.Millisecond,
		ReconnectTimeout: time.Second,
		PackThreshold:    0,
		InitialSlots:     DefaultInitialSlots,
		Log:              DefaultLogConfig(),
	}
}

type fileConfig struct {
	DefaultTimeout   string `toml:"default_timeout"`
	DefaultTimeoutMS int64  `toml:"default_timeout_ms"`
	ConnectTimeout   string `toml:"connect_timeout"`
	ReconnectTimeout string `toml:"reconnect_timeout"`
	PackThreshold    int    `toml:"pack_threshold"`
	InitialSlots     int    `toml:"initial_slots"`
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
	LogNoColor       bool   `toml:"log_nocolor"`
	JournalPath      string `toml:"journal_path"`
}

// LoadConfig reads a TOML file and applies the keys it defines over
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load tlrpc config: %w", err)
	}

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"default_timeout", raw.DefaultTimeout, &cfg.DefaultTimeout},
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"reconnect_timeout", raw.ReconnectTimeout, &cfg.ReconnectTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("default_timeout_ms") {
		cfg.DefaultTimeout = time.Duration(raw.DefaultTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("pack_threshold") {
		cfg.PackThreshold = raw.PackThreshold
	}
	if meta.IsDefined("initial_slots") {
		cfg.InitialSlots = raw.InitialSlots
	}
	if meta.IsDefined("log_level") {
		lvl, ok := parseLevel(raw.LogLevel)
		if !ok {
			return Config{}, fmt.Errorf("parse log_level: unknown level %q", raw.LogLevel)
		}
		cfg.Log.Level = lvl
	}
	if meta.IsDefined("log_format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.LogFormat))
	}
	if meta.IsDefined("log_nocolor") {
		cfg.Log.NoColor = raw.LogNoColor
	}
	if meta.IsDefined("journal_path") {
		cfg.JournalPath = strings.TrimSpace(raw.JournalPath)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects tunables the client cannot run with.
func (c Config) Validate() error {
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"default_timeout", c.DefaultTimeout},
		{"connect_timeout", c.ConnectTimeout},
		{"reconnect_timeout", c.ReconnectTimeout},
	} {
		if d.v <= 0 || d.v > MaxTimeout {
			return fmt.Errorf("tlrpc config: %s %v out of range (0, %v]", d.name, d.v, MaxTimeout)
		}
	}
	if c.InitialSlots <= 0 {
		return fmt.Errorf("tlrpc config: initial_slots must be positive, got %d", c.InitialSlots)
	}
	if c.PackThreshold < 0 {
		return fmt.Errorf("tlrpc config: pack_threshold must not be negative, got %d", c.PackThreshold)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("tlrpc config: unknown log_format %q", c.Log.Format)
	}
	return nil
}
