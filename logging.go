// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tlrpc

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment overrides applied by NewLogger.
const (
	EnvLogLevel     = "TLRPC_LOG_LEVEL"
	EnvLogNoColor   = "TLRPC_LOG_NOCOLOR"
	EnvLogTimestamp = "TLRPC_LOG_TIMESTAMP"
	EnvLogFormat    = "TLRPC_LOG_FORMAT"
)

// LogConfig selects how NewLogger renders records.
type LogConfig struct {
	Level     zerolog.Level
	Format    string // "console" or "json"
	NoColor   bool
	Timestamp bool
	Out       io.Writer
}

// DefaultLogConfig logs info and above to stderr in console form.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:     zerolog.InfoLevel,
		Format:    "console",
		Timestamp: true,
	}
}

// NewLogger builds a zerolog logger from cfg after applying the
// TLRPC_LOG_* environment overrides.
func NewLogger(cfg LogConfig) zerolog.Logger {
	applyEnvOverrides(&cfg)
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
	}
	ctx := zerolog.New(out).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Str("lib", "tlrpc").Logger()
}

func applyEnvOverrides(cfg *LogConfig) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))); v == "json" || v == "console" {
		cfg.Format = v
	}
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	}
	return zerolog.InfoLevel, false
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
