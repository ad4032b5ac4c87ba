package slogx

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type Config struct {
	Service string
	Version string
	Env     string // e.g. "dev", "prod"
	Level   string // e.g. "debug", "info", "warn", "error"
	Format  string // e.g. "json", "text"

	// AuthDebug turns on AuthDebug output. Refused in prod.
	AuthDebug bool
}

// ErrAuthDebugInProd is returned by New when verbose auth logging is
// requested for a production deployment.
var ErrAuthDebugInProd = errors.New("slogx: auth debug logging is not allowed when env is prod")

var authDebug atomic.Bool

// New returns a configured slog.Logger instance and makes it the default.
func New(cfg Config) (*slog.Logger, error) {
	if cfg.AuthDebug && IsProd(cfg.Env) {
		return nil, ErrAuthDebugInProd
	}

	level := parseLevel(cfg.Level)
	if cfg.AuthDebug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev",
		Level:     level,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)

	authDebug.Store(cfg.AuthDebug)
	slog.SetDefault(logger)
	return logger, nil
}

// IsProd reports whether env names a production deployment.
func IsProd(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return true
	}
	return false
}

// parseLevel maps a string to slog.Level.
func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Redact returns a short stable fingerprint of an identifier such as a
// username, so failed logins can be correlated without logging who tried.
func Redact(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(strings.ToLower(s)))
	return "h:" + hex.EncodeToString(sum[:6])
}
