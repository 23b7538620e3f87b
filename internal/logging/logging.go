// Package logging configures the process-wide structured logger and supports
// changing the log level at runtime.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config selects the logger's level, format and output.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // empty means stdout
}

var (
	levelManager     *LevelManager
	levelManagerOnce sync.Once
)

// LevelManager exposes the dynamic log level shared by all handlers.
type LevelManager struct {
	level *slog.LevelVar
}

// GetLevelManager returns the singleton level manager.
func GetLevelManager() *LevelManager {
	levelManagerOnce.Do(func() {
		levelManager = &LevelManager{level: &slog.LevelVar{}}
	})
	return levelManager
}

// GetLevel returns the current log level.
func (m *LevelManager) GetLevel() slog.Level {
	return m.level.Level()
}

// SetLevel changes the log level for all loggers at runtime.
func (m *LevelManager) SetLevel(level slog.Level) {
	m.level.Set(level)
}

// StringToLevel parses a level name.
func StringToLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", s)
	}
}

// LevelToString renders a level name.
func LevelToString(level slog.Level) string {
	switch {
	case level <= slog.LevelDebug:
		return "debug"
	case level <= slog.LevelInfo:
		return "info"
	case level <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

// Setup installs the default slog logger according to the configuration and
// returns it. The returned logger shares the dynamic level, so later SetLevel
// calls take effect immediately.
func Setup(cfg Config) (*slog.Logger, error) {
	level, err := StringToLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	manager := GetLevelManager()
	manager.SetLevel(level)

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
	}

	opts := &slog.HandlerOptions{Level: manager.level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
