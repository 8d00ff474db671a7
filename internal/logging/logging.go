package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls where log output goes and how much of it there is.
type Config struct {
	// Level is the minimum level (debug, info, warn/warning, error).
	Level string
	// FilePath is the log file. Empty disables file logging entirely.
	FilePath string
	// MaxSizeMB is the rotation threshold per file.
	MaxSizeMB int
	// MaxFiles is how many rotated files to keep.
	MaxFiles int
	// WriteToStderr tees output to stderr alongside the file.
	WriteToStderr bool
}

// DefaultConfig returns the server's standard file-logging setup.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		FilePath:      DefaultLogPath(),
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// DebugConfig is DefaultConfig at debug level.
func DebugConfig() Config {
	cfg := DefaultConfig()
	cfg.Level = "debug"
	return cfg
}

// Setup builds a JSON slog.Logger per cfg, backed by a size-rotating
// file writer unless cfg.FilePath is empty. The returned cleanup flushes and closes the file; call
// it on shutdown. Loggers are handed to their consumers explicitly —
// nothing here touches slog's process-wide default.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	if cfg.FilePath == "" {
		var output io.Writer = io.Discard
		if cfg.WriteToStderr {
			output = os.Stderr
		}
		handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
			Level: LevelFromString(cfg.Level),
		})
		return slog.New(handler), func() {}, nil
	}

	if err := EnsureLogDir(); err != nil {
		return nil, nil, err
	}

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var output io.Writer = writer
	if cfg.WriteToStderr {
		output = io.MultiWriter(writer, os.Stderr)
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: LevelFromString(cfg.Level),
	})

	cleanup := func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return slog.New(handler), cleanup, nil
}

// LevelFromString maps a level name to its slog.Level, defaulting to
// info on anything unrecognized. Both "warn" and "warning" are
// accepted; the environment variable surface documents the latter.
func LevelFromString(level string) slog.Level {
	switch strings.ToLower(level) {
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
