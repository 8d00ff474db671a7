// Package logging builds the server's structured JSON logger: slog over
// a size-rotating file under ~/.cache/lgrep/logs, optionally teed to
// stderr.
package logging
