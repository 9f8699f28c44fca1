// Package logging provides structured logging for the arena server.
// It uses the standard library log/slog package with a JSON handler by
// default and a tint handler for human-readable development output.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// NewLogger creates a new structured logger with the specified log level
// and format. Supported levels: debug, info, warn, error.
// Supported formats: json (default), text.
func NewLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: lvl})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: lvl,
			// Add source location for debug level
			AddSource: lvl == slog.LevelDebug,
		})
	}

	return slog.New(handler)
}

// WithComponent returns a logger with component attribute
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithCompetitionID returns a logger with competition_id attribute
func WithCompetitionID(logger *slog.Logger, competitionID string) *slog.Logger {
	return logger.With("competition_id", competitionID)
}

// WithTaskID returns a logger with task_id attribute
func WithTaskID(logger *slog.Logger, taskID string) *slog.Logger {
	return logger.With("task_id", taskID)
}

// WithJudgeID returns a logger with judge_id attribute
func WithJudgeID(logger *slog.Logger, judgeID string) *slog.Logger {
	return logger.With("judge_id", judgeID)
}

// SanitizeToken masks a token for safe logging.
// Shows first 4 and last 4 characters only.
// Returns "****" for tokens shorter than 8 characters.
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
