// Package treasurytesting holds helpers shared across this repo's tests.
package treasurytesting

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// NewLogger returns the test logger. Quiet by default so failures stay
// readable; DEBUG=1 shows info, DEBUG=2 shows debug.
func NewLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("DEBUG") {
	case "2":
		level = slog.LevelDebug
	case "1":
		level = slog.LevelInfo
	default:
		level = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
}
