package logging

import (
	"log/slog"
	"os"
)

// EnableTrace turns on per-sample logging. Off by default; set LT_TRACE=1.
var EnableTrace = os.Getenv("LT_TRACE") == "1"

// Trace logs a message at DEBUG level, but only if EnableTrace is true.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}
