// Package obs holds the structured logger shared by the services.
package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log keys used across packages.
const (
	KeyError     = "error"
	KeyRequestID = "request_id"
	KeyUserID    = "user_id"
	KeyOrderID   = "order_id"
	KeyProductID = "product_id"
	KeyEventID   = "event_id"
)

// Logger is the process-wide structured logger. It discards output until
// InitLogger is called so packages can log from tests without setup.
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// InitLogger installs a JSON handler on stdout at the given level
// ("debug", "info", "warn", "error"; anything else means info).
func InitLogger(level, service string) {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(level)})
	Logger = slog.New(h).With(slog.String("service", service))
	slog.SetDefault(Logger)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
