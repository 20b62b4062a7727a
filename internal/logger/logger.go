package logger

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"looneca-storefront/internal/config"
)

// New builds the process logger from LOG_LEVEL and LOG_FORMAT.
func New(w io.Writer, cfg config.Log) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h)
}

func parseLevel(level string) slog.Level {
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

// Discard is used by tests and by CLI commands that print to stdout.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MaskSecret keeps enough of a key to tell environments apart in logs.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	prefix := secret
	if len(prefix) > 6 {
		prefix = prefix[:6]
	}
	return prefix + "...(len=" + strconv.Itoa(len(secret)) + ")"
}

// LastFour returns the trailing four digits of a card number, never more.
func LastFour(number string) string {
	digits := make([]byte, 0, len(number))
	for i := 0; i < len(number); i++ {
		if number[i] >= '0' && number[i] <= '9' {
			digits = append(digits, number[i])
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}

