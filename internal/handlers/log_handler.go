package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// FrontendLogPayload defines the structure for logs coming from the browser.
type FrontendLogPayload struct {
	Level   string `json:"level"`             // e.g., "info", "error", "warn"
	Message string `json:"message"`           // The main log message
	Context any    `json:"context,omitempty"` // Optional extra data (e.g., stack trace)
}

// LogFrontendEvent returns a handler that writes browser logs into logger.
func LogFrontendEvent(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload FrontendLogPayload
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		level := slog.LevelInfo
		switch strings.ToLower(payload.Level) {
		case "error":
			level = slog.LevelError
		case "warn", "warning":
			level = slog.LevelWarn
		case "debug":
			level = slog.LevelDebug
		}
		logger.LogAttrs(r.Context(), level, "CLIENT_LOG",
			slog.String("message", payload.Message),
			slog.Any("context", payload.Context),
		)

		w.WriteHeader(http.StatusNoContent)
	}
}
