package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON writes payload as an uncacheable JSON response.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	headers := w.Header()
	headers.Set("Content-Type", "application/json")
	headers.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("write json response failed", "error", err)
	}
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
