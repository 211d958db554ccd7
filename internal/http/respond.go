// Package http serves the JSON API over accounts, account types, currency
// conversion, and storage maintenance.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"glaz/internal/core"
	"glaz/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err, "component", "http")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeErrorDetails(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, map[string]string{"error": message, "details": details})
}

// errorStatus maps domain errors onto HTTP statuses: validation failures are
// 400, missing entities 404, unsupported backend operations 400, everything
// else 500.
func errorStatus(err error) int {
	switch {
	case core.IsNotFound(err):
		return http.StatusNotFound
	case core.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnsupported), errors.Is(err, storage.ErrNoDocument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error, fallback string) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, fallback)
		return
	}
	writeError(w, status, err.Error())
}
