package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kovalyov-valentin/style-feed/internal/fetcher"
	"github.com/kovalyov-valentin/style-feed/internal/registry"
	"github.com/kovalyov-valentin/style-feed/internal/session"
	"github.com/kovalyov-valentin/style-feed/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrInvalidURL),
		errors.Is(err, session.ErrNoUser),
		errors.Is(err, storage.ErrEmptyUser):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrSourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicateURL),
		errors.Is(err, fetcher.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, registry.ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}
