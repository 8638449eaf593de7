package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/style-feed/internal/httpserver/deps"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

var errBadBody = errors.New("malformed request body")

func ListSources(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(d, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, nonNil(s.Registry.Sources()))
	}
}

type addSourceRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func AddSource(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addSourceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, errBadBody)
			return
		}

		s, ok := sessionFor(d, w, r)
		if !ok {
			return
		}

		src, err := s.Registry.AddSource(r.Context(), req.Name, req.URL)
		if err != nil && isMutationError(err) {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, src)
	}
}

type updateSourceRequest struct {
	Enabled *bool   `json:"enabled"`
	Name    *string `json:"name"`
}

// UpdateSource applies the fields present in the body.
func UpdateSource(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateSourceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, errBadBody)
			return
		}

		s, ok := sessionFor(d, w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "sourceId")

		if req.Enabled != nil {
			if err := s.Registry.ToggleSource(r.Context(), id, *req.Enabled); err != nil && isMutationError(err) {
				writeError(w, statusFor(err), err)
				return
			}
		}
		if req.Name != nil {
			if err := s.Registry.RenameSource(r.Context(), id, *req.Name); err != nil && isMutationError(err) {
				writeError(w, statusFor(err), err)
				return
			}
		}

		src, found := lo.Find(s.Registry.Sources(), func(src model.Source) bool { return src.ID == id })
		if !found {
			writeError(w, http.StatusNotFound, errSourceMissing)
			return
		}
		writeJSON(w, http.StatusOK, src)
	}
}

func RemoveSource(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(d, w, r)
		if !ok {
			return
		}
		if err := s.Registry.RemoveSource(r.Context(), chi.URLParam(r, "sourceId")); err != nil && isMutationError(err) {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ResetSources(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(d, w, r)
		if !ok {
			return
		}
		if err := s.Registry.ResetToDefaults(r.Context()); err != nil && isMutationError(err) {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(s.Registry.Sources()))
	}
}

var errSourceMissing = errors.New("source not found")

// isMutationError separates a rejected edit from a failed local cache write, which leaves
// the edit applied in memory.
func isMutationError(err error) bool {
	return statusFor(err) != http.StatusInternalServerError
}

func nonNil(sources []model.Source) []model.Source {
	if sources == nil {
		return []model.Source{}
	}
	return sources
}
