package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kovalyov-valentin/style-feed/internal/client"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver/deps"
	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

var (
	errNoStore     = errors.New("source storage is not configured")
	errBadSources  = errors.New("body must be {\"sources\": [...]}")
	errSourceShape = errors.New("every source needs an id and a url")
)

// GetFeedSources serves GET /users/{userId}/feed-sources.
func GetFeedSources(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.SourceStore == nil {
			writeError(w, http.StatusServiceUnavailable, errNoStore)
			return
		}
		userID := chi.URLParam(r, "userId")

		sources, err := d.SourceStore.Sources(r.Context(), userID)
		if err != nil {
			d.Logger.Error("loading feed sources", logger.String("user_id", userID), logger.Error(err))
			writeError(w, statusFor(err), err)
			return
		}
		if sources == nil {
			sources = []model.Source{}
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

// PutFeedSources serves PUT /users/{userId}/feed-sources and replaces the whole list.
func PutFeedSources(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.SourceStore == nil {
			writeError(w, http.StatusServiceUnavailable, errNoStore)
			return
		}
		userID := chi.URLParam(r, "userId")

		var req client.SaveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, errBadSources)
			return
		}
		for _, s := range req.Sources {
			if s.ID == "" || s.URL == "" {
				writeError(w, http.StatusBadRequest, errSourceShape)
				return
			}
		}

		if err := d.SourceStore.SaveSources(r.Context(), userID, req.Sources); err != nil {
			d.Logger.Error("saving feed sources", logger.String("user_id", userID), logger.Error(err))
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	}
}
