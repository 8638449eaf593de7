package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kovalyov-valentin/style-feed/internal/fetcher"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver/deps"
	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/session"
	"github.com/kovalyov-valentin/style-feed/internal/trending"
)

var errBadWindow = errors.New("window must be a positive duration such as 72h")

func sessionFor(d deps.Deps, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := d.Sessions.Get(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return s, true
}

// Feed serves the session state. Feed failures are reported inside the state, never as a status.
func Feed(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(d, w, r)
		if !ok {
			return
		}

		state, err := s.Feed(r.Context())
		if err != nil && !errors.Is(err, fetcher.ErrBusy) {
			d.Logger.Debug("feed load reported an error", logger.String("user_id", s.UserID()), logger.Error(err))
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// RefreshFeed runs a user triggered pass; 409 when one is already running.
func RefreshFeed(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFor(d, w, r)
		if !ok {
			return
		}

		state, err := s.Refresh(r.Context())
		if errors.Is(err, fetcher.ErrBusy) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

type trendingResponse struct {
	Window string   `json:"window"`
	Terms  []string `json:"terms"`
}

func Trending(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := d.TrendingWindow
		if window <= 0 {
			window = trending.DefaultWindow
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, errBadWindow)
				return
			}
			window = parsed
		}

		s, ok := sessionFor(d, w, r)
		if !ok {
			return
		}
		if _, err := s.Feed(r.Context()); err != nil && !errors.Is(err, fetcher.ErrBusy) {
			d.Logger.Debug("feed load reported an error", logger.String("user_id", s.UserID()), logger.Error(err))
		}

		terms := s.Trending(window)
		if terms == nil {
			terms = []string{}
		}
		writeJSON(w, http.StatusOK, trendingResponse{Window: window.String(), Terms: terms})
	}
}
