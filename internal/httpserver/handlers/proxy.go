package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/SlyMarbo/rss"

	"github.com/kovalyov-valentin/style-feed/internal/httpserver/deps"
	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/metrics"
)

var (
	errMissingURL = errors.New("url must be an absolute http(s) url")
	errUpstream   = errors.New("upstream feed unavailable")
	errNotAFeed   = errors.New("upstream response is not a feed")
)

// Proxy relays the raw body of the feed named by ?url= for clients whose direct request was blocked.
// The body is only relayed when it parses as RSS or Atom.
func Proxy(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feedURL := strings.TrimSpace(r.URL.Query().Get("url"))
		if !isHTTPURL(feedURL) {
			respondProxy(w, http.StatusBadRequest, errMissingURL)
			return
		}

		body, contentType, err := d.Upstream.Get(r.Context(), feedURL)
		if err != nil {
			d.Logger.Warn("proxy upstream fetch failed", logger.String("url", feedURL), logger.Error(err))
			respondProxy(w, http.StatusBadGateway, errUpstream)
			return
		}

		if feed, err := rss.Parse(body); err != nil || (feed.Title == "" && len(feed.Items) == 0) {
			d.Logger.Warn("proxy upstream is not a feed", logger.String("url", feedURL), logger.Error(err))
			respondProxy(w, http.StatusBadGateway, errNotAFeed)
			return
		}

		if contentType == "" {
			contentType = "application/xml; charset=utf-8"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		metrics.ProxyRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	}
}

func respondProxy(w http.ResponseWriter, status int, err error) {
	metrics.ProxyRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	writeError(w, status, err)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
