package httpserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/style-feed/internal/cache"
	"github.com/kovalyov-valentin/style-feed/internal/fetcher"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver"
	"github.com/kovalyov-valentin/style-feed/internal/httpserver/deps"
	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/model"
	"github.com/kovalyov-valentin/style-feed/internal/session"
	"github.com/kovalyov-valentin/style-feed/internal/source"
)

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Runway</title><link>https://runway.example</link>
<item><title>Denim is back</title><link>https://runway.example/denim</link><pubDate>Sun, 14 Sep 2025 09:00:00 +0000</pubDate><description>Denim everywhere</description></item>
<item><title>Denim jackets</title><link>https://runway.example/jackets</link><pubDate>Sun, 14 Sep 2025 08:00:00 +0000</pubDate></item>
</channel></rss>`

type memSources struct {
	mu   sync.Mutex
	data map[string][]model.Source
}

func (m *memSources) Sources(_ context.Context, userID string) ([]model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[userID], nil
}

func (m *memSources) SaveSources(_ context.Context, userID string, sources []model.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[userID] = append([]model.Source(nil), sources...)
	return nil
}

type fixture struct {
	handler http.Handler
	store   *memSources
	feeds   *httptest.Server
}

func newFixture(t *testing.T, tweak func(*deps.Deps)) *fixture {
	t.Helper()

	feeds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rss":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = io.WriteString(w, rssBody)
		case "/html":
			_, _ = io.WriteString(w, "<html><body>not a feed</body></html>")
		default:
			http.Error(w, "nope", http.StatusInternalServerError)
		}
	}))
	t.Cleanup(feeds.Close)

	store := &memSources{data: map[string][]model.Source{
		"u1": {{ID: "runway", Name: "Runway", URL: feeds.URL + "/rss", Enabled: true}},
	}}

	client := source.NewClient(source.ClientOptions{Timeout: 2 * time.Second})
	manager := session.NewManager(
		store,
		nil,
		cache.NewTiered(cache.NewMemory(), nil),
		func(src model.Source) fetcher.Source { return source.NewRSSSourceFromModel(src, client) },
		session.Options{SyncAttempts: 1},
		logger.Nop(),
	)
	t.Cleanup(manager.Close)

	d := deps.Deps{
		Logger:         logger.Nop(),
		StartTime:      time.Now(),
		Sessions:       manager,
		SourceStore:    store,
		Upstream:       client,
		TrendingWindow: 100000 * time.Hour,
	}
	if tweak != nil {
		tweak(&d)
	}

	return &fixture{
		handler: httpserver.New(":0", logger.Nop(), d).Handler(),
		store:   store,
		feeds:   feeds,
	}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])
}

func TestProxy(t *testing.T) {
	f := newFixture(t, nil)
	proxy := func(target string) *httptest.ResponseRecorder {
		return f.do(t, http.MethodGet, "/feeds/fetch?url="+url.QueryEscape(target), "")
	}

	rec := proxy(f.feeds.URL + "/rss")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, rssBody, rec.Body.String())
	assert.Equal(t, "application/rss+xml", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusBadGateway, proxy(f.feeds.URL+"/html").Code)
	assert.Equal(t, http.StatusBadGateway, proxy(f.feeds.URL+"/broken").Code)
	assert.Equal(t, http.StatusBadRequest, proxy("ftp://example.com/feed").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/feeds/fetch", "").Code)
}

func TestProxy_RejectsPrivateHosts(t *testing.T) {
	f := newFixture(t, func(d *deps.Deps) {
		d.Upstream = source.NewClient(source.ClientOptions{
			HTTPClient: source.NewGuardedHTTPClient(time.Second),
			Timeout:    2 * time.Second,
		})
	})
	proxy := func(target string) int {
		return f.do(t, http.MethodGet, "/feeds/fetch?url="+url.QueryEscape(target), "").Code
	}

	assert.Equal(t, http.StatusBadGateway, proxy(f.feeds.URL+"/rss"), "loopback listener")
	assert.Equal(t, http.StatusBadGateway, proxy("http://169.254.169.254/latest/meta-data/"))
	assert.Equal(t, http.StatusBadGateway, proxy("http://10.0.0.1/feed"))
	assert.Equal(t, http.StatusBadGateway, proxy("http://[::1]:80/feed"))
}

func TestProxy_RateLimited(t *testing.T) {
	f := newFixture(t, func(d *deps.Deps) {
		d.ProxyRateLimit = 0.001
		d.ProxyBurst = 1
	})
	target := "/feeds/fetch?url=" + url.QueryEscape(f.feeds.URL+"/rss")

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, target, "").Code)
	rec := f.do(t, http.MethodGet, target, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestFeedSourcesEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/users/nobody/feed-sources", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodPut, "/users/u2/feed-sources",
		`{"sources":[{"id":"a","name":"A","url":"https://a.example/feed","enabled":true}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/users/u2/feed-sources", "")
	assert.Equal(t, []model.Source{{ID: "a", Name: "A", URL: "https://a.example/feed", Enabled: true}},
		decode[[]model.Source](t, rec))

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/users/u2/feed-sources", `{"sources":[{"name":"x"}]}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/users/u2/feed-sources", `nope`).Code)
}

func TestFeedSourcesWithoutStore(t *testing.T) {
	f := newFixture(t, func(d *deps.Deps) { d.SourceStore = nil })
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/users/u1/feed-sources", "").Code)
}

func TestFeedAndTrending(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/users/u1/feed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[fetcher.State](t, rec)
	require.Len(t, state.Articles, 2)
	assert.Equal(t, "Runway::https://runway.example/denim", state.Articles[0].ID)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)

	rec = f.do(t, http.MethodGet, "/api/users/u1/trending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	terms := decode[map[string]any](t, rec)["terms"].([]any)
	require.NotEmpty(t, terms)
	assert.Equal(t, "denim", terms[0])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/users/u1/trending?window=soon", "").Code)

	rec = f.do(t, http.MethodPost, "/api/users/u1/feed/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[fetcher.State](t, rec).Refreshing)
}

func TestFeed_AllSourcesFailingReportsError(t *testing.T) {
	f := newFixture(t, nil)
	f.store.data["u3"] = []model.Source{{ID: "down", Name: "Down", URL: f.feeds.URL + "/broken", Enabled: true}}

	rec := f.do(t, http.MethodGet, "/api/users/u3/feed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed to load feeds", decode[fetcher.State](t, rec).Error)
}

func TestSourcesAPI(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/users/u1/sources", `{"name":"Test","url":"not-a-url"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/users/u1/sources", `{"name":"Test","url":"https://x.com/feed"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	added := decode[model.Source](t, rec)
	assert.Equal(t, "x-com-feed", added.ID)

	rec = f.do(t, http.MethodPost, "/api/users/u1/sources", `{"name":"Again","url":"https://x.com/feed"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "feed already exists", decode[map[string]string](t, rec)["error"])

	rec = f.do(t, http.MethodPatch, "/api/users/u1/sources/x-com-feed", `{"enabled":false,"name":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[model.Source](t, rec)
	assert.False(t, updated.Enabled)
	assert.Equal(t, "Renamed", updated.Name)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPatch, "/api/users/u1/sources/missing", `{"enabled":true}`).Code)

	rec = f.do(t, http.MethodGet, "/api/users/u1/sources", "")
	assert.Len(t, decode[[]model.Source](t, rec), 2)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/api/users/u1/sources/x-com-feed", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/api/users/u1/sources/x-com-feed", "").Code)

	rec = f.do(t, http.MethodPost, "/api/users/u1/sources/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, s := range decode[[]model.Source](t, rec) {
		assert.True(t, s.IsDefault)
	}
}
