package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/metrics"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

const (
	DefaultTimeout     = 8 * time.Second
	DefaultMaxBodySize = 10 << 20
	DefaultUserAgent   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	AcceptFeed         = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"

	// ProxyPath is served by the backend and relays the raw feed body of ?url=
	ProxyPath = "/feeds/fetch"
)

var ErrUnexpectedStatus = errors.New("unexpected status code")

// Client carries what every RSSSource needs to reach a feed: the HTTP client,
// the proxy used when the direct request fails, and the per attempt timeout.
type Client struct {
	http         *http.Client
	proxyBaseURL string
	timeout      time.Duration
	userAgent    string
	maxBodySize  int64
	log          logger.Logger
}

type ClientOptions struct {
	HTTPClient *http.Client
	// Empty disables the proxy fallback
	ProxyBaseURL string
	Timeout      time.Duration
	UserAgent    string
	MaxBodySize  int64
	Logger       logger.Logger
}

func NewClient(opts ClientOptions) *Client {
	c := &Client{
		http:         opts.HTTPClient,
		proxyBaseURL: strings.TrimRight(opts.ProxyBaseURL, "/"),
		timeout:      opts.Timeout,
		userAgent:    opts.UserAgent,
		maxBodySize:  opts.MaxBodySize,
		log:          opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.maxBodySize <= 0 {
		c.maxBodySize = DefaultMaxBodySize
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	return c
}

// Get performs one bounded request with feed headers and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", AcceptFeed)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// ProxyURL builds the proxy request for a feed URL.
func (c *Client) ProxyURL(feedURL string) string {
	return c.proxyBaseURL + ProxyPath + "?url=" + url.QueryEscape(feedURL)
}

// RSSSource fetches one user source.
type RSSSource struct {
	URL        string
	SourceID   string
	SourceName string

	client *Client
}

func NewRSSSourceFromModel(m model.Source, client *Client) RSSSource {
	return RSSSource{
		URL:        m.URL,
		SourceID:   m.ID,
		SourceName: m.Name,
		client:     client,
	}
}

// Fetch tries the feed directly, then through the proxy. Each attempt has its own timeout
// and is never retried. The error is only returned when both attempts failed.
func (s RSSSource) Fetch(ctx context.Context) ([]model.Article, error) {
	articles, err := s.loadFeed(ctx, s.URL)
	if err == nil {
		metrics.FeedFetches.WithLabelValues("direct", "ok").Inc()
		return articles, nil
	}
	metrics.FeedFetches.WithLabelValues("direct", "error").Inc()

	if s.client.proxyBaseURL == "" {
		return nil, fmt.Errorf("fetching %s: %w", s.SourceName, err)
	}

	s.client.log.Debug("direct fetch failed, trying proxy",
		logger.String("source", s.SourceName),
		logger.String("url", s.URL),
		logger.Error(err))

	articles, proxyErr := s.loadFeed(ctx, s.client.ProxyURL(s.URL))
	if proxyErr != nil {
		metrics.FeedFetches.WithLabelValues("proxy", "error").Inc()
		return nil, fmt.Errorf("fetching %s: direct: %v, proxy: %w", s.SourceName, err, proxyErr)
	}
	metrics.FeedFetches.WithLabelValues("proxy", "ok").Inc()
	return articles, nil
}

func (s RSSSource) loadFeed(ctx context.Context, rawURL string) ([]model.Article, error) {
	body, _, err := s.client.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	articles := make([]model.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if article, ok := Normalize(s.SourceName, item); ok {
			articles = append(articles, article)
		}
	}
	return articles, nil
}

func (s RSSSource) ID() string {
	return s.SourceID
}

func (s RSSSource) Name() string {
	return s.SourceName
}
