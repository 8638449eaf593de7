package deps

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/model"
	"github.com/kovalyov-valentin/style-feed/internal/session"
	"github.com/kovalyov-valentin/style-feed/internal/source"
)

// SourceStore is the persistent per user source list behind /users/{userId}/feed-sources.
type SourceStore interface {
	Sources(ctx context.Context, userID string) ([]model.Source, error)
	SaveSources(ctx context.Context, userID string, sources []model.Source) error
}

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string

	Sessions    *session.Manager
	SourceStore SourceStore    // nil when no database is configured
	Upstream    *source.Client // fetches feeds for the proxy endpoint, without its own proxy fallback

	ProxyRateLimit rate.Limit // per client on /feeds/fetch, zero disables
	ProxyBurst     int
	TrustProxy     bool // resolve the client IP from proxy headers

	TrendingWindow time.Duration
}
