package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stylefeed"

var (
	// path is direct|proxy, result is ok|error
	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_fetch_total",
		Help:      "Feed fetch attempts by path and result.",
	}, []string{"path", "result"})

	// tier is memory|durable, result is hit|miss|stale
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_cache_lookups_total",
		Help:      "Feed cache lookups by tier and result.",
	}, []string{"tier", "result"})

	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "aggregation_duration_seconds",
		Help:      "Duration of one aggregation pass.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	})

	AggregationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "aggregations_dropped_total",
		Help:      "Aggregation requests dropped because one was already running.",
	})

	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proxy_requests_total",
		Help:      "Requests served by the feed proxy endpoint by status code class.",
	}, []string{"code"})
)
