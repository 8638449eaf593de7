// Package cache holds aggregated feeds in two tiers: process memory, checked first,
// and a durable store that survives restarts.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/metrics"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

const DefaultTTL = 10 * time.Minute

// Durable is the persistent tier. A miss is (nil, nil).
type Durable interface {
	LoadEntry(ctx context.Context, key string) (*model.CacheEntry, error)
	StoreEntry(ctx context.Context, key string, entry model.CacheEntry) error
}

// DefaultMemoryEntries bounds the in-process tier; the least recently used user feed is evicted first.
const DefaultMemoryEntries = 1024

// Memory is the in-process tier.
type Memory struct {
	entries *lru.Cache[string, model.CacheEntry]
}

func NewMemory() *Memory {
	return NewMemorySize(DefaultMemoryEntries)
}

func NewMemorySize(size int) *Memory {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	// lru.New only fails on a non-positive size
	entries, _ := lru.New[string, model.CacheEntry](size)
	return &Memory{entries: entries}
}

func (m *Memory) Get(key string) (model.CacheEntry, bool) {
	return m.entries.Get(key)
}

func (m *Memory) Set(key string, entry model.CacheEntry) {
	m.entries.Add(key, entry)
}

func (m *Memory) Delete(key string) {
	m.entries.Remove(key)
}

// Tiered reads memory then durable and writes both. Entries older than ttl are treated as absent.
type Tiered struct {
	memory  *Memory
	durable Durable
	ttl     time.Duration
	now     func() time.Time
	log     logger.Logger
}

type Option func(*Tiered)

func WithTTL(ttl time.Duration) Option {
	return func(t *Tiered) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tiered) { t.now = now }
}

func WithLogger(log logger.Logger) Option {
	return func(t *Tiered) { t.log = log }
}

// NewTiered builds the two tier cache. durable may be nil, then only memory is used.
func NewTiered(memory *Memory, durable Durable, opts ...Option) *Tiered {
	t := &Tiered{
		memory:  memory,
		durable: durable,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FeedKey namespaces a user's aggregated feed.
func FeedKey(userID string) string {
	return "feed:" + userID
}

// Get returns a fresh entry. Durable failures count as a miss.
func (t *Tiered) Get(ctx context.Context, key string) (model.CacheEntry, bool) {
	now := t.now()

	if e, ok := t.memory.Get(key); ok {
		if e.FreshAt(now, t.ttl) {
			metrics.CacheLookups.WithLabelValues("memory", "hit").Inc()
			return e, true
		}
		metrics.CacheLookups.WithLabelValues("memory", "stale").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("memory", "miss").Inc()
	}

	if t.durable == nil {
		return model.CacheEntry{}, false
	}

	e, err := t.durable.LoadEntry(ctx, key)
	if err != nil {
		t.log.Warn("durable cache read failed", logger.String("key", key), logger.Error(err))
		metrics.CacheLookups.WithLabelValues("durable", "miss").Inc()
		return model.CacheEntry{}, false
	}
	if e == nil {
		metrics.CacheLookups.WithLabelValues("durable", "miss").Inc()
		return model.CacheEntry{}, false
	}
	if !e.FreshAt(now, t.ttl) {
		metrics.CacheLookups.WithLabelValues("durable", "stale").Inc()
		return model.CacheEntry{}, false
	}

	metrics.CacheLookups.WithLabelValues("durable", "hit").Inc()
	t.memory.Set(key, *e)
	return *e, true
}

// Set stamps the articles with the current time and writes both tiers.
// The memory tier is always written; the durable error is returned for logging.
func (t *Tiered) Set(ctx context.Context, key string, articles []model.Article) error {
	entry := model.CacheEntry{Articles: articles, Timestamp: t.now().UnixMilli()}
	t.memory.Set(key, entry)

	if t.durable == nil {
		return nil
	}
	return t.durable.StoreEntry(ctx, key, entry)
}
