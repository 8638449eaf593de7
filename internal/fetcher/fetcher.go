// Package fetcher aggregates the enabled sources of one session into a single
// deduplicated, time ordered article list with trending terms on top.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/metrics"
	"github.com/kovalyov-valentin/style-feed/internal/model"
	"github.com/kovalyov-valentin/style-feed/internal/trending"
)

var (
	// ErrBusy is returned when an aggregation is already running for the session.
	ErrBusy = errors.New("aggregation already in progress")
	// ErrAllSourcesFailed is reported when no source could be fetched.
	ErrAllSourcesFailed = errors.New("failed to load feeds")
)

const DefaultRevalidateDelay = 500 * time.Millisecond

// Source is anything that yields normalized articles. RSSSource implements it.
type Source interface {
	ID() string
	Name() string
	Fetch(ctx context.Context) ([]model.Article, error)
}

// SourceFactory binds a registry entry to a fetchable Source.
type SourceFactory func(model.Source) Source

type Cache interface {
	Get(ctx context.Context, key string) (model.CacheEntry, bool)
	Set(ctx context.Context, key string, articles []model.Article) error
}

// State is what a client renders.
type State struct {
	Articles   []model.Article `json:"articles"`
	Trending   []string        `json:"trending"`
	Loading    bool            `json:"loading"`
	Refreshing bool            `json:"refreshing"`
	Error      string          `json:"error,omitempty"`
}

type Options struct {
	// CacheKey namespaces the session's entry in the feed cache.
	CacheKey        string
	Window          time.Duration
	RevalidateDelay time.Duration
	Clock           func() time.Time
	Logger          logger.Logger
}

type Aggregator struct {
	newSource SourceFactory
	cache     Cache
	key       string
	window    time.Duration
	delay     time.Duration
	now       func() time.Time
	log       logger.Logger

	// holds one token while a pass runs
	slot chan struct{}

	mu          sync.RWMutex
	state       State
	initialDone bool
	revalidate  *time.Timer
	pending     sync.WaitGroup
}

func New(newSource SourceFactory, cache Cache, opts Options) *Aggregator {
	a := &Aggregator{
		newSource: newSource,
		cache:     cache,
		key:       opts.CacheKey,
		window:    opts.Window,
		delay:     opts.RevalidateDelay,
		now:       opts.Clock,
		log:       opts.Logger,
		slot:      make(chan struct{}, 1),
	}
	if a.window <= 0 {
		a.window = trending.DefaultWindow
	}
	if a.delay <= 0 {
		a.delay = DefaultRevalidateDelay
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.log == nil {
		a.log = logger.Nop()
	}
	a.state.Loading = true
	return a
}

// State returns a snapshot of the current result.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.state
	s.Articles = append([]model.Article{}, a.state.Articles...)
	s.Trending = append([]string{}, a.state.Trending...)
	return s
}

// Load serves the cached feed when it is fresh and revalidates it in the background once per
// session. Without a cache hit it aggregates in the foreground.
func (a *Aggregator) Load(ctx context.Context, sources []model.Source) (State, error) {
	if a.cache != nil {
		if entry, ok := a.cache.Get(ctx, a.key); ok {
			a.mu.Lock()
			a.setArticles(entry.Articles)
			a.state.Loading = false
			scheduled := a.initialDone || a.revalidate != nil
			a.mu.Unlock()

			if !scheduled {
				a.scheduleRevalidate(ctx, sources)
			}
			return a.State(), nil
		}
	}

	err := a.Aggregate(ctx, sources, false)
	return a.State(), err
}

// Refresh is a user triggered pass: the refreshing flag is raised even over visible content.
func (a *Aggregator) Refresh(ctx context.Context, sources []model.Source) (State, error) {
	err := a.Aggregate(ctx, sources, true)
	return a.State(), err
}

func (a *Aggregator) scheduleRevalidate(ctx context.Context, sources []model.Source) {
	ctx = context.WithoutCancel(ctx)
	sources = append([]model.Source(nil), sources...)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revalidate != nil {
		return
	}

	a.pending.Add(1)
	a.revalidate = time.AfterFunc(a.delay, func() {
		defer a.pending.Done()
		if err := a.Aggregate(ctx, sources, false); err != nil && !errors.Is(err, ErrBusy) {
			a.log.Warn("background revalidation failed", logger.String("key", a.key), logger.Error(err))
		}
	})
}

// Aggregate runs one pass over sources. A pass requested while another is running is dropped
// with ErrBusy. Individual source failures only shrink the result; ErrAllSourcesFailed is
// returned when every source failed. Previously loaded articles are never cleared by a failure.
func (a *Aggregator) Aggregate(ctx context.Context, sources []model.Source, refreshing bool) error {
	select {
	case a.slot <- struct{}{}:
	default:
		metrics.AggregationsDropped.Inc()
		return ErrBusy
	}
	defer func() { <-a.slot }()

	started := time.Now()
	defer func() { metrics.AggregationDuration.Observe(time.Since(started).Seconds()) }()

	a.mu.Lock()
	a.state.Loading = len(a.state.Articles) == 0
	a.state.Refreshing = refreshing
	a.state.Error = ""
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.state.Loading = false
		a.state.Refreshing = false
		a.initialDone = true
		a.mu.Unlock()
	}()

	results, failed := a.fetchAll(ctx, sources)

	if len(sources) > 0 && failed == len(sources) {
		a.fail(ErrAllSourcesFailed)
		return ErrAllSourcesFailed
	}

	articles, err := merge(results)
	if err != nil {
		a.fail(err)
		return err
	}

	a.mu.Lock()
	a.setArticles(articles)
	a.mu.Unlock()

	if len(articles) > 0 && a.cache != nil {
		if err := a.cache.Set(ctx, a.key, articles); err != nil {
			a.log.Warn("feed cache write failed", logger.String("key", a.key), logger.Error(err))
		}
	}

	a.log.Debug("aggregation done",
		logger.String("key", a.key),
		logger.Int("sources", len(sources)),
		logger.Int("failed", failed),
		logger.Int("articles", len(articles)))
	return nil
}

// fetchAll fans out one goroutine per source and joins them all. Results keep source order.
func (a *Aggregator) fetchAll(ctx context.Context, sources []model.Source) ([][]model.Article, int) {
	results := make([][]model.Article, len(sources))
	errs := make([]error, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)

		go func(i int, source Source) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("source %s panicked: %v", source.Name(), r)
				}
			}()

			articles, err := source.Fetch(ctx)
			if err != nil {
				a.log.Warn("fetching source failed",
					logger.String("source", source.Name()),
					logger.String("source_id", source.ID()),
					logger.Error(err))
				errs[i] = err
				return
			}
			results[i] = articles
		}(i, a.newSource(src))
	}
	wg.Wait()

	return results, lo.CountBy(errs, func(err error) bool { return err != nil })
}

// merge concatenates per source results, drops incomplete entries, keeps the first
// occurrence of each id and sorts newest first with undated entries last.
func merge(results [][]model.Article) (articles []model.Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("merging articles: %v", r)
		}
	}()

	all := lo.Flatten(results)
	all = lo.Filter(all, func(art model.Article, _ int) bool {
		return art.Title != "" && art.Link != ""
	})
	all = lo.UniqBy(all, func(art model.Article) string { return art.ID })

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PublishedUnix() > all[j].PublishedUnix()
	})
	return all, nil
}

// setArticles must be called with a.mu held.
func (a *Aggregator) setArticles(articles []model.Article) {
	a.state.Articles = articles
	a.state.Trending = trending.Compute(articles, a.window, a.now())
}

func (a *Aggregator) fail(err error) {
	a.log.Error("aggregation failed", logger.String("key", a.key), logger.Error(err))

	a.mu.Lock()
	a.state.Error = err.Error()
	a.mu.Unlock()
}

// Trending recomputes the terms over the current articles for a custom window.
func (a *Aggregator) Trending(window time.Duration) []string {
	a.mu.RLock()
	articles := a.state.Articles
	a.mu.RUnlock()
	return trending.Compute(articles, window, a.now())
}

// Start refreshes the feed every interval until ctx is done. Passes that collide with
// a running one are skipped.
func (a *Aggregator) Start(ctx context.Context, interval time.Duration, sources func() []model.Source) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Aggregate(ctx, sources(), false); err != nil && !errors.Is(err, ErrBusy) {
				a.log.Warn("periodic refresh failed", logger.String("key", a.key), logger.Error(err))
			}
		}
	}
}

// Close stops a revalidation that has not fired yet.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.revalidate != nil && a.revalidate.Stop() {
		a.pending.Done()
	}
}

// Wait blocks until a scheduled background revalidation has run.
func (a *Aggregator) Wait() {
	a.pending.Wait()
}
