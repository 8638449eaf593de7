// Package registry owns the feed sources of one user: it resolves them from the remote store,
// the local cache or the defaults, applies edits and persists every change.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

var (
	ErrInvalidURL     = errors.New("feed url must start with http:// or https://")
	ErrDuplicateURL   = errors.New("feed already exists")
	ErrSourceNotFound = errors.New("source not found")
	ErrNotReady       = errors.New("sources are not loaded yet")
	// ErrRemoteUnavailable reports a resolve that could not read the remote store and
	// adopted a fallback list without persisting it.
	ErrRemoteUnavailable = errors.New("remote sources unavailable")
)

// RemoteStore is the backend copy of a user's sources.
type RemoteStore interface {
	Sources(ctx context.Context, userID string) ([]model.Source, error)
	SaveSources(ctx context.Context, userID string, sources []model.Source) error
}

// LocalStore is the fallback cache. A miss is (nil, nil).
type LocalStore interface {
	LoadSources(ctx context.Context, userID string) ([]model.Source, error)
	StoreSources(ctx context.Context, userID string, sources []model.Source) error
}

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

const (
	defaultSyncAttempts = 3
	defaultSyncBackoff  = 200 * time.Millisecond
	syncAttemptTimeout  = 10 * time.Second
)

type Registry struct {
	remote RemoteStore
	local  LocalStore
	log    logger.Logger

	mu      sync.RWMutex
	userID  string
	sources []model.Source
	state   State
	// bumped on every Resolve so a slow resolve for a previous user is discarded
	generation uint64
	// set while the list is a fallback adopted after a failed remote read
	degraded bool

	// serializes remote writes; syncVersion lets a queued write skip when a newer one exists
	syncMu       sync.Mutex
	syncVersion  atomic.Uint64
	pending      sync.WaitGroup
	syncAttempts int
	syncBackoff  time.Duration
	// local writes of an older snapshot are skipped once a newer one exists
	localMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Registry)

// WithSyncPolicy tunes the remote sync retries.
func WithSyncPolicy(attempts int, backoff time.Duration) Option {
	return func(r *Registry) {
		if attempts > 0 {
			r.syncAttempts = attempts
		}
		if backoff >= 0 {
			r.syncBackoff = backoff
		}
	}
}

func New(remote RemoteStore, local LocalStore, log logger.Logger, opts ...Option) *Registry {
	r := &Registry{
		remote:       remote,
		local:        local,
		log:          log,
		syncAttempts: defaultSyncAttempts,
		syncBackoff:  defaultSyncBackoff,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve loads the sources of userID: a non-empty remote list wins, then the local cache,
// then the defaults. The adopted list is saved back right away.
// When the remote read fails the fallback list is adopted but not saved, and
// ErrRemoteUnavailable is returned so the caller can resolve again later.
// An empty userID touches no store and leaves the registry loading.
func (r *Registry) Resolve(ctx context.Context, userID string) error {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	r.userID = userID
	r.sources = nil
	r.state = StateLoading
	r.degraded = false
	r.mu.Unlock()

	if userID == "" {
		return nil
	}

	sources, remoteErr := r.load(ctx, userID)

	r.mu.Lock()
	if gen != r.generation {
		r.mu.Unlock()
		return nil
	}
	r.sources = sources
	r.state = StateReady
	r.degraded = remoteErr != nil
	r.mu.Unlock()

	if remoteErr != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, remoteErr)
	}
	return r.Save(ctx)
}

func (r *Registry) load(ctx context.Context, userID string) ([]model.Source, error) {
	log := r.log.With(logger.String("user_id", userID))

	var remoteErr error
	if r.remote != nil {
		sources, err := r.remote.Sources(ctx, userID)
		switch {
		case err != nil:
			remoteErr = err
			log.Warn("remote sources unavailable, falling back to local cache", logger.Error(err))
		case len(sources) > 0:
			log.Debug("sources resolved from remote", logger.Int("count", len(sources)))
			return sources, nil
		}
	}

	if r.local != nil {
		sources, err := r.local.LoadSources(ctx, userID)
		switch {
		case err != nil:
			log.Warn("local sources unreadable, using defaults", logger.Error(err))
		case sources != nil:
			log.Debug("sources resolved from local cache", logger.Int("count", len(sources)))
			return sources, remoteErr
		}
	}

	log.Info("seeding default sources")
	return Defaults(), remoteErr
}

// Save writes the current list to the local cache and schedules the remote sync.
// Only the local write error is returned; remote failures are logged and retried.
func (r *Registry) Save(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateReady {
		r.mu.Unlock()
		return ErrNotReady
	}
	userID := r.userID
	sources := clone(r.sources)
	version := r.syncVersion.Add(1)
	r.degraded = false
	r.mu.Unlock()

	if r.remote != nil {
		r.syncRemote(ctx, version, userID, sources)
	}
	return r.storeLocal(ctx, version, userID, sources)
}

func (r *Registry) storeLocal(ctx context.Context, version uint64, userID string, sources []model.Source) error {
	if r.local == nil {
		return nil
	}

	r.localMu.Lock()
	defer r.localMu.Unlock()
	// a newer snapshot is waiting for the lock and will write itself
	if version != r.syncVersion.Load() {
		return nil
	}
	if err := r.local.StoreSources(ctx, userID, sources); err != nil {
		return fmt.Errorf("storing sources locally: %w", err)
	}
	return nil
}

func (r *Registry) syncRemote(ctx context.Context, version uint64, userID string, sources []model.Source) {
	ctx = context.WithoutCancel(ctx)
	log := r.log.With(logger.String("user_id", userID))

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()

		r.syncMu.Lock()
		defer r.syncMu.Unlock()

		wait := r.syncBackoff
		for attempt := 1; attempt <= r.syncAttempts; attempt++ {
			// a newer save is queued behind us and carries a more recent list
			if version != r.syncVersion.Load() {
				return
			}

			attemptCtx, cancel := context.WithTimeout(ctx, syncAttemptTimeout)
			err := r.remote.SaveSources(attemptCtx, userID, sources)
			cancel()
			if err == nil {
				return
			}

			if attempt == r.syncAttempts {
				log.Error("remote sources sync failed", logger.Int("attempts", attempt), logger.Error(err))
				return
			}
			log.Warn("remote sources sync failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("next_retry_in", wait),
				logger.Error(err))

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-r.done:
				timer.Stop()
				log.Warn("registry closed, remote sources sync abandoned", logger.Int("attempts", attempt))
				return
			}
			wait *= 2
		}
	}()
}

// Wait blocks until scheduled remote syncs are done.
func (r *Registry) Wait() {
	r.pending.Wait()
}

// Close stops pending retries. An attempt already in flight runs to its timeout.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// AddSource appends a new enabled source. The url must be http(s) and not already present.
// A blank name falls back to the url host.
func (r *Registry) AddSource(ctx context.Context, name, rawURL string) (model.Source, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !httpPrefix.MatchString(rawURL) {
		return model.Source{}, ErrInvalidURL
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = hostOf(rawURL)
	}

	r.mu.Lock()
	if r.state != StateReady {
		r.mu.Unlock()
		return model.Source{}, ErrNotReady
	}
	if lo.ContainsBy(r.sources, func(s model.Source) bool { return s.URL == rawURL }) {
		r.mu.Unlock()
		return model.Source{}, ErrDuplicateURL
	}

	src := model.Source{
		ID:      uniqueID(r.sources, SourceID(rawURL)),
		Name:    name,
		URL:     rawURL,
		Enabled: true,
	}
	r.sources = append(clone(r.sources), src)
	r.mu.Unlock()

	return src, r.Save(ctx)
}

func (r *Registry) ToggleSource(ctx context.Context, id string, enabled bool) error {
	return r.update(ctx, id, func(s *model.Source) { s.Enabled = enabled })
}

// RenameSource keeps the previous name when the new one is blank.
func (r *Registry) RenameSource(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	return r.update(ctx, id, func(s *model.Source) {
		if name != "" {
			s.Name = name
		}
	})
}

func (r *Registry) RemoveSource(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.state != StateReady {
		r.mu.Unlock()
		return ErrNotReady
	}
	_, idx, found := lo.FindIndexOf(r.sources, func(s model.Source) bool { return s.ID == id })
	if !found {
		r.mu.Unlock()
		return ErrSourceNotFound
	}
	next := clone(r.sources)
	r.sources = append(next[:idx], next[idx+1:]...)
	r.mu.Unlock()

	return r.Save(ctx)
}

// ResetToDefaults replaces the whole list with the default sources.
func (r *Registry) ResetToDefaults(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateReady {
		r.mu.Unlock()
		return ErrNotReady
	}
	r.sources = Defaults()
	r.mu.Unlock()

	return r.Save(ctx)
}

func (r *Registry) update(ctx context.Context, id string, fn func(*model.Source)) error {
	r.mu.Lock()
	if r.state != StateReady {
		r.mu.Unlock()
		return ErrNotReady
	}
	_, idx, found := lo.FindIndexOf(r.sources, func(s model.Source) bool { return s.ID == id })
	if !found {
		r.mu.Unlock()
		return ErrSourceNotFound
	}
	next := clone(r.sources)
	fn(&next[idx])
	r.sources = next
	r.mu.Unlock()

	return r.Save(ctx)
}

// Sources returns a copy of the current list.
func (r *Registry) Sources() []model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return clone(r.sources)
}

// Enabled returns the sources the aggregator should fetch.
func (r *Registry) Enabled() []model.Source {
	return Enabled(r.Sources())
}

func (r *Registry) UserID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userID
}

func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Loading is true until a list has been adopted for a non-empty user.
func (r *Registry) Loading() bool {
	return r.State() != StateReady
}

// Degraded reports a fallback list adopted after a failed remote read that has not been saved since.
func (r *Registry) Degraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded
}

// Enabled filters sources down to the enabled ones.
func Enabled(sources []model.Source) []model.Source {
	return lo.Filter(sources, func(s model.Source, _ int) bool { return s.Enabled })
}

var (
	httpPrefix = regexp.MustCompile(`(?i)^https?://`)
	slugRuns   = regexp.MustCompile(`[^a-z0-9]+`)
)

// SourceID derives a stable id from the url host and path, or a random one
// when the url cannot be parsed.
func SourceID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return uuid.NewString()
	}
	slug := strings.Trim(slugRuns.ReplaceAllString(strings.ToLower(u.Host+u.Path), "-"), "-")
	if slug == "" {
		return uuid.NewString()
	}
	return slug
}

func uniqueID(sources []model.Source, id string) string {
	taken := func(candidate string) bool {
		return lo.ContainsBy(sources, func(s model.Source) bool { return s.ID == candidate })
	}
	if !taken(id) {
		return id
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", id, i)
		if !taken(candidate) {
			return candidate
		}
	}
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}

func clone(sources []model.Source) []model.Source {
	if sources == nil {
		return nil
	}
	out := make([]model.Source, len(sources))
	copy(out, sources)
	return out
}
