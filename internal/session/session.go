// Package session keeps one registry and one aggregator per user.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kovalyov-valentin/style-feed/internal/cache"
	"github.com/kovalyov-valentin/style-feed/internal/fetcher"
	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/registry"
)

var ErrNoUser = errors.New("user id is required")

const (
	DefaultMaxSessions   = 10000
	DefaultResolveRetry  = 30 * time.Second
	defaultResolveBudget = 15 * time.Second
)

type Session struct {
	Registry   *registry.Registry
	Aggregator *fetcher.Aggregator

	userID string

	resolveMu   sync.Mutex
	resolved    bool
	lastAttempt time.Time

	loopCancel context.CancelFunc
	stopOnce   sync.Once
}

func (s *Session) UserID() string { return s.userID }

// Feed loads the enabled sources, from the cache when it is fresh.
func (s *Session) Feed(ctx context.Context) (fetcher.State, error) {
	return s.Aggregator.Load(ctx, s.Registry.Enabled())
}

// Refresh forces a network pass over the enabled sources.
func (s *Session) Refresh(ctx context.Context) (fetcher.State, error) {
	return s.Aggregator.Refresh(ctx, s.Registry.Enabled())
}

func (s *Session) Trending(window time.Duration) []string {
	return s.Aggregator.Trending(window)
}

// stop ends the refresh loop and background work and waits for pending remote syncs.
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		if s.loopCancel != nil {
			s.loopCancel()
		}
		s.Aggregator.Close()
		s.Registry.Close()
		s.Aggregator.Wait()
		s.Registry.Wait()
	})
}

type Options struct {
	Window          time.Duration
	RevalidateDelay time.Duration
	// RefreshInterval enables a background refresh per session when positive.
	RefreshInterval time.Duration
	SyncAttempts    int
	SyncBackoff     time.Duration
	// MaxSessions bounds open sessions; the least recently used one is shut down first.
	MaxSessions int
	// ResolveRetry spaces out new resolves while the remote store is unreachable.
	ResolveRetry time.Duration
	// ResolveTimeout bounds one resolve, independent of the request that triggered it.
	ResolveTimeout time.Duration
}

type Manager struct {
	remote    registry.RemoteStore
	local     registry.LocalStore
	cache     fetcher.Cache
	newSource fetcher.SourceFactory
	opts      Options
	log       logger.Logger
	now       func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	evicted sync.WaitGroup

	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
}

func NewManager(
	remote registry.RemoteStore,
	local registry.LocalStore,
	feedCache fetcher.Cache,
	newSource fetcher.SourceFactory,
	opts Options,
	log logger.Logger,
) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.ResolveRetry <= 0 {
		opts.ResolveRetry = DefaultResolveRetry
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultResolveBudget
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		remote:    remote,
		local:     local,
		cache:     feedCache,
		newSource: newSource,
		opts:      opts,
		log:       log,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}

	sessions, err := lru.NewWithEvict(opts.MaxSessions, m.onEvict)
	if err != nil {
		// only a non-positive size fails and that is ruled out above
		panic(err)
	}
	m.sessions = sessions
	return m
}

func (m *Manager) onEvict(userID string, s *Session) {
	m.log.Debug("closing least recently used session", logger.String("user_id", userID))
	m.evicted.Add(1)
	go func() {
		defer m.evicted.Done()
		s.stop()
	}()
}

// Get returns the session of userID, creating and resolving it on first use.
// Resolving runs detached from ctx so a caller that goes away cannot turn it into a fallback.
// While the remote store is unreachable the fallback list is served and a new resolve is
// attempted at most every ResolveRetry, until the user edits the list or a resolve succeeds.
func (m *Manager) Get(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	m.mu.Lock()
	s, ok := m.sessions.Get(userID)
	if !ok {
		s = m.newSession(userID)
		m.sessions.Add(userID, s)
	}
	m.mu.Unlock()

	m.resolve(ctx, s)
	return s, nil
}

func (m *Manager) resolve(ctx context.Context, s *Session) {
	s.resolveMu.Lock()
	defer s.resolveMu.Unlock()

	if s.resolved {
		return
	}
	if !s.lastAttempt.IsZero() {
		if !s.Registry.Degraded() {
			// edited since the fallback was adopted, the edit has been saved
			s.resolved = true
			return
		}
		if m.now().Sub(s.lastAttempt) < m.opts.ResolveRetry {
			return
		}
	}
	s.lastAttempt = m.now()

	resolveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.ResolveTimeout)
	err := s.Registry.Resolve(resolveCtx, s.userID)
	cancel()

	switch {
	case errors.Is(err, registry.ErrRemoteUnavailable):
		m.log.Warn("serving fallback sources until the remote store answers",
			logger.String("user_id", s.userID), logger.Error(err))
	case err != nil:
		// local write failed, the in-memory list is still authoritative
		m.log.Warn("resolving sources", logger.String("user_id", s.userID), logger.Error(err))
		s.resolved = true
	default:
		s.resolved = true
	}

	if s.loopCancel == nil && m.opts.RefreshInterval > 0 {
		m.startLoop(s)
	}
}

func (m *Manager) newSession(userID string) *Session {
	log := m.log.With(logger.String("user_id", userID))

	var regOpts []registry.Option
	if m.opts.SyncAttempts > 0 {
		regOpts = append(regOpts, registry.WithSyncPolicy(m.opts.SyncAttempts, m.opts.SyncBackoff))
	}

	return &Session{
		userID:   userID,
		Registry: registry.New(m.remote, m.local, log, regOpts...),
		Aggregator: fetcher.New(m.newSource, m.cache, fetcher.Options{
			CacheKey:        cache.FeedKey(userID),
			Window:          m.opts.Window,
			RevalidateDelay: m.opts.RevalidateDelay,
			Logger:          log,
		}),
	}
}

func (m *Manager) startLoop(s *Session) {
	ctx, cancel := context.WithCancel(m.ctx)
	s.loopCancel = cancel

	m.loops.Add(1)
	go func() {
		defer m.loops.Done()
		err := s.Aggregator.Start(ctx, m.opts.RefreshInterval, s.Registry.Enabled)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.log.Error("refresh loop stopped", logger.String("user_id", s.userID), logger.Error(err))
		}
	}()
}

// Users lists the ids with an open session.
func (m *Manager) Users() []string {
	return m.sessions.Keys()
}

// Close stops background work and waits for pending remote syncs.
func (m *Manager) Close() {
	m.cancel()
	m.loops.Wait()

	for _, s := range m.sessions.Values() {
		s.stop()
	}
	m.evicted.Wait()
}
