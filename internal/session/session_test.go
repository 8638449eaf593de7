package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/style-feed/internal/cache"
	"github.com/kovalyov-valentin/style-feed/internal/fetcher"
	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

var errDown = errors.New("remote down")

type store struct {
	mu     sync.Mutex
	data   map[string][]model.Source
	down   bool
	writes int
}

func (s *store) Sources(ctx context.Context, userID string) ([]model.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errDown
	}
	return s.data[userID], nil
}

func (s *store) SaveSources(ctx context.Context, userID string, sources []model.Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errDown
	}
	s.data[userID] = sources
	s.writes++
	return nil
}

func (s *store) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *store) get(userID string) ([]model.Source, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[userID], s.writes
}

type staticSource struct{ src model.Source }

func (s staticSource) ID() string   { return s.src.ID }
func (s staticSource) Name() string { return s.src.Name }

func (s staticSource) Fetch(context.Context) ([]model.Article, error) {
	link := s.src.URL + "/post"
	return []model.Article{{ID: s.src.Name + "::" + link, Title: "post", Link: link, Source: s.src.Name}}, nil
}

func newManager(remote *store) *Manager {
	return newManagerWith(remote, Options{SyncAttempts: 1})
}

func newManagerWith(remote *store, opts Options) *Manager {
	return NewManager(
		remote,
		nil,
		cache.NewTiered(cache.NewMemory(), nil),
		func(src model.Source) fetcher.Source { return staticSource{src} },
		opts,
		logger.Nop(),
	)
}

func TestManager_SessionPerUser(t *testing.T) {
	remote := &store{data: map[string][]model.Source{
		"alice": {{ID: "a", Name: "A", URL: "https://a.example", Enabled: true}},
		"bob":   {{ID: "b", Name: "B", URL: "https://b.example", Enabled: true}},
	}}
	m := newManager(remote)
	defer m.Close()
	ctx := context.Background()

	alice, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	again, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Same(t, alice, again)

	bob, err := m.Get(ctx, "bob")
	require.NoError(t, err)

	aliceFeed, err := alice.Feed(ctx)
	require.NoError(t, err)
	bobFeed, err := bob.Feed(ctx)
	require.NoError(t, err)

	require.Len(t, aliceFeed.Articles, 1)
	require.Len(t, bobFeed.Articles, 1)
	assert.Equal(t, "A", aliceFeed.Articles[0].Source)
	assert.Equal(t, "B", bobFeed.Articles[0].Source, "feed cache is scoped per user")
	assert.ElementsMatch(t, []string{"alice", "bob"}, m.Users())
}

func TestManager_EmptyUser(t *testing.T) {
	m := newManager(&store{data: map[string][]model.Source{}})
	defer m.Close()

	_, err := m.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestSession_RefreshSeesRegistryChanges(t *testing.T) {
	remote := &store{data: map[string][]model.Source{
		"u1": {{ID: "a", Name: "A", URL: "https://a.example", Enabled: true}},
	}}
	m := newManager(remote)
	defer m.Close()
	ctx := context.Background()

	s, err := m.Get(ctx, "u1")
	require.NoError(t, err)
	_, err = s.Feed(ctx)
	require.NoError(t, err)

	_, err = s.Registry.AddSource(ctx, "B", "https://b.example")
	require.NoError(t, err)
	require.NoError(t, s.Registry.ToggleSource(ctx, "a", false))

	state, err := s.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, state.Articles, 1)
	assert.Equal(t, "B", state.Articles[0].Source)
}

func TestManager_CancelledRequestKeepsRemoteSources(t *testing.T) {
	mine := []model.Source{{ID: "m", Name: "Mine", URL: "https://mine.example", Enabled: true}}
	remote := &store{data: map[string][]model.Source{"u1": mine}}
	m := newManager(remote)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := m.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, mine, s.Registry.Sources())
	assert.False(t, s.Registry.Degraded())

	m.Close()
	stored, _ := remote.get("u1")
	assert.Equal(t, mine, stored, "remote list must not be replaced by defaults")
}

func TestManager_RetriesResolveAfterRemoteError(t *testing.T) {
	mine := []model.Source{{ID: "m", Name: "Mine", URL: "https://mine.example", Enabled: true}}
	remote := &store{data: map[string][]model.Source{"u1": mine}, down: true}
	m := newManagerWith(remote, Options{SyncAttempts: 1, ResolveRetry: time.Nanosecond})
	ctx := context.Background()

	s, err := m.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, s.Registry.Degraded())
	assert.NotEqual(t, mine, s.Registry.Sources())
	_, writes := remote.get("u1")
	assert.Zero(t, writes, "fallback list must never reach the remote store")

	remote.setDown(false)
	time.Sleep(time.Millisecond)

	again, err := m.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, mine, again.Registry.Sources())
	assert.False(t, again.Registry.Degraded())

	m.Close()
	stored, _ := remote.get("u1")
	assert.Equal(t, mine, stored)
}

func TestManager_WaitsBeforeRetryingResolve(t *testing.T) {
	mine := []model.Source{{ID: "m", Name: "Mine", URL: "https://mine.example", Enabled: true}}
	remote := &store{data: map[string][]model.Source{"u1": mine}, down: true}
	m := newManagerWith(remote, Options{SyncAttempts: 1, ResolveRetry: time.Hour})
	defer m.Close()
	ctx := context.Background()

	s, err := m.Get(ctx, "u1")
	require.NoError(t, err)
	remote.setDown(false)

	_, err = m.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, s.Registry.Degraded(), "retry interval has not elapsed")
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	remote := &store{data: map[string][]model.Source{}}
	m := newManagerWith(remote, Options{SyncAttempts: 1, MaxSessions: 2})
	defer m.Close()
	ctx := context.Background()

	first, err := m.Get(ctx, "a")
	require.NoError(t, err)
	_, err = m.Get(ctx, "b")
	require.NoError(t, err)
	_, err = m.Get(ctx, "c")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b", "c"}, m.Users())

	reopened, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.NotSame(t, first, reopened)
	assert.Len(t, m.Users(), 2)
}
