package fetcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/style-feed/internal/cache"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

type fakeSource struct {
	src   model.Source
	items []model.Article
	err   error
	calls *atomic.Int32
	block chan struct{}
	enter chan struct{}
}

func (f fakeSource) ID() string   { return f.src.ID }
func (f fakeSource) Name() string { return f.src.Name }

func (f fakeSource) Fetch(ctx context.Context) ([]model.Article, error) {
	if f.calls != nil {
		f.calls.Add(1)
	}
	if f.enter != nil {
		f.enter <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.items, f.err
}

type feeds struct {
	items map[string][]model.Article
	errs  map[string]error
	calls atomic.Int32
	block chan struct{}
	enter chan struct{}
}

func newFeeds() *feeds {
	return &feeds{items: map[string][]model.Article{}, errs: map[string]error{}}
}

func (f *feeds) factory(src model.Source) Source {
	return fakeSource{
		src:   src,
		items: f.items[src.ID],
		err:   f.errs[src.ID],
		calls: &f.calls,
		block: f.block,
		enter: f.enter,
	}
}

func at(h int) *time.Time {
	t := time.Date(2025, 9, 14, h, 0, 0, 0, time.UTC)
	return &t
}

func article(source, link string, published *time.Time) model.Article {
	return model.Article{
		ID:          source + "::" + link,
		Title:       "title " + link,
		Link:        link,
		Source:      source,
		PublishedAt: published,
	}
}

var (
	vogue = model.Source{ID: "vogue", Name: "Vogue", URL: "https://vogue.example/feed", Enabled: true}
	elle  = model.Source{ID: "elle", Name: "Elle", URL: "https://elle.example/feed", Enabled: true}
	gq    = model.Source{ID: "gq", Name: "GQ", URL: "https://gq.example/feed", Enabled: true}
)

func newAggregator(f *feeds, c Cache) *Aggregator {
	return New(f.factory, c, Options{
		CacheKey:        cache.FeedKey("u1"),
		RevalidateDelay: time.Millisecond,
		Clock:           func() time.Time { return time.Date(2025, 9, 14, 12, 0, 0, 0, time.UTC) },
	})
}

func TestAggregate_PartialFailure(t *testing.T) {
	f := newFeeds()
	f.items["vogue"] = []model.Article{article("Vogue", "https://v/1", at(9))}
	f.errs["elle"] = errors.New("both paths failed")
	f.items["gq"] = []model.Article{article("GQ", "https://g/1", at(8))}
	a := newAggregator(f, nil)

	require.NoError(t, a.Aggregate(context.Background(), []model.Source{vogue, elle, gq}, false))

	s := a.State()
	assert.Empty(t, s.Error)
	require.Len(t, s.Articles, 2)
	assert.Equal(t, "Vogue::https://v/1", s.Articles[0].ID)
	assert.Equal(t, "GQ::https://g/1", s.Articles[1].ID)
}

func TestAggregate_Deduplicates(t *testing.T) {
	f := newFeeds()
	first := article("Vogue", "https://v/1", at(9))
	dup := first
	dup.Title = "later copy"
	f.items["vogue"] = []model.Article{first}
	f.items["elle"] = []model.Article{dup}
	a := newAggregator(f, nil)

	require.NoError(t, a.Aggregate(context.Background(), []model.Source{vogue, elle}, false))

	s := a.State()
	require.Len(t, s.Articles, 1)
	assert.Equal(t, first.Title, s.Articles[0].Title)
}

func TestAggregate_OrdersNewestFirstUndatedLast(t *testing.T) {
	f := newFeeds()
	f.items["vogue"] = []model.Article{
		article("Vogue", "https://v/undated", nil),
		article("Vogue", "https://v/t2", at(8)),
	}
	f.items["elle"] = []model.Article{
		article("Elle", "https://e/t3", at(7)),
		article("Elle", "https://e/t1", at(9)),
	}
	a := newAggregator(f, nil)

	require.NoError(t, a.Aggregate(context.Background(), []model.Source{vogue, elle}, false))

	ids := make([]string, 0, 4)
	for _, art := range a.State().Articles {
		ids = append(ids, art.Link)
	}
	assert.Equal(t, []string{"https://e/t1", "https://v/t2", "https://e/t3", "https://v/undated"}, ids)
}

func TestAggregate_DropsIncompleteEntries(t *testing.T) {
	f := newFeeds()
	noTitle := article("Vogue", "https://v/2", at(9))
	noTitle.Title = ""
	f.items["vogue"] = []model.Article{article("Vogue", "https://v/1", at(9)), noTitle}
	a := newAggregator(f, nil)

	require.NoError(t, a.Aggregate(context.Background(), []model.Source{vogue}, false))
	assert.Len(t, a.State().Articles, 1)
}

func TestAggregate_TotalFailureKeepsArticles(t *testing.T) {
	f := newFeeds()
	f.items["vogue"] = []model.Article{article("Vogue", "https://v/1", at(9))}
	a := newAggregator(f, nil)
	ctx := context.Background()

	require.NoError(t, a.Aggregate(ctx, []model.Source{vogue}, false))

	f.items["vogue"] = nil
	f.errs["vogue"] = errors.New("offline")
	err := a.Aggregate(ctx, []model.Source{vogue}, true)

	assert.ErrorIs(t, err, ErrAllSourcesFailed)
	s := a.State()
	assert.Equal(t, "failed to load feeds", s.Error)
	assert.Len(t, s.Articles, 1)
	assert.False(t, s.Refreshing)
	assert.False(t, s.Loading)
}

func TestAggregate_NoSourcesIsEmptyWithoutError(t *testing.T) {
	a := newAggregator(newFeeds(), nil)

	require.NoError(t, a.Aggregate(context.Background(), nil, false))

	s := a.State()
	assert.Empty(t, s.Articles)
	assert.Empty(t, s.Error)
	assert.False(t, s.Loading)
}

func TestAggregate_BusySlotDropsConcurrentPass(t *testing.T) {
	f := newFeeds()
	f.items["vogue"] = []model.Article{article("Vogue", "https://v/1", at(9))}
	f.block = make(chan struct{})
	f.enter = make(chan struct{}, 1)
	a := newAggregator(f, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- a.Aggregate(ctx, []model.Source{vogue}, true) }()
	<-f.enter

	s := a.State()
	assert.True(t, s.Loading, "nothing visible yet")
	assert.True(t, s.Refreshing)

	assert.ErrorIs(t, a.Aggregate(ctx, []model.Source{vogue}, false), ErrBusy)

	close(f.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), f.calls.Load())

	f.enter = nil
	require.NoError(t, a.Aggregate(ctx, []model.Source{vogue}, false), "slot is released")
}

func TestAggregate_LoadingNotRaisedOverVisibleContent(t *testing.T) {
	f := newFeeds()
	f.items["vogue"] = []model.Article{article("Vogue", "https://v/1", at(9))}
	a := newAggregator(f, nil)
	ctx := context.Background()
	require.NoError(t, a.Aggregate(ctx, []model.Source{vogue}, false))

	f.block = make(chan struct{})
	f.enter = make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- a.Aggregate(ctx, []model.Source{vogue}, false) }()
	<-f.enter

	assert.False(t, a.State().Loading)

	close(f.block)
	require.NoError(t, <-done)
}

func TestLoad_CacheHitServesWithoutNetworkThenRevalidates(t *testing.T) {
	f := newFeeds()
	f.items["vogue"] = []model.Article{article("Vogue", "https://v/new", at(11))}

	c := cache.NewTiered(cache.NewMemory(), nil)
	cached := []model.Article{article("Vogue", "https://v/cached", at(9))}
	require.NoError(t, c.Set(context.Background(), cache.FeedKey("u1"), cached))

	a := newAggregator(f, c)
	s, err := a.Load(context.Background(), []model.Source{vogue})
	require.NoError(t, err)
	assert.Equal(t, cached, s.Articles)
	assert.False(t, s.Loading)

	a.Wait()
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, "https://v/new", a.State().Articles[0].Link)

	_, err = a.Load(context.Background(), []model.Source{vogue})
	require.NoError(t, err)
	a.Wait()
	assert.Equal(t, int32(1), f.calls.Load(), "revalidation happens once per session")
}

func TestLoad_MissAggregatesAndFillsCache(t *testing.T) {
	f := newFeeds()
	f.items["vogue"] = []model.Article{article("Vogue", "https://v/1", at(9))}
	c := cache.NewTiered(cache.NewMemory(), nil)
	a := newAggregator(f, c)

	s, err := a.Load(context.Background(), []model.Source{vogue})
	require.NoError(t, err)
	assert.Len(t, s.Articles, 1)

	entry, ok := c.Get(context.Background(), cache.FeedKey("u1"))
	require.True(t, ok)
	assert.Equal(t, s.Articles, entry.Articles)
}

func TestAggregate_ComputesTrending(t *testing.T) {
	f := newFeeds()
	f.items["vogue"] = []model.Article{
		{ID: "Vogue::1", Title: "Denim jackets return", Link: "1", Source: "Vogue", PublishedAt: at(10)},
		{ID: "Vogue::2", Title: "Denim everywhere", Link: "2", Source: "Vogue", PublishedAt: at(11)},
	}
	a := newAggregator(f, nil)

	require.NoError(t, a.Aggregate(context.Background(), []model.Source{vogue}, false))

	s := a.State()
	require.NotEmpty(t, s.Trending)
	assert.Equal(t, "denim", s.Trending[0])
}
