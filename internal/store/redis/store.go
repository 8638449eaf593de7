package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kovalyov-valentin/style-feed/internal/model"
)

// DefaultFeedCacheTTL bounds how long an entry lingers in Redis.
// Freshness itself is decided by the entry timestamp.
const DefaultFeedCacheTTL = 24 * time.Hour

// Store is the durable tier of the feed cache and the local copy of user sources.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// LoadEntry returns nil on a miss
func (s *Store) LoadEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	data, err := s.client.Get(ctx, FeedCacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feed cache: %w", err)
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed cache: %w", err)
	}
	return &entry, nil
}

// StoreEntry overwrites the cache entry for key
func (s *Store) StoreEntry(ctx context.Context, key string, entry model.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal feed cache: %w", err)
	}
	if err := s.client.Set(ctx, FeedCacheKey(key), data, DefaultFeedCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to store feed cache: %w", err)
	}
	return nil
}

// LoadSources returns nil when the user has no cached list
func (s *Store) LoadSources(ctx context.Context, userID string) ([]model.Source, error) {
	data, err := s.client.Get(ctx, SourcesKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	sources := []model.Source{}
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
	}
	return sources, nil
}

// StoreSources keeps the list without expiry
func (s *Store) StoreSources(ctx context.Context, userID string, sources []model.Source) error {
	if sources == nil {
		sources = []model.Source{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}
	if err := s.client.Set(ctx, SourcesKey(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store sources: %w", err)
	}
	return nil
}

// IsPosted reports whether the digest already announced the article
func (s *Store) IsPosted(ctx context.Context, articleID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, KeyDigestPosted, articleID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check posted article: %w", err)
	}
	return ok, nil
}

// MarkPosted records an announced article
func (s *Store) MarkPosted(ctx context.Context, articleID string) error {
	if err := s.client.SAdd(ctx, KeyDigestPosted, articleID).Err(); err != nil {
		return fmt.Errorf("failed to mark article posted: %w", err)
	}
	return nil
}
