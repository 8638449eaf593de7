package redis

const (
	// KeyPrefixFeedCache is the prefix for aggregated feed cache entries
	KeyPrefixFeedCache = "stylefeed:feedcache:"
	// KeyPrefixSources is the prefix for the per user source lists
	KeyPrefixSources = "stylefeed:sources:"
	// KeyDigestPosted is the set of article ids already posted to the digest channel
	KeyDigestPosted = "stylefeed:digest:posted"
)

// FeedCacheKey returns the Redis key for a feed cache entry
func FeedCacheKey(key string) string {
	return KeyPrefixFeedCache + key
}

// SourcesKey returns the Redis key for a user's sources
func SourcesKey(userID string) string {
	return KeyPrefixSources + userID
}
