package model

import "time"

// Source is a named RSS/Atom endpoint a user can switch on and off.
type Source struct {
	// Derived from the feed URL, see registry.SourceID
	ID   string `json:"id"`
	Name string `json:"name"`
	// Where the feed is fetched from. Unique within one user's set
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
	// Marks sources seeded from the default list
	IsDefault bool `json:"isDefault,omitempty"`
}

// Article is a normalized feed entry.
type Article struct {
	// Source name and link, unique per source
	ID    string `json:"id"`
	Title string `json:"title"`
	Link  string `json:"link"`
	// Name of the source the entry came from
	Source  string `json:"source"`
	Image   string `json:"image,omitempty"`
	Summary string `json:"summary,omitempty"`
	// Nil when the feed carried no parseable date
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// PublishedUnix returns the publish time in seconds, zero for undated articles.
func (a Article) PublishedUnix() int64 {
	if a.PublishedAt == nil {
		return 0
	}
	return a.PublishedAt.Unix()
}

// CacheEntry is what both cache tiers hold for one feed key.
type CacheEntry struct {
	Articles []Article `json:"articles"`
	// Epoch milliseconds of the write
	Timestamp int64 `json:"timestamp"`
}

// FreshAt reports whether the entry is younger than ttl at the given moment.
func (e CacheEntry) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(time.UnixMilli(e.Timestamp)) < ttl
}
