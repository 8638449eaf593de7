package registry

import "github.com/kovalyov-valentin/style-feed/internal/model"

var defaultFeeds = []struct{ name, url string }{
	{"Vogue", "https://www.vogue.com/feed/rss"},
	{"Elle", "https://www.elle.com/rss/all.xml/"},
	{"Harper's Bazaar", "https://www.harpersbazaar.com/rss/all.xml/"},
	{"GQ", "https://www.gq.com/feed/rss"},
	{"WWD", "https://wwd.com/feed/"},
	{"Fashionista", "https://fashionista.com/.rss/full/"},
	{"Hypebeast", "https://hypebeast.com/feed"},
}

// Defaults returns a fresh copy of the seeded sources, all enabled.
func Defaults() []model.Source {
	sources := make([]model.Source, 0, len(defaultFeeds))
	for _, f := range defaultFeeds {
		sources = append(sources, model.Source{
			ID:        SourceID(f.url),
			Name:      f.name,
			URL:       f.url,
			Enabled:   true,
			IsDefault: true,
		})
	}
	return sources
}
