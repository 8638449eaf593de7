package source

import (
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/kovalyov-valentin/style-feed/internal/model"
)

var strict = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// Normalize maps a parsed feed entry onto an Article.
// Entries without a title or a link yield false and are dropped by the caller.
func Normalize(sourceName string, item *gofeed.Item) (model.Article, bool) {
	if item == nil {
		return model.Article{}, false
	}

	title := StripHTML(item.Title)
	link := itemLink(item)
	if title == "" || link == "" {
		return model.Article{}, false
	}

	summary := StripHTML(item.Description)
	if summary == "" {
		summary = StripHTML(item.Content)
	}

	return model.Article{
		ID:          ArticleID(sourceName, link),
		Title:       title,
		Link:        link,
		Source:      sourceName,
		Image:       ExtractImageURL(item),
		Summary:     summary,
		PublishedAt: publishedAt(item),
	}, true
}

// ArticleID is the dedup key of an article: one id per link within a source.
func ArticleID(sourceName, link string) string {
	return sourceName + "::" + link
}

// StripHTML removes every tag and collapses whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(strict.Sanitize(s))), " ")
}

func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

func publishedAt(item *gofeed.Item) *time.Time {
	var t *time.Time
	switch {
	case item.PublishedParsed != nil:
		t = item.PublishedParsed
	case item.UpdatedParsed != nil:
		t = item.UpdatedParsed
	case item.DublinCoreExt != nil && len(item.DublinCoreExt.Date) > 0:
		t = parseDate(item.DublinCoreExt.Date[0])
	}
	if t == nil || t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// ExtractImageURL walks the image conventions feeds use, in order:
// media:content and media:thumbnail, the item image, image enclosures,
// then the first <img> in content:encoded or the description.
// Only http/https URLs are accepted.
func ExtractImageURL(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, content := range media["content"] {
			u := content.Attrs["url"]
			if isImageMedia(content.Attrs["medium"], content.Attrs["type"]) && isHTTPURL(u) {
				return u
			}
		}
		for _, thumb := range media["thumbnail"] {
			if u := thumb.Attrs["url"]; isHTTPURL(u) {
				return u
			}
		}
		// media:group wraps media:content in some feeds (YouTube style)
		for _, group := range media["group"] {
			for _, content := range group.Children["content"] {
				u := content.Attrs["url"]
				if isImageMedia(content.Attrs["medium"], content.Attrs["type"]) && isHTTPURL(u) {
					return u
				}
			}
			for _, thumb := range group.Children["thumbnail"] {
				if u := thumb.Attrs["url"]; isHTTPURL(u) {
					return u
				}
			}
		}
	}

	if item.Image != nil && isHTTPURL(item.Image.URL) {
		return item.Image.URL
	}

	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if (enc.Type == "" || strings.HasPrefix(enc.Type, "image/")) && isHTTPURL(enc.URL) {
			return enc.URL
		}
	}

	if u := firstImgSrc(item.Content); u != "" {
		return u
	}
	return firstImgSrc(item.Description)
}

func isImageMedia(medium, mimeType string) bool {
	switch {
	case medium != "":
		return medium == "image"
	case mimeType != "":
		return strings.HasPrefix(mimeType, "image/")
	default:
		return true
	}
}

func firstImgSrc(markup string) string {
	if !strings.Contains(markup, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	var src string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("src"); ok && isHTTPURL(v) {
			src = v
			return false
		}
		return true
	})
	return src
}

func isHTTPURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
