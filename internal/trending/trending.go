// Package trending ranks keywords and fashion week phrases across recent articles.
package trending

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kovalyov-valentin/style-feed/internal/model"
	"github.com/tomakado/containers/set"
)

const (
	DefaultWindow = 72 * time.Hour

	maxTerms          = 12
	maxTokens         = 25
	minTokenLen       = 3
	phraseWeight      = 3
	singleTokenWeight = 1
)

type phrase struct {
	label string
	re    *regexp.Regexp
}

var phrases = []phrase{
	{label: "New York Fashion Week", re: regexp.MustCompile(`\b(nyfw|new york fashion week)\b`)},
	{label: "Paris Fashion Week", re: regexp.MustCompile(`\b(pfw|paris fashion week)\b`)},
	{label: "London Fashion Week", re: regexp.MustCompile(`\b(lfw|london fashion week)\b`)},
	{label: "Milan Fashion Week", re: regexp.MustCompile(`\b(mfw|milan fashion week)\b`)},
}

var nonWord = regexp.MustCompile(`[^a-z0-9\s-]`)

var stopwords = set.New(
	"the", "and", "for", "with", "that", "this", "from", "are", "was", "were", "will", "have", "has",
	"had", "its", "you", "your", "our", "their", "they", "them", "his", "her", "she", "him",
	"who", "what", "when", "where", "why", "how", "which", "into", "over", "out", "about", "after",
	"before", "than", "then", "just", "not", "but", "all", "any", "can", "more", "most", "new", "now",
	"one", "two", "also", "been", "being", "here", "there", "these", "those", "some", "such", "very",
	"via", "per", "off", "get", "got", "let", "may", "see", "say", "says", "said", "year", "years",
	"day", "days", "week", "weeks", "fashion", "style", "styles", "look", "looks", "wear", "best",
	"top", "make", "makes", "like", "every", "could", "would", "should",
)

// Default ranks with the standard 72 hour window.
func Default(articles []model.Article, now time.Time) []string {
	return Compute(articles, DefaultWindow, now)
}

// Compute tallies phrases (weight 3) and single words (weight 1) over articles published inside
// the trailing window and returns up to 12 terms. Undated articles always count.
// Equal counts keep the order in which terms were first seen.
func Compute(articles []model.Article, window time.Duration, now time.Time) []string {
	if window <= 0 {
		window = DefaultWindow
	}
	cutoff := now.Add(-window)

	t := newTally()
	for _, a := range articles {
		if a.PublishedAt != nil && a.PublishedAt.Before(cutoff) {
			continue
		}

		text := strings.ToLower(a.Title + " " + a.Summary)

		for _, p := range phrases {
			if p.re.MatchString(text) {
				t.add(p.label, phraseWeight)
			}
		}

		tokens := strings.Fields(nonWord.ReplaceAllString(text, " "))
		if len(tokens) > maxTokens {
			tokens = tokens[:maxTokens]
		}
		for _, tok := range tokens {
			tok = strings.Trim(tok, "-")
			if len(tok) < minTokenLen || stopwords.Contains(tok) {
				continue
			}
			t.add(tok, singleTokenWeight)
		}
	}

	return t.top(maxTerms)
}

type tally struct {
	index  map[string]int
	terms  []string
	counts []int
}

func newTally() *tally {
	return &tally{index: make(map[string]int)}
}

func (t *tally) add(term string, weight int) {
	i, ok := t.index[term]
	if !ok {
		i = len(t.terms)
		t.index[term] = i
		t.terms = append(t.terms, term)
		t.counts = append(t.counts, 0)
	}
	t.counts[i] += weight
}

func (t *tally) top(n int) []string {
	order := make([]int, len(t.terms))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return t.counts[order[a]] > t.counts[order[b]]
	})

	if len(order) > n {
		order = order[:n]
	}
	out := make([]string, 0, len(order))
	for _, i := range order {
		out = append(out, t.terms[i])
	}
	return out
}
