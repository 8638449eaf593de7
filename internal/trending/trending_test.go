package trending

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/style-feed/internal/model"
)

var now = time.Date(2025, 9, 14, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestCompute_PhraseWeightAgainstSingleWords(t *testing.T) {
	articles := []model.Article{{Title: "New York Fashion Week opens", PublishedAt: at(time.Hour)}}
	for i := 0; i < 10; i++ {
		articles = append(articles, model.Article{Title: "Denim", PublishedAt: at(2 * time.Hour)})
	}

	terms := Compute(articles, DefaultWindow, now)

	require.GreaterOrEqual(t, len(terms), 2)
	assert.Equal(t, "denim", terms[0])
	assert.Equal(t, "New York Fashion Week", terms[1])
}

func TestCompute_PhraseBeatsTwoMentions(t *testing.T) {
	articles := []model.Article{
		{Title: "PFW recap"},
		{Title: "Quiet luxury"},
		{Title: "Quiet luxury again"},
	}

	terms := Compute(articles, DefaultWindow, now)

	require.NotEmpty(t, terms)
	assert.Equal(t, "Paris Fashion Week", terms[0])
	assert.Contains(t, terms, "quiet")
}

func TestCompute_AcronymAndSpelledOutAreOneTerm(t *testing.T) {
	articles := []model.Article{
		{Title: "LFW street shots"},
		{Title: "Highlights", Summary: "Everything from London Fashion Week"},
	}

	terms := Compute(articles, DefaultWindow, now)

	require.NotEmpty(t, terms)
	assert.Equal(t, "London Fashion Week", terms[0])
}

func TestCompute_WindowExcludesOldButKeepsUndated(t *testing.T) {
	articles := []model.Article{
		{Title: "Loafers everywhere", PublishedAt: at(100 * time.Hour)},
		{Title: "Cardigans return"},
		{Title: "Cardigans layered", PublishedAt: at(10 * time.Hour)},
	}

	terms := Compute(articles, DefaultWindow, now)

	assert.NotContains(t, terms, "loafers")
	assert.Equal(t, "cardigans", terms[0])
	assert.Contains(t, terms, "return")
}

func TestCompute_StopwordsAndShortTokens(t *testing.T) {
	articles := []model.Article{{Title: "The best style for a week: go big with Denim!"}}

	terms := Compute(articles, DefaultWindow, now)

	assert.Equal(t, []string{"big", "denim"}, terms)
}

func TestCompute_OnlyFirstTokensCount(t *testing.T) {
	words := make([]string, 0, 30)
	for i := 0; i < 25; i++ {
		words = append(words, "filler")
	}
	words = append(words, "sneakers")

	terms := Compute([]model.Article{{Title: strings.Join(words, " ")}}, DefaultWindow, now)

	assert.Equal(t, []string{"filler"}, terms)
}

func TestCompute_KeepsHyphenatedTokens(t *testing.T) {
	terms := Compute([]model.Article{{Title: "Ready-to-wear: co-ords"}}, DefaultWindow, now)

	assert.Equal(t, []string{"ready-to-wear", "co-ords"}, terms)
}

func TestCompute_CapsAtTwelveWithFirstSeenTieBreak(t *testing.T) {
	words := []string{
		"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf",
		"hotel", "india", "juliet", "kilo", "lima", "mike", "november",
	}
	terms := Compute([]model.Article{{Title: strings.Join(words, " ")}}, DefaultWindow, now)

	assert.Equal(t, words[:12], terms)
}

func TestDefault_Empty(t *testing.T) {
	assert.Empty(t, Default(nil, now))
}
