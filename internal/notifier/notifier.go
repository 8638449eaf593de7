// Package notifier posts a periodic digest of the newest story to a Telegram channel.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/go-shiori/go-readability"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/style-feed/internal/botkit/markup"
	"github.com/kovalyov-valentin/style-feed/internal/fetcher"
	"github.com/kovalyov-valentin/style-feed/internal/logger"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

const (
	maxHashtags   = 3
	maxPlainRunes = 600
)

// Feed is the digest user's session.
type Feed interface {
	Refresh(ctx context.Context) (fetcher.State, error)
}

type PostedStore interface {
	IsPosted(ctx context.Context, articleID string) (bool, error)
	MarkPosted(ctx context.Context, articleID string) error
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Sender is satisfied by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Options struct {
	Interval time.Duration
	// Only articles published within this window are considered
	LookupWindow time.Duration
	ChannelID    int64
	HTTPClient   *http.Client
	Clock        func() time.Time
}

type Notifier struct {
	feed       Feed
	posted     PostedStore
	summarizer Summarizer
	bot        Sender
	opts       Options
	log        logger.Logger
}

func New(feed Feed, posted PostedStore, summarizer Summarizer, bot Sender, opts Options, log logger.Logger) *Notifier {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Notifier{
		feed:       feed,
		posted:     posted,
		summarizer: summarizer,
		bot:        bot,
		opts:       opts,
		log:        log.With(logger.String("component", "notifier")),
	}
}

// Start posts right away and then every interval. A failed round is logged and the loop goes on.
func (n *Notifier) Start(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.Interval)
	defer ticker.Stop()

	for {
		if err := n.SelectAndSendArticle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.log.Error("digest round failed", logger.Error(err))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SelectAndSendArticle posts the newest article not announced yet and records it.
func (n *Notifier) SelectAndSendArticle(ctx context.Context) error {
	state, err := n.feed.Refresh(ctx)
	switch {
	case errors.Is(err, fetcher.ErrBusy):
		n.log.Debug("feed refresh already running, using current articles")
	case err != nil:
		n.log.Warn("feed refresh failed, using current articles", logger.Error(err))
	}

	article, ok, err := n.nextArticle(ctx, state.Articles)
	if err != nil || !ok {
		return err
	}

	summary, err := n.extractSummary(ctx, article)
	if err != nil {
		n.log.Warn("summary unavailable", logger.String("article_id", article.ID), logger.Error(err))
	}

	if err := n.sendArticle(article, summary, state.Trending); err != nil {
		return fmt.Errorf("send article: %w", err)
	}

	if err := n.posted.MarkPosted(ctx, article.ID); err != nil {
		return err
	}
	n.log.Info("article posted", logger.String("article_id", article.ID), logger.String("source", article.Source))
	return nil
}

// nextArticle walks articles newest first. Undated ones never make the digest.
func (n *Notifier) nextArticle(ctx context.Context, articles []model.Article) (model.Article, bool, error) {
	since := n.opts.Clock().Add(-n.opts.LookupWindow)

	for _, a := range articles {
		if a.PublishedAt == nil {
			continue
		}
		if n.opts.LookupWindow > 0 && a.PublishedAt.Before(since) {
			continue
		}
		posted, err := n.posted.IsPosted(ctx, a.ID)
		if err != nil {
			return model.Article{}, false, err
		}
		if !posted {
			return a, true, nil
		}
	}
	return model.Article{}, false, nil
}

// extractSummary feeds the article summary, or the readable text of its page, to the summarizer.
// Without a model summary the source text itself is used, shortened.
func (n *Notifier) extractSummary(ctx context.Context, article model.Article) (string, error) {
	text := article.Summary
	if text == "" {
		page, err := n.pageText(ctx, article.Link)
		if err != nil {
			return "", err
		}
		text = page
	}
	text = cleanText(text)

	summary, err := n.summarizer.Summarize(ctx, text)
	if err != nil {
		return shorten(text), err
	}
	if summary == "" {
		return shorten(text), nil
	}
	return summary, nil
}

func (n *Notifier) pageText(ctx context.Context, link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse article link: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := n.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch article page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch article page: status %d", resp.StatusCode)
	}

	doc, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", fmt.Errorf("extract article text: %w", err)
	}
	return doc.TextContent, nil
}

func (n *Notifier) sendArticle(article model.Article, summary string, trending []string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", markup.EscapeForMarkdown(article.Title))
	if summary != "" {
		fmt.Fprintf(&b, "\n\n%s", markup.EscapeForMarkdown(summary))
	}
	fmt.Fprintf(&b, "\n\n%s", markup.EscapeForMarkdown(article.Link))

	if tags := hashtags(trending); len(tags) > 0 {
		fmt.Fprintf(&b, "\n\n%s", strings.Join(tags, " "))
	}

	msg := tgbotapi.NewMessage(n.opts.ChannelID, b.String())
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	_, err := n.bot.Send(msg)
	return err
}

func hashtags(trending []string) []string {
	tags := lo.FilterMap(trending, func(term string, _ int) (string, bool) {
		tag := markup.Hashtag(term)
		return tag, tag != ""
	})
	return tags[:min(len(tags), maxHashtags)]
}

// readability leaves long runs of blank lines behind
var redundantNewLines = regexp.MustCompile(`\n{3,}`)

func cleanText(text string) string {
	return strings.TrimSpace(redundantNewLines.ReplaceAllString(text, "\n"))
}

// shorten cuts text at a word boundary.
func shorten(text string) string {
	runes := []rune(text)
	if len(runes) <= maxPlainRunes {
		return text
	}
	cut := string(runes[:maxPlainRunes])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
