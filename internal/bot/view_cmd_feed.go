package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/style-feed/internal/botkit"
	"github.com/kovalyov-valentin/style-feed/internal/botkit/markup"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

const latestCount = 5

func ViewCmdLatest() botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		s, err := currentSession(ctx)
		if err != nil {
			return err
		}

		// a busy or failed pass still leaves the previous articles in the state
		state, _ := s.Feed(ctx)
		chatID := update.Message.Chat.ID

		if len(state.Articles) == 0 {
			if state.Error != "" {
				return replyText(bot, chatID, state.Error)
			}
			return replyText(bot, chatID, "Nothing to read yet.")
		}

		lines := lo.Map(state.Articles[:min(latestCount, len(state.Articles))], func(a model.Article, _ int) string {
			return formatArticle(a)
		})
		return replyMarkdown(bot, chatID, strings.Join(lines, "\n\n"))
	}
}

func formatArticle(a model.Article) string {
	return fmt.Sprintf("*%s*\n_%s_\n%s",
		markup.EscapeForMarkdown(a.Title),
		markup.EscapeForMarkdown(a.Source),
		markup.EscapeForMarkdown(a.Link),
	)
}

func ViewCmdTrending(window time.Duration) botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		s, err := currentSession(ctx)
		if err != nil {
			return err
		}

		_, _ = s.Feed(ctx)
		terms := s.Trending(window)
		if len(terms) == 0 {
			return replyText(bot, update.Message.Chat.ID, "No trends yet.")
		}

		tags := lo.Map(terms, func(term string, _ int) string { return markup.Hashtag(term) })
		return replyMarkdown(bot, update.Message.Chat.ID, "Trending now:\n"+strings.Join(tags, " "))
	}
}
