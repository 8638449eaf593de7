package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/style-feed/internal/botkit"
	"github.com/kovalyov-valentin/style-feed/internal/registry"
)

const addSourceUsage = `Usage: /addsource {"name": "Vogue", "url": "https://www.vogue.com/feed/rss"}`

func ViewCmdAddSource() botkit.ViewFunc {
	type addSourceArgs struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}

	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		chatID := update.Message.Chat.ID

		args, err := botkit.ParseJSON[addSourceArgs](update.Message.CommandArguments())
		if err != nil {
			return replyText(bot, chatID, addSourceUsage)
		}

		s, err := currentSession(ctx)
		if err != nil {
			return err
		}

		src, err := s.Registry.AddSource(ctx, args.Name, args.URL)
		switch {
		case errors.Is(err, registry.ErrInvalidURL), errors.Is(err, registry.ErrDuplicateURL):
			return replyText(bot, chatID, err.Error())
		case err != nil && src.ID == "":
			return err
		}

		return replyMarkdown(bot, chatID, fmt.Sprintf(
			"Source added with ID: `%s`\\. Use this ID to manage the source\\.",
			src.ID,
		))
	}
}
