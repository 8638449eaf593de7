package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/style-feed/internal/botkit"
	"github.com/kovalyov-valentin/style-feed/internal/botkit/markup"
	"github.com/kovalyov-valentin/style-feed/internal/model"
)

func ViewCmdListSources() botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		s, err := currentSession(ctx)
		if err != nil {
			return err
		}

		sources := s.Registry.Sources()
		sourceInfos := lo.Map(sources, func(source model.Source, _ int) string {
			return formatSource(source)
		})

		return replyMarkdown(bot, update.Message.Chat.ID, fmt.Sprintf(
			"Sources \\(%d total\\):\n\n%s",
			len(sources),
			strings.Join(sourceInfos, "\n\n"),
		))
	}
}

func formatSource(source model.Source) string {
	status := "on"
	if !source.Enabled {
		status = "off"
	}
	return fmt.Sprintf(
		"🌐 *%s* \\(%s\\)\nID: `%s`\nFeed URL: %s",
		markup.EscapeForMarkdown(source.Name),
		status,
		source.ID,
		markup.EscapeForMarkdown(source.URL),
	)
}
