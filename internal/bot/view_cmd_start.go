package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/style-feed/internal/botkit"
)

const startText = `Welcome to style-feed. Your feed starts with a few fashion magazines.

/latest - newest stories from your sources
/trending - what everyone is writing about
/listsources - your sources
/addsource {"name": "Vogue", "url": "https://www.vogue.com/feed/rss"}
/togglesource <id> - enable or disable a source
/removesource <id>
/resetsources - back to the defaults`

func ViewCmdStart() botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		return replyText(bot, update.Message.Chat.ID, startText)
	}
}
