package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/style-feed/internal/bot/middleware"
	"github.com/kovalyov-valentin/style-feed/internal/session"
)

var errNoSession = errors.New("view requires middleware.WithSession")

func currentSession(ctx context.Context) (*session.Session, error) {
	s, ok := middleware.SessionFrom(ctx)
	if !ok {
		return nil, errNoSession
	}
	return s, nil
}

func replyMarkdown(bot *tgbotapi.BotAPI, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	_, err := bot.Send(msg)
	return err
}

func replyText(bot *tgbotapi.BotAPI, chatID int64, text string) error {
	_, err := bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
