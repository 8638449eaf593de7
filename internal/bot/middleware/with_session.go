package middleware

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/style-feed/internal/botkit"
	"github.com/kovalyov-valentin/style-feed/internal/session"
)

type sessionKey struct{}

// SessionProvider hands out the session of a user id.
type SessionProvider interface {
	Get(ctx context.Context, userID string) (*session.Session, error)
}

// WithSession resolves the session of the chat that sent the command; the chat id is the user id.
func WithSession(sessions SessionProvider, next botkit.ViewFunc) botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		userID := strconv.FormatInt(update.Message.Chat.ID, 10)

		s, err := sessions.Get(ctx, userID)
		if err != nil {
			return err
		}
		return next(context.WithValue(ctx, sessionKey{}, s), bot, update)
	}
}

// SessionFrom returns the session put in ctx by WithSession.
func SessionFrom(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*session.Session)
	return s, ok
}
