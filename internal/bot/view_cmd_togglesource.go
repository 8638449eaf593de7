package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"github.com/kovalyov-valentin/style-feed/internal/botkit"
	"github.com/kovalyov-valentin/style-feed/internal/model"
	"github.com/kovalyov-valentin/style-feed/internal/registry"
)

func ViewCmdToggleSource() botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		chatID := update.Message.Chat.ID
		id := strings.TrimSpace(update.Message.CommandArguments())
		if id == "" {
			return replyText(bot, chatID, "Usage: /togglesource <id>")
		}

		s, err := currentSession(ctx)
		if err != nil {
			return err
		}

		src, found := lo.Find(s.Registry.Sources(), func(src model.Source) bool { return src.ID == id })
		if !found {
			return replyText(bot, chatID, registry.ErrSourceNotFound.Error())
		}

		if err := s.Registry.ToggleSource(ctx, id, !src.Enabled); err != nil {
			if errors.Is(err, registry.ErrSourceNotFound) {
				return replyText(bot, chatID, err.Error())
			}
			return fmt.Errorf("toggling source %s: %w", id, err)
		}

		state := "enabled"
		if src.Enabled {
			state = "disabled"
		}
		return replyText(bot, chatID, fmt.Sprintf("%s is now %s.", src.Name, state))
	}
}

func ViewCmdRemoveSource() botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		chatID := update.Message.Chat.ID
		id := strings.TrimSpace(update.Message.CommandArguments())
		if id == "" {
			return replyText(bot, chatID, "Usage: /removesource <id>")
		}

		s, err := currentSession(ctx)
		if err != nil {
			return err
		}

		if err := s.Registry.RemoveSource(ctx, id); err != nil {
			if errors.Is(err, registry.ErrSourceNotFound) {
				return replyText(bot, chatID, err.Error())
			}
			return fmt.Errorf("removing source %s: %w", id, err)
		}
		return replyText(bot, chatID, "Source removed.")
	}
}

func ViewCmdResetSources() botkit.ViewFunc {
	return func(ctx context.Context, bot *tgbotapi.BotAPI, update tgbotapi.Update) error {
		s, err := currentSession(ctx)
		if err != nil {
			return err
		}

		if err := s.Registry.ResetToDefaults(ctx); err != nil {
			return fmt.Errorf("resetting sources: %w", err)
		}
		return replyText(bot, update.Message.Chat.ID,
			fmt.Sprintf("Back to the %d default sources.", len(s.Registry.Sources())))
	}
}
