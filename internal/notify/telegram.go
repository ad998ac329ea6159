package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/solpulse/engine/pkg/config"
	"github.com/solpulse/engine/pkg/logger"
)

// TelegramSink delivers alerts to one or more Telegram chats
type TelegramSink struct {
	bot     *bot.Bot
	chatIDs []string
	logger  *logger.Logger
}

// NewTelegramSink creates a Telegram sink. Returns an error when the
// token is set but the bot cannot be constructed; an empty token is a
// configuration error surfaced here rather than at send time.
func NewTelegramSink(cfg config.TelegramConfig, log *logger.Logger) (*TelegramSink, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, fmt.Errorf("no telegram chat ids configured")
	}

	b, err := bot.New(cfg.BotToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &TelegramSink{
		bot:     b,
		chatIDs: cfg.ChatIDs,
		logger:  log,
	}, nil
}

func (t *TelegramSink) Name() string { return "telegram" }

// Send delivers the message to every configured chat. Succeeds when at
// least one chat accepted the message.
func (t *TelegramSink) Send(ctx context.Context, text string) error {
	var lastErr error
	delivered := 0

	for _, chatID := range t.chatIDs {
		if chatID == "" {
			continue
		}
		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		if err != nil {
			t.logger.WithError(err).WithField("chat_id", chatID).Warn("Telegram send failed")
			lastErr = err
			continue
		}
		delivered++
	}

	if delivered == 0 && lastErr != nil {
		return fmt.Errorf("telegram delivery failed for all chats: %w", lastErr)
	}
	return nil
}
