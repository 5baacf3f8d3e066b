// Package telegram delivers reminder notifications through a Telegram bot.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hrygo/geominder/plugin/notify"
)

// Config holds the bot credentials and the chat notifications go to.
type Config struct {
	BotToken string
	ChatID   int64
	// APIEndpoint overrides the Bot API endpoint format, for tests.
	APIEndpoint string
}

// Notifier sends each notification as one chat message.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier creates a Notifier. It verifies the token with the Bot API.
func NewNotifier(config Config) (*Notifier, error) {
	if config.BotToken == "" || config.ChatID == 0 {
		return nil, fmt.Errorf("telegram notifier requires a bot token and chat id")
	}
	endpoint := config.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(config.BotToken, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: config.ChatID}, nil
}

func (n *Notifier) Deliver(ctx context.Context, notification notify.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, notification.Text())
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: failed to send reminder %d: %w", notification.ReminderID, err)
	}
	return nil
}
