// Package telegram delivers reminder messages through a Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"nudge/internal/shared/logging"
)

const (
	// DefaultMessagesPerSecond stays under the Bot API global send limit.
	DefaultMessagesPerSecond = 25
	defaultBurst             = 5
)

// Config holds bot settings.
type Config struct {
	BotToken          string
	APIEndpoint       string // optional, defaults to tgbotapi.APIEndpoint
	MessagesPerSecond float64
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Messenger sends plain-text messages to Telegram chats, throttled by a
// token bucket shared across all chats.
type Messenger struct {
	bot     sender
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewMessenger connects to the Bot API and verifies the token.
func NewMessenger(cfg Config, logger logging.Logger) (*Messenger, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	endpoint := strings.TrimSpace(cfg.APIEndpoint)
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	logger = logging.OrNop(logger)
	logger.Info("Telegram: authorized as @%s", bot.Self.UserName)
	return newMessenger(bot, cfg.MessagesPerSecond, logger), nil
}

func newMessenger(bot sender, perSecond float64, logger logging.Logger) *Messenger {
	if perSecond <= 0 {
		perSecond = DefaultMessagesPerSecond
	}
	return &Messenger{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(perSecond), defaultBurst),
		logger:  logging.OrNop(logger),
	}
}

// Send posts text to chatID, which is either a numeric chat id or an
// @channel username.
func (m *Messenger) Send(ctx context.Context, chatID, text string) error {
	msg, err := newTextMessage(chatID, text)
	if err != nil {
		return err
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit: %w", err)
	}
	if _, err := m.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	m.logger.Debug("Telegram: sent message to %s", chatID)
	return nil
}

func newTextMessage(chatID, text string) (tgbotapi.MessageConfig, error) {
	chatID = strings.TrimSpace(chatID)
	if strings.HasPrefix(chatID, "@") {
		return tgbotapi.NewMessageToChannel(chatID, text), nil
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	return tgbotapi.NewMessage(id, text), nil
}
