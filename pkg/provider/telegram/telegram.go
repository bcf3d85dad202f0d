// Package telegram provides the Telegram provider sink.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/provider"
)

// ParamChatID is the numeric Telegram chat id (negative for groups and
// channels).
const ParamChatID = "chat_id"

var chatIDPattern = regexp.MustCompile(`^-?\d+$`)

// Sink delivers notifications to Telegram chats.
type Sink struct {
	log    *logger.Logger
	config config.TelegramConfig
	bot    *tgbotapi.BotAPI
}

// New creates the Telegram sink. The underlying library verifies the
// token with a getMe call, so construction requires network access.
func New(log *logger.Logger, cfg config.TelegramConfig) (*Sink, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &Sink{
		log:    log,
		config: cfg,
		bot:    bot,
	}, nil
}

// Name implements provider.Sink.
func (s *Sink) Name() string {
	return "telegram"
}

// IsEnabled implements provider.Sink.
func (s *Sink) IsEnabled() bool {
	return s.config.Enabled
}

// ParameterSchema implements provider.Sink.
func (s *Sink) ParameterSchema() []provider.Param {
	return []provider.Param{
		{Key: ParamChatID, Pattern: chatIDPattern, Unique: true},
	}
}

// SupportsThreads implements provider.Sink.
func (s *Sink) SupportsThreads() bool {
	return false
}

// TriggerNotification implements provider.Sink. The bot API client has no
// context support; the dispatcher's per-call timeout plus the client's own
// HTTP timeout bound the call instead.
func (s *Sink) TriggerNotification(ctx context.Context, n *provider.Notification) error {
	chatID, err := strconv.ParseInt(n.Channel.Data[ParamChatID], 10, 64)
	if err != nil {
		return &provider.Error{ErrorKey: provider.ErrorKeyChannelNotFound, Detail: "malformed chat_id"}
	}

	msg := tgbotapi.NewMessage(chatID, n.MarkdownText())
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if _, err := s.bot.Send(msg); err != nil {
		return mapError(err)
	}
	return nil
}

// mapError converts Telegram API errors to structured provider errors.
func mapError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return &provider.Error{ErrorKey: provider.ErrorKeyInvalidToken, Detail: err.Error()}
		case apiErr.Code == http.StatusBadRequest, apiErr.Code == http.StatusForbidden:
			// "chat not found", "bot was kicked" and friends.
			return &provider.Error{ErrorKey: provider.ErrorKeyChannelNotFound, Detail: err.Error()}
		}
	}
	return fmt.Errorf("telegram send: %w", err)
}
