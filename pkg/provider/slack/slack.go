// Package slack provides the Slack provider sink.
package slack

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/model"
	"chatrelay/pkg/provider"
)

// ParamChannel is the Slack channel name or id, e.g. "#general".
const ParamChannel = "channel"

var channelPattern = regexp.MustCompile(`^[@#]?\S+$`)

// ThreadStore persists the root message timestamp of the per-topic thread
// a channel with a thread rule replies into.
type ThreadStore interface {
	ThreadTimestamp(ctx context.Context, channelID string, topicID int64) (string, error)
	SetThreadTimestamp(ctx context.Context, channelID string, topicID int64, ts string) error
}

// Sink delivers notifications to Slack via chat.postMessage.
type Sink struct {
	log     *logger.Logger
	config  config.SlackConfig
	api     *slack.Client
	threads ThreadStore
}

// New creates the Slack sink.
func New(log *logger.Logger, cfg config.SlackConfig, threads ThreadStore) *Sink {
	return &Sink{
		log:     log,
		config:  cfg,
		api:     slack.New(cfg.BotToken),
		threads: threads,
	}
}

// Name implements provider.Sink.
func (s *Sink) Name() string {
	return "slack"
}

// IsEnabled implements provider.Sink.
func (s *Sink) IsEnabled() bool {
	return s.config.Enabled
}

// ParameterSchema implements provider.Sink.
func (s *Sink) ParameterSchema() []provider.Param {
	return []provider.Param{
		{Key: ParamChannel, Pattern: channelPattern, Unique: true},
	}
}

// SupportsThreads implements provider.Sink. Slack is the one provider
// where the thread filter is valid.
func (s *Sink) SupportsThreads() bool {
	return true
}

// TriggerNotification implements provider.Sink.
func (s *Sink) TriggerNotification(ctx context.Context, n *provider.Notification) error {
	target := strings.TrimPrefix(n.Channel.Data[ParamChannel], "#")

	opts := []slack.MsgOption{
		slack.MsgOptionText(n.Topic.Title+" — new post by @"+n.Post.Username, false),
		slack.MsgOptionAttachments(slack.Attachment{
			Title:      n.Topic.Title,
			TitleLink:  n.PostURL,
			Text:       n.Excerpt(),
			AuthorName: n.Post.Username,
			Fallback:   n.PlainText(),
		}),
		slack.MsgOptionDisableLinkUnfurl(),
	}

	threaded := n.Rule.Filter == model.FilterThread
	if threaded {
		ts, err := s.threads.ThreadTimestamp(ctx, n.Channel.ID, n.Topic.ID)
		if err != nil {
			s.log.Warn("Failed to load thread timestamp",
				zap.String("channel", n.Channel.ID),
				zap.Int64("topic", n.Topic.ID),
				zap.Error(err))
		}
		if ts != "" {
			opts = append(opts, slack.MsgOptionTS(ts))
		}
	}

	_, ts, err := s.api.PostMessageContext(ctx, target, opts...)
	if err != nil {
		return mapError(err)
	}

	// First delivery for a topic roots the thread; replies attach to it.
	if threaded {
		if existing, _ := s.threads.ThreadTimestamp(ctx, n.Channel.ID, n.Topic.ID); existing == "" {
			if err := s.threads.SetThreadTimestamp(ctx, n.Channel.ID, n.Topic.ID, ts); err != nil {
				s.log.Warn("Failed to store thread timestamp",
					zap.String("channel", n.Channel.ID),
					zap.Int64("topic", n.Topic.ID),
					zap.Error(err))
			}
		}
	}

	return nil
}

// mapError converts Slack API errors to structured provider errors.
func mapError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "channel_not_found"), strings.Contains(msg, "is_archived"):
		return &provider.Error{ErrorKey: provider.ErrorKeyChannelNotFound, Detail: msg}
	case strings.Contains(msg, "invalid_auth"), strings.Contains(msg, "not_authed"),
		strings.Contains(msg, "token_revoked"), strings.Contains(msg, "account_inactive"):
		return &provider.Error{ErrorKey: provider.ErrorKeyInvalidToken, Detail: msg}
	}
	return fmt.Errorf("slack post: %w", err)
}
