// Package discord provides the Discord provider sink.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/bwmarrin/discordgo"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/provider"
)

// ParamChannelID is the numeric Discord channel id.
const ParamChannelID = "channel_id"

var channelIDPattern = regexp.MustCompile(`^\d+$`)

// Sink delivers notifications to Discord channels over the REST API.
// The session is never opened as a gateway connection; sending messages
// only needs REST.
type Sink struct {
	log     *logger.Logger
	config  config.DiscordConfig
	session *discordgo.Session
}

// New creates the Discord sink.
func New(log *logger.Logger, cfg config.DiscordConfig) (*Sink, error) {
	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}

	return &Sink{
		log:     log,
		config:  cfg,
		session: session,
	}, nil
}

// Name implements provider.Sink.
func (s *Sink) Name() string {
	return "discord"
}

// IsEnabled implements provider.Sink.
func (s *Sink) IsEnabled() bool {
	return s.config.Enabled
}

// ParameterSchema implements provider.Sink.
func (s *Sink) ParameterSchema() []provider.Param {
	return []provider.Param{
		{Key: ParamChannelID, Pattern: channelIDPattern, Unique: true},
	}
}

// SupportsThreads implements provider.Sink.
func (s *Sink) SupportsThreads() bool {
	return false
}

// TriggerNotification implements provider.Sink.
func (s *Sink) TriggerNotification(ctx context.Context, n *provider.Notification) error {
	channelID := n.Channel.Data[ParamChannelID]

	_, err := s.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: n.Topic.Title + " — new post by @" + n.Post.Username,
		Embeds: []*discordgo.MessageEmbed{{
			Title:       n.Topic.Title,
			URL:         n.PostURL,
			Description: n.Excerpt(),
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err)
	}
	return nil
}

// mapError converts Discord REST errors to structured provider errors.
func mapError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return &provider.Error{ErrorKey: provider.ErrorKeyChannelNotFound, Detail: err.Error()}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &provider.Error{ErrorKey: provider.ErrorKeyInvalidToken, Detail: err.Error()}
		}
	}
	return fmt.Errorf("discord send: %w", err)
}
