// Package mattermost provides the Mattermost provider sink using
// incoming webhooks.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/provider"
)

// Channel parameters.
const (
	// ParamWebhookURL is the incoming-webhook URL.
	ParamWebhookURL = "webhook_url"
	// ParamChannel optionally overrides the webhook's default channel.
	ParamChannel = "channel"
)

var (
	webhookPattern = regexp.MustCompile(`^https?://\S+$`)
	channelPattern = regexp.MustCompile(`^\S*$`)
)

// Sink delivers notifications to Mattermost via incoming webhooks.
type Sink struct {
	log        *logger.Logger
	config     config.MattermostConfig
	httpClient *http.Client
}

// New creates the Mattermost sink.
func New(log *logger.Logger, cfg config.MattermostConfig) *Sink {
	return &Sink{
		log:    log,
		config: cfg,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// Name implements provider.Sink.
func (s *Sink) Name() string {
	return "mattermost"
}

// IsEnabled implements provider.Sink.
func (s *Sink) IsEnabled() bool {
	return s.config.Enabled
}

// ParameterSchema implements provider.Sink.
func (s *Sink) ParameterSchema() []provider.Param {
	return []provider.Param{
		{Key: ParamWebhookURL, Pattern: webhookPattern, Unique: true, Hidden: true},
		{Key: ParamChannel, Pattern: channelPattern, Optional: true},
	}
}

// SupportsThreads implements provider.Sink.
func (s *Sink) SupportsThreads() bool {
	return false
}

// TriggerNotification implements provider.Sink.
func (s *Sink) TriggerNotification(ctx context.Context, n *provider.Notification) error {
	body := map[string]string{
		"text":     n.MarkdownText(),
		"username": "chatrelay",
	}
	if ch := strings.TrimPrefix(n.Channel.Data[ParamChannel], "#"); ch != "" {
		body["channel"] = ch
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding mattermost payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Channel.Data[ParamWebhookURL], bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building mattermost request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mattermost webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &provider.Error{ErrorKey: provider.ErrorKeyChannelNotFound, Detail: "webhook or channel not found"}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &provider.Error{ErrorKey: provider.ErrorKeyInvalidToken, Detail: "webhook rejected"}
	case resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mattermost webhook: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
