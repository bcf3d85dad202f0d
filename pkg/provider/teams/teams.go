// Package teams provides the Microsoft Teams provider sink using
// incoming webhooks.
package teams

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

// ParamWebhookURL is the channel's incoming-webhook URL.
const ParamWebhookURL = "webhook_url"

var webhookPattern = regexp.MustCompile(`^https://\S+$`)

// messageCard is the legacy Office 365 connector card format; it is what
// incoming webhooks accept.
type messageCard struct {
	Type    string `json:"@type"`
	Context string `json:"@context"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Text    string `json:"text"`
}

// Sink delivers notifications to Teams channels via incoming webhooks.
type Sink struct {
	log        *logger.Logger
	config     config.TeamsConfig
	httpClient *http.Client
}

// New creates the Teams sink.
func New(log *logger.Logger, cfg config.TeamsConfig) *Sink {
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
	return "teams"
}

// IsEnabled implements provider.Sink.
func (s *Sink) IsEnabled() bool {
	return s.config.Enabled
}

// ParameterSchema implements provider.Sink.
func (s *Sink) ParameterSchema() []provider.Param {
	return []provider.Param{
		{Key: ParamWebhookURL, Pattern: webhookPattern, Unique: true, Hidden: true},
	}
}

// SupportsThreads implements provider.Sink.
func (s *Sink) SupportsThreads() bool {
	return false
}

// TriggerNotification implements provider.Sink.
func (s *Sink) TriggerNotification(ctx context.Context, n *provider.Notification) error {
	card := messageCard{
		Type:    "MessageCard",
		Context: "http://schema.org/extensions",
		Title:   n.Topic.Title,
		Summary: n.Topic.Title,
		Text:    n.MarkdownText(),
	}

	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("encoding teams card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Channel.Data[ParamWebhookURL], bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("teams webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return &provider.Error{ErrorKey: provider.ErrorKeyChannelNotFound, Detail: "webhook gone"}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &provider.Error{ErrorKey: provider.ErrorKeyInvalidToken, Detail: "webhook rejected"}
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("teams webhook: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
