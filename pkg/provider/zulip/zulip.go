// Package zulip provides the Zulip provider sink.
package zulip

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/provider"
)

// Channel parameters.
const (
	// ParamStream is the target Zulip stream.
	ParamStream = "stream"
	// ParamSubject is the topic within the stream.
	ParamSubject = "subject"
)

var (
	streamPattern  = regexp.MustCompile(`^\S+`)
	subjectPattern = regexp.MustCompile(`^\S+`)
)

// Sink delivers notifications to Zulip streams via the messages API,
// authenticated as a bot user.
type Sink struct {
	log        *logger.Logger
	config     config.ZulipConfig
	httpClient *http.Client
}

// New creates the Zulip sink.
func New(log *logger.Logger, cfg config.ZulipConfig) *Sink {
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
	return "zulip"
}

// IsEnabled implements provider.Sink.
func (s *Sink) IsEnabled() bool {
	return s.config.Enabled
}

// ParameterSchema implements provider.Sink.
func (s *Sink) ParameterSchema() []provider.Param {
	return []provider.Param{
		{Key: ParamStream, Pattern: streamPattern},
		{Key: ParamSubject, Pattern: subjectPattern},
	}
}

// SupportsThreads implements provider.Sink.
func (s *Sink) SupportsThreads() bool {
	return false
}

// TriggerNotification implements provider.Sink.
func (s *Sink) TriggerNotification(ctx context.Context, n *provider.Notification) error {
	form := url.Values{}
	form.Set("type", "stream")
	form.Set("to", n.Channel.Data[ParamStream])
	form.Set("topic", n.Channel.Data[ParamSubject])
	form.Set("content", n.MarkdownText())

	endpoint := strings.TrimRight(s.config.ServerURL, "/") + "/api/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building zulip request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.config.BotUser, s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("zulip send: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusNotFound:
		// Zulip reports unknown streams as 400 with an error payload.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &provider.Error{ErrorKey: provider.ErrorKeyChannelNotFound, Detail: strings.TrimSpace(string(body))}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &provider.Error{ErrorKey: provider.ErrorKeyInvalidToken, Detail: "credentials rejected"}
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("zulip send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
