// Package provider defines the sink contract every chat integration
// implements, and the registry the dispatcher resolves sinks from.
package provider

import (
	"context"
	"fmt"

	"chatrelay/pkg/forum"
	"chatrelay/pkg/model"
)

// Param declares one channel parameter a provider requires, e.g. Slack's
// target channel name. Channel data is validated against the full set.
type Param = model.ChannelParam

// Notification is everything a sink needs to deliver one post to one
// channel: the post, its topic, the destination, and the winning rule.
type Notification struct {
	Post    *forum.Post
	Topic   *forum.Topic
	Channel *model.Channel
	Rule    *model.Rule

	// PostURL is the public link to the post on the forum.
	PostURL string
}

// Sink is a chat platform integration. Implementations must be safe for
// concurrent TriggerNotification calls; the dispatcher fans deliveries out.
type Sink interface {
	// Name is the registry key referenced by Channel.Provider.
	Name() string

	// IsEnabled reflects the site-level provider toggle. Disabled
	// providers are skipped silently at dispatch time.
	IsEnabled() bool

	// ParameterSchema declares the channel parameters this provider needs.
	ParameterSchema() []Param

	// SupportsThreads reports whether the thread filter is valid for
	// channels of this provider.
	SupportsThreads() bool

	// TriggerNotification delivers one notification. A returned *Error
	// carries a user-facing error key recorded on the channel; any other
	// error is recorded under the generic fallback key.
	TriggerNotification(ctx context.Context, n *Notification) error
}

// Error is a structured delivery failure with a user-facing reason.
type Error struct {
	// ErrorKey names a localized reason shown in the admin UI,
	// e.g. "channel_not_found".
	ErrorKey string

	// Detail is operator-facing context for the log.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("provider error %s: %s", e.ErrorKey, e.Detail)
	}
	return fmt.Sprintf("provider error %s", e.ErrorKey)
}

// Well-known error keys.
const (
	// ErrorKeyGeneric is recorded for unclassified sink failures.
	ErrorKeyGeneric = "failed_to_send"

	// ErrorKeyChannelNotFound means the configured destination does not
	// exist on the platform.
	ErrorKeyChannelNotFound = "channel_not_found"

	// ErrorKeyInvalidToken means the platform rejected our credentials.
	ErrorKeyInvalidToken = "invalid_token"
)
