// Package model defines the relay's persistent domain types: channels
// (configured destinations on a chat provider) and rules (subscriptions
// linking a channel to a category/tag or group scope with a filter level).
package model

import (
	"regexp"
	"time"
)

// ChannelParam declares one provider-specific channel parameter and how
// to validate it at channel write time.
type ChannelParam struct {
	// Key is the parameter name as stored in Channel.Data.
	Key string `json:"key"`

	// Pattern validates the parameter value.
	Pattern *regexp.Regexp `json:"-"`

	// Unique forbids two channels of the same provider sharing a value.
	Unique bool `json:"unique"`

	// Optional allows the parameter to be omitted.
	Optional bool `json:"optional"`

	// Hidden hides the value in listings (tokens, webhook URLs).
	Hidden bool `json:"hidden"`
}

// Filter is the delivery intensity of a rule.
type Filter string

const (
	// FilterMute suppresses delivery for everything the rule matches.
	FilterMute Filter = "mute"
	// FilterWatch delivers every matching post.
	FilterWatch Filter = "watch"
	// FilterFollow delivers only the first post of a topic.
	FilterFollow Filter = "follow"
	// FilterThread delivers every matching post as a threaded reply.
	// Only valid on providers that support threading.
	FilterThread Filter = "thread"
)

// filterPrecedence orders filters for per-channel conflict resolution.
// Lower wins; mute always beats anything that would deliver.
var filterPrecedence = map[Filter]int{
	FilterMute:   0,
	FilterWatch:  1,
	FilterFollow: 2,
	FilterThread: 3,
}

// Precedence returns the conflict-resolution rank of f. Unknown filters
// rank last so they never displace a valid one.
func (f Filter) Precedence() int {
	p, ok := filterPrecedence[f]
	if !ok {
		return len(filterPrecedence)
	}
	return p
}

// Valid reports whether f is a declared filter.
func (f Filter) Valid() bool {
	_, ok := filterPrecedence[f]
	return ok
}

// RuleType distinguishes category-scoped rules from group-scoped ones.
type RuleType string

const (
	// RuleTypeNormal matches public topics by category and tags.
	RuleTypeNormal RuleType = "normal"
	// RuleTypeGroupMessage matches private messages a group can read.
	RuleTypeGroupMessage RuleType = "group_message"
	// RuleTypeGroupMention matches posts that @mention a group.
	RuleTypeGroupMention RuleType = "group_mention"
)

// Valid reports whether t is a declared rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeNormal, RuleTypeGroupMessage, RuleTypeGroupMention:
		return true
	}
	return false
}

// IsGroup reports whether t targets a group rather than a category.
func (t RuleType) IsGroup() bool {
	return t == RuleTypeGroupMessage || t == RuleTypeGroupMention
}

// Channel is a configured destination on a chat provider, e.g. a specific
// Slack channel. Data holds provider-specific parameters validated against
// the provider's declared schema.
type Channel struct {
	ID       string            `json:"id"`
	Provider string            `json:"provider"`
	Data     map[string]string `json:"data"`

	// ErrorKey is the last delivery failure marker, cleared on the next
	// successful delivery. Empty means healthy.
	ErrorKey string `json:"error_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Rule is a subscription linking a channel to a scope and a filter level.
type Rule struct {
	ID        string   `json:"id"`
	ChannelID string   `json:"channel_id"`
	Type      RuleType `json:"type"`

	// CategoryID scopes normal rules. Nil means wildcard: all categories.
	CategoryID *int64 `json:"category_id,omitempty"`

	// GroupID scopes group_message and group_mention rules.
	GroupID *int64 `json:"group_id,omitempty"`

	// Tags restricts matching to topics carrying at least one of these
	// tags. Nil means no tag restriction. Never stored empty non-nil.
	Tags []string `json:"tags,omitempty"`

	Filter Filter `json:"filter"`

	// ErrorKey is kept for per-rule error surfacing in the admin UI.
	ErrorKey string `json:"error_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTag reports whether the rule's tag restriction admits any of the
// given topic tags. Rules without tags admit everything.
func (r *Rule) HasTag(topicTags []string) bool {
	if len(r.Tags) == 0 {
		return true
	}
	for _, rt := range r.Tags {
		for _, tt := range topicTags {
			if rt == tt {
				return true
			}
		}
	}
	return false
}

// NormalizeTags returns tags with empties dropped and duplicates removed,
// or nil when nothing remains. The empty list is never persisted.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SameTags reports whether two tag sets are equal ignoring order.
func SameTags(a, b []string) bool {
	a, b = NormalizeTags(a), NormalizeTags(b)
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
