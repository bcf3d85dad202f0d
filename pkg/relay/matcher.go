// Package relay is the notification routing engine: it matches incoming
// posts against subscription rules, resolves per-channel precedence and
// fans deliveries out to provider sinks.
package relay

import (
	"context"

	"chatrelay/pkg/forum"
	"chatrelay/pkg/model"
	"chatrelay/pkg/store"
)

// TopicContext is the routing view of one post: where it lives and, for
// private messages, which groups may read it and which are @mentioned in
// the post body.
type TopicContext struct {
	Archetype  string
	CategoryID *int64
	Tags       []string

	// GroupsWithAccess and GroupsMentioned are only populated for
	// private messages.
	GroupsWithAccess []int64
	GroupsMentioned  []int64
}

// IsPrivateMessage reports whether the context describes a PM topic.
func (t *TopicContext) IsPrivateMessage() bool {
	return t.Archetype == forum.ArchetypePrivateMessage
}

// Matcher selects the candidate rules for a topic context.
type Matcher struct {
	store          *store.Store
	taggingEnabled bool
}

// NewMatcher creates a matcher.
func NewMatcher(s *store.Store, taggingEnabled bool) *Matcher {
	return &Matcher{store: s, taggingEnabled: taggingEnabled}
}

// MatchCandidates returns every rule whose scope covers the topic
// context. Precedence between candidates is the resolver's job.
func (m *Matcher) MatchCandidates(ctx context.Context, tctx *TopicContext) ([]model.Rule, error) {
	if tctx.IsPrivateMessage() {
		return m.matchPrivateMessage(ctx, tctx)
	}
	return m.matchPublicTopic(ctx, tctx)
}

func (m *Matcher) matchPrivateMessage(ctx context.Context, tctx *TopicContext) ([]model.Rule, error) {
	// A PM nobody with read access could subscribe to never notifies.
	if len(tctx.GroupsWithAccess) == 0 {
		return nil, nil
	}

	candidates, err := m.store.Rules(ctx, store.RuleQuery{
		Type:     model.RuleTypeGroupMessage,
		GroupIDs: tctx.GroupsWithAccess,
	})
	if err != nil {
		return nil, err
	}

	if len(tctx.GroupsMentioned) > 0 {
		mentioned, err := m.store.Rules(ctx, store.RuleQuery{
			Type:     model.RuleTypeGroupMention,
			GroupIDs: tctx.GroupsMentioned,
		})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, mentioned...)
	}
	return m.filterByTags(candidates, tctx), nil
}

func (m *Matcher) matchPublicTopic(ctx context.Context, tctx *TopicContext) ([]model.Rule, error) {
	// Wildcard rules match every topic; category rules only their own.
	// An uncategorized topic sees the wildcard set exactly once.
	candidates, err := m.store.Rules(ctx, store.RuleQuery{
		Type:             model.RuleTypeNormal,
		WildcardCategory: true,
	})
	if err != nil {
		return nil, err
	}

	if tctx.CategoryID != nil {
		scoped, err := m.store.Rules(ctx, store.RuleQuery{
			Type:       model.RuleTypeNormal,
			CategoryID: tctx.CategoryID,
		})
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, scoped...)
	}
	return m.filterByTags(candidates, tctx), nil
}

// filterByTags drops rules whose tag set does not intersect the topic's
// tags. Tagless rules always pass, as does everything when tagging is
// disabled process-wide.
func (m *Matcher) filterByTags(candidates []model.Rule, tctx *TopicContext) []model.Rule {
	if !m.taggingEnabled {
		return candidates
	}
	kept := candidates[:0]
	for _, r := range candidates {
		if len(r.Tags) == 0 || r.HasTag(tctx.Tags) {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
