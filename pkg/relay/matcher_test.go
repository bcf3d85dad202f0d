package relay

import (
	"context"
	"testing"

	"chatrelay/pkg/forum"
	"chatrelay/pkg/model"
)

func TestMatcherTagFiltering(t *testing.T) {
	sink := &fakeSink{name: "slack", enabled: true}
	fx := newFixture(t, sink)
	ctx := context.Background()

	cat := int64(5)
	_, tagged := fx.channel(t, "slack", "#gsoc", model.Rule{Filter: model.FilterWatch, CategoryID: &cat, Tags: []string{"gsoc"}})
	_, tagless := fx.channel(t, "slack", "#all", model.Rule{Filter: model.FilterWatch, CategoryID: &cat})

	matcher := NewMatcher(fx.store, true)

	// Topic tagged gsoc matches both rules.
	got, err := matcher.MatchCandidates(ctx, &TopicContext{
		Archetype:  forum.ArchetypeRegular,
		CategoryID: &cat,
		Tags:       []string{"gsoc"},
	})
	if err != nil {
		t.Fatalf("MatchCandidates failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected both rules for tagged topic, got %d", len(got))
	}

	// Untagged topic only matches the tagless rule.
	got, err = matcher.MatchCandidates(ctx, &TopicContext{
		Archetype:  forum.ArchetypeRegular,
		CategoryID: &cat,
	})
	if err != nil {
		t.Fatalf("MatchCandidates failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != tagless.ID {
		t.Errorf("expected only the tagless rule, got %v", got)
	}

	// With tagging disabled the tag restriction is ignored.
	relaxed := NewMatcher(fx.store, false)
	got, err = relaxed.MatchCandidates(ctx, &TopicContext{
		Archetype:  forum.ArchetypeRegular,
		CategoryID: &cat,
	})
	if err != nil {
		t.Fatalf("MatchCandidates failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected tag filter skipped when tagging disabled, got %d", len(got))
	}
	_ = tagged
}

func TestMatcherWildcardCategory(t *testing.T) {
	sink := &fakeSink{name: "slack", enabled: true}
	fx := newFixture(t, sink)
	ctx := context.Background()

	cat, other := int64(5), int64(8)
	_, wildcard := fx.channel(t, "slack", "#all", model.Rule{Filter: model.FilterWatch})
	_, scoped := fx.channel(t, "slack", "#dev", model.Rule{Filter: model.FilterWatch, CategoryID: &cat})

	matcher := NewMatcher(fx.store, true)

	got, err := matcher.MatchCandidates(ctx, &TopicContext{Archetype: forum.ArchetypeRegular, CategoryID: &cat})
	if err != nil {
		t.Fatalf("MatchCandidates failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected wildcard plus scoped rule, got %d", len(got))
	}

	got, _ = matcher.MatchCandidates(ctx, &TopicContext{Archetype: forum.ArchetypeRegular, CategoryID: &other})
	if len(got) != 1 || got[0].ID != wildcard.ID {
		t.Errorf("expected only the wildcard rule for another category, got %v", got)
	}

	// Uncategorized topic sees the wildcard set exactly once.
	got, _ = matcher.MatchCandidates(ctx, &TopicContext{Archetype: forum.ArchetypeRegular})
	if len(got) != 1 || got[0].ID != wildcard.ID {
		t.Errorf("expected wildcard rule once for uncategorized topic, got %v", got)
	}
	_ = scoped
}

func TestMatcherPrivateMessageRouting(t *testing.T) {
	sink := &fakeSink{name: "slack", enabled: true}
	fx := newFixture(t, sink)
	ctx := context.Background()

	g1, g2, g3 := int64(1), int64(2), int64(3)
	_, msgRule := fx.channel(t, "slack", "#g1", model.Rule{Type: model.RuleTypeGroupMessage, Filter: model.FilterWatch, GroupID: &g1})
	fx.channel(t, "slack", "#g3", model.Rule{Type: model.RuleTypeGroupMention, Filter: model.FilterWatch, GroupID: &g3})

	matcher := NewMatcher(fx.store, true)

	// PM visible to G1 and G2: only the G1 group_message rule fires.
	got, err := matcher.MatchCandidates(ctx, &TopicContext{
		Archetype:        forum.ArchetypePrivateMessage,
		GroupsWithAccess: []int64{g1, g2},
	})
	if err != nil {
		t.Fatalf("MatchCandidates failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != msgRule.ID {
		t.Errorf("expected only G1's rule, got %v", got)
	}

	// Mention rules need the group mentioned in this specific post.
	got, _ = matcher.MatchCandidates(ctx, &TopicContext{
		Archetype:        forum.ArchetypePrivateMessage,
		GroupsWithAccess: []int64{g1},
		GroupsMentioned:  []int64{g3},
	})
	if len(got) != 2 {
		t.Errorf("expected access rule plus mention rule, got %v", got)
	}

	// A PM nobody with rules can read routes nowhere.
	got, _ = matcher.MatchCandidates(ctx, &TopicContext{
		Archetype:        forum.ArchetypePrivateMessage,
		GroupsWithAccess: nil,
		GroupsMentioned:  []int64{g3},
	})
	if len(got) != 0 {
		t.Errorf("PM with no accessible groups must match nothing, got %v", got)
	}

	// Normal rules never match private messages.
	fx.channel(t, "slack", "#normal", model.Rule{Filter: model.FilterWatch})
	got, _ = matcher.MatchCandidates(ctx, &TopicContext{
		Archetype:        forum.ArchetypePrivateMessage,
		GroupsWithAccess: []int64{g2},
	})
	if len(got) != 0 {
		t.Errorf("normal rules must not match PMs, got %v", got)
	}
}

func TestMatcherGroupRuleTagRestriction(t *testing.T) {
	sink := &fakeSink{name: "slack", enabled: true}
	fx := newFixture(t, sink)
	ctx := context.Background()

	g1 := int64(1)
	_, tagged := fx.channel(t, "slack", "#gsoc-pm", model.Rule{
		Type:    model.RuleTypeGroupMessage,
		Filter:  model.FilterWatch,
		GroupID: &g1,
		Tags:    []string{"gsoc"},
	})

	matcher := NewMatcher(fx.store, true)

	// PM in a topic without the rule's tag is discarded.
	got, err := matcher.MatchCandidates(ctx, &TopicContext{
		Archetype:        forum.ArchetypePrivateMessage,
		Tags:             []string{"news"},
		GroupsWithAccess: []int64{g1},
	})
	if err != nil {
		t.Fatalf("MatchCandidates failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("group rule tag restriction must apply to PMs, got %v", got)
	}

	// PM in a matching topic fires the rule.
	got, _ = matcher.MatchCandidates(ctx, &TopicContext{
		Archetype:        forum.ArchetypePrivateMessage,
		Tags:             []string{"gsoc"},
		GroupsWithAccess: []int64{g1},
	})
	if len(got) != 1 || got[0].ID != tagged.ID {
		t.Errorf("expected the tagged group rule, got %v", got)
	}
}
