package store

import (
	"context"
	"testing"

	"chatrelay/pkg/model"
)

func TestSmartCreateNewRule(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ch, _ := s.CreateChannel(ctx, "slack", map[string]string{"channel": "#general"})
	cat := int64(5)

	rule, result, err := s.SmartCreateRule(ctx, ch.ID, model.FilterWatch, &cat, []string{"gsoc"})
	if err != nil {
		t.Fatalf("SmartCreateRule failed: %v", err)
	}
	if result != SmartCreated {
		t.Errorf("expected created, got %s", result)
	}
	if rule.Filter != model.FilterWatch || rule.CategoryID == nil || *rule.CategoryID != cat {
		t.Errorf("unexpected rule %+v", rule)
	}
}

func TestSmartCreateSameTagsUpdatesFilter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ch, _ := s.CreateChannel(ctx, "slack", map[string]string{"channel": "#general"})
	cat := int64(5)

	existing, _, err := s.SmartCreateRule(ctx, ch.ID, model.FilterMute, &cat, []string{"gsoc", "news"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	// Same tag set in a different order must update in place.
	rule, result, err := s.SmartCreateRule(ctx, ch.ID, model.FilterWatch, &cat, []string{"news", "gsoc"})
	if err != nil {
		t.Fatalf("SmartCreateRule failed: %v", err)
	}
	if result != SmartUpdated {
		t.Errorf("expected updated, got %s", result)
	}
	if rule.ID != existing.ID {
		t.Errorf("expected canonical rule %s reused, got %s", existing.ID, rule.ID)
	}
	if rule.Filter != model.FilterWatch {
		t.Errorf("expected filter updated to watch, got %s", rule.Filter)
	}

	all, _ := s.Rules(ctx, RuleQuery{ChannelID: ch.ID})
	if len(all) != 1 {
		t.Errorf("expected no duplicate rules, got %d", len(all))
	}
}

func TestSmartCreateSameFilterUnionsTags(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ch, _ := s.CreateChannel(ctx, "slack", map[string]string{"channel": "#general"})
	cat := int64(5)

	existing, _, err := s.SmartCreateRule(ctx, ch.ID, model.FilterWatch, &cat, []string{"gsoc"})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rule, result, err := s.SmartCreateRule(ctx, ch.ID, model.FilterWatch, &cat, []string{"news"})
	if err != nil {
		t.Fatalf("SmartCreateRule failed: %v", err)
	}
	if result != SmartUpdated {
		t.Errorf("expected updated, got %s", result)
	}
	if rule.ID != existing.ID {
		t.Errorf("expected canonical rule reused")
	}
	if !model.SameTags(rule.Tags, []string{"gsoc", "news"}) {
		t.Errorf("expected merged tags, got %v", rule.Tags)
	}
}

func TestSmartCreateDeletesDuplicates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ch, _ := s.CreateChannel(ctx, "slack", map[string]string{"channel": "#general"})
	cat := int64(5)

	// Two identical rules created behind smart-create's back.
	first, err := s.CreateRule(ctx, model.Rule{ChannelID: ch.ID, Filter: model.FilterWatch, CategoryID: &cat, Tags: []string{"gsoc"}})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := s.CreateRule(ctx, model.Rule{ChannelID: ch.ID, Filter: model.FilterMute, CategoryID: &cat, Tags: []string{"gsoc"}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rule, result, err := s.SmartCreateRule(ctx, ch.ID, model.FilterFollow, &cat, []string{"gsoc"})
	if err != nil {
		t.Fatalf("SmartCreateRule failed: %v", err)
	}
	if result != SmartUpdated {
		t.Errorf("expected updated, got %s", result)
	}
	if rule.ID != first.ID {
		t.Errorf("expected oldest rule kept as canonical")
	}

	all, _ := s.Rules(ctx, RuleQuery{ChannelID: ch.ID})
	if len(all) != 1 {
		t.Errorf("expected duplicates deleted, got %d rules", len(all))
	}
}

func TestSmartCreateDistinctCategoriesStaySeparate(t *testing.T) {
	s, mem := newTestStore(t)
	ctx := context.Background()
	mem.AddCategory(8, "meta")

	ch, _ := s.CreateChannel(ctx, "slack", map[string]string{"channel": "#general"})
	catA, catB := int64(5), int64(8)

	if _, _, err := s.SmartCreateRule(ctx, ch.ID, model.FilterWatch, &catA, nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	_, result, err := s.SmartCreateRule(ctx, ch.ID, model.FilterWatch, &catB, nil)
	if err != nil {
		t.Fatalf("SmartCreateRule failed: %v", err)
	}
	if result != SmartCreated {
		t.Errorf("different category must create, got %s", result)
	}

	// Wildcard is its own bucket, not category A or B.
	_, result, err = s.SmartCreateRule(ctx, ch.ID, model.FilterWatch, nil, nil)
	if err != nil {
		t.Fatalf("SmartCreateRule failed: %v", err)
	}
	if result != SmartCreated {
		t.Errorf("wildcard category must create, got %s", result)
	}
}
