package model

import (
	"testing"
)

func TestFilterPrecedence(t *testing.T) {
	if FilterMute.Precedence() >= FilterWatch.Precedence() {
		t.Error("mute must outrank watch")
	}
	if FilterWatch.Precedence() >= FilterFollow.Precedence() {
		t.Error("watch must outrank follow")
	}
	if FilterFollow.Precedence() >= FilterThread.Precedence() {
		t.Error("follow must outrank thread")
	}
	if Filter("bogus").Precedence() <= FilterThread.Precedence() {
		t.Error("unknown filters must never win a channel")
	}
}

func TestFilterValid(t *testing.T) {
	for _, f := range []Filter{FilterMute, FilterWatch, FilterFollow, FilterThread} {
		if !f.Valid() {
			t.Errorf("%s should be valid", f)
		}
	}
	if Filter("loud").Valid() {
		t.Error("unknown filter should be invalid")
	}
}

func TestRuleTypeIsGroup(t *testing.T) {
	if RuleTypeNormal.IsGroup() {
		t.Error("normal is not a group type")
	}
	if !RuleTypeGroupMessage.IsGroup() || !RuleTypeGroupMention.IsGroup() {
		t.Error("group types must report IsGroup")
	}
}

func TestNormalizeTags(t *testing.T) {
	if got := NormalizeTags(nil); got != nil {
		t.Errorf("nil should stay nil, got %v", got)
	}
	if got := NormalizeTags([]string{}); got != nil {
		t.Errorf("empty list should normalize to nil, got %v", got)
	}
	got := NormalizeTags([]string{"b", "a", "b"})
	if len(got) != 2 {
		t.Fatalf("expected 2 tags after dedup, got %v", got)
	}
}

func TestSameTags(t *testing.T) {
	if !SameTags([]string{"x", "y"}, []string{"y", "x"}) {
		t.Error("tag comparison must be order independent")
	}
	if !SameTags(nil, []string{}) {
		t.Error("nil and empty must compare equal")
	}
	if SameTags([]string{"x"}, []string{"x", "y"}) {
		t.Error("different sets must not compare equal")
	}
}

func TestRuleHasTag(t *testing.T) {
	r := Rule{Tags: []string{"gsoc", "news"}}
	if !r.HasTag([]string{"misc", "gsoc"}) {
		t.Error("expected intersection match")
	}
	if r.HasTag([]string{"misc"}) {
		t.Error("expected no match without intersection")
	}
}
