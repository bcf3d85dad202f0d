package relay

import (
	"testing"

	"chatrelay/pkg/model"
)

func rule(id, channelID string, t model.RuleType, f model.Filter) model.Rule {
	return model.Rule{ID: id, ChannelID: channelID, Type: t, Filter: f}
}

func TestResolveMuteWins(t *testing.T) {
	winners := Resolve([]model.Rule{
		rule("r1", "chan-a", model.RuleTypeNormal, model.FilterWatch),
		rule("r2", "chan-a", model.RuleTypeNormal, model.FilterMute),
	}, true)
	if len(winners) != 0 {
		t.Errorf("mute must suppress the channel entirely, got %v", winners)
	}

	// Order independent.
	winners = Resolve([]model.Rule{
		rule("r2", "chan-a", model.RuleTypeNormal, model.FilterMute),
		rule("r1", "chan-a", model.RuleTypeNormal, model.FilterWatch),
	}, true)
	if len(winners) != 0 {
		t.Errorf("mute must win regardless of candidate order, got %v", winners)
	}
}

func TestResolveFollowOnlyFirstPost(t *testing.T) {
	candidates := []model.Rule{rule("r1", "chan-a", model.RuleTypeNormal, model.FilterFollow)}

	if winners := Resolve(candidates, false); len(winners) != 0 {
		t.Errorf("follow must not fire on a reply, got %v", winners)
	}
	winners := Resolve(candidates, true)
	if len(winners) != 1 || winners[0].ID != "r1" {
		t.Errorf("follow must fire exactly once on the first post, got %v", winners)
	}
}

func TestResolveGroupBeatsNormal(t *testing.T) {
	winners := Resolve([]model.Rule{
		rule("r1", "chan-a", model.RuleTypeNormal, model.FilterWatch),
		rule("r2", "chan-a", model.RuleTypeGroupMention, model.FilterWatch),
	}, false)
	if len(winners) != 1 {
		t.Fatalf("expected exactly one delivery for the channel, got %d", len(winners))
	}
	if winners[0].ID != "r2" {
		t.Errorf("group rule must drive the delivery, got %s", winners[0].ID)
	}
}

func TestResolveGroupMentionBeatsGroupMessage(t *testing.T) {
	winners := Resolve([]model.Rule{
		rule("r1", "chan-a", model.RuleTypeGroupMessage, model.FilterWatch),
		rule("r2", "chan-a", model.RuleTypeGroupMention, model.FilterWatch),
	}, false)
	if len(winners) != 1 || winners[0].ID != "r2" {
		t.Errorf("group_mention must win the tie, got %v", winners)
	}
}

func TestResolveDedupByChannel(t *testing.T) {
	winners := Resolve([]model.Rule{
		rule("r1", "chan-a", model.RuleTypeNormal, model.FilterWatch),
		rule("r2", "chan-a", model.RuleTypeNormal, model.FilterWatch),
		rule("r3", "chan-b", model.RuleTypeNormal, model.FilterWatch),
	}, false)
	if len(winners) != 2 {
		t.Fatalf("expected one winner per channel, got %d", len(winners))
	}
	seen := map[string]bool{}
	for _, w := range winners {
		if seen[w.ChannelID] {
			t.Errorf("channel %s won twice", w.ChannelID)
		}
		seen[w.ChannelID] = true
	}
}

func TestResolveThreadDeliversOnReplies(t *testing.T) {
	winners := Resolve([]model.Rule{
		rule("r1", "chan-a", model.RuleTypeNormal, model.FilterThread),
	}, false)
	if len(winners) != 1 {
		t.Errorf("thread must deliver on non-first posts, got %v", winners)
	}
}
