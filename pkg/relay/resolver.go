package relay

import (
	"chatrelay/pkg/model"
)

// Resolve reduces matcher candidates to the final winner set: at most
// one rule per channel, each requiring exactly one delivery attempt.
//
// Per channel, in order:
//
//  1. Group rules beat normal rules; a channel with both keeps only its
//     group rules.
//  2. The lowest filter precedence wins (mute < watch < follow <
//     thread), so an overlapping mute always silences the channel. On a
//     full tie, group_mention beats group_message; after that the
//     earliest candidate wins.
//  3. A winning mute rule produces no delivery.
//  4. A winning follow rule only fires on the topic's first post.
func Resolve(candidates []model.Rule, isFirstPost bool) []model.Rule {
	byChannel := make(map[string]model.Rule)
	var order []string

	for _, r := range candidates {
		current, seen := byChannel[r.ChannelID]
		if !seen {
			byChannel[r.ChannelID] = r
			order = append(order, r.ChannelID)
			continue
		}
		if beats(r, current) {
			byChannel[r.ChannelID] = r
		}
	}

	var winners []model.Rule
	for _, channelID := range order {
		r := byChannel[channelID]
		if r.Filter == model.FilterMute {
			continue
		}
		if r.Filter == model.FilterFollow && !isFirstPost {
			continue
		}
		winners = append(winners, r)
	}
	return winners
}

// beats reports whether challenger displaces incumbent as its channel's
// winning rule.
func beats(challenger, incumbent model.Rule) bool {
	if challenger.Type.IsGroup() != incumbent.Type.IsGroup() {
		return challenger.Type.IsGroup()
	}
	cp, ip := challenger.Filter.Precedence(), incumbent.Filter.Precedence()
	if cp != ip {
		return cp < ip
	}
	// group_mention is the more specific signal than group_message.
	return challenger.Type == model.RuleTypeGroupMention && incumbent.Type == model.RuleTypeGroupMessage
}
