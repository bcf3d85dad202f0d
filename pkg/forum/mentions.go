package forum

import (
	"context"
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`(?:^|\W)@([a-zA-Z0-9_\-]+)`)

// MentionedGroups scans a post body for @name mentions and returns the ids
// of those that are actual forum groups. Names are matched case-insensitively,
// the way the forum resolves mentions.
func MentionedGroups(ctx context.Context, r Reader, body string) ([]int64, error) {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	groups, err := r.Groups(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64, len(groups))
	for _, g := range groups {
		byName[strings.ToLower(g.Name)] = g.ID
	}

	seen := make(map[int64]struct{})
	var ids []int64
	for _, m := range matches {
		id, ok := byName[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
