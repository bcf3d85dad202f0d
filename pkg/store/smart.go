package store

import (
	"context"

	"chatrelay/pkg/model"
)

// SmartResult reports what SmartCreateRule did.
type SmartResult string

const (
	// SmartUpdated means an existing rule was adopted or widened.
	SmartUpdated SmartResult = "updated"

	// SmartCreated means a new rule was created.
	SmartCreated SmartResult = "created"
)

// SmartCreateRule creates a normal rule on a channel, merging with
// existing rules instead of stacking duplicates:
//
//  1. Rules with the same category and same tag set already exist: the
//     oldest becomes canonical and adopts the requested filter, the rest
//     are deleted as duplicates.
//  2. Rules with the same category and same filter exist: the oldest
//     becomes canonical with the union of all their tag sets plus the
//     requested tags, the rest are deleted.
//  3. Otherwise create a fresh rule.
//
// Candidates are ordered by creation time then id, so repeated calls
// converge deterministically on the same canonical rule.
func (s *Store) SmartCreateRule(ctx context.Context, channelID string, filter model.Filter, categoryID *int64, tags []string) (*model.Rule, SmartResult, error) {
	tags = model.NormalizeTags(tags)

	existing, err := s.Rules(ctx, RuleQuery{ChannelID: channelID, Type: model.RuleTypeNormal})
	if err != nil {
		return nil, "", err
	}

	var sameCategory []model.Rule
	for _, r := range existing {
		if sameCategoryID(r.CategoryID, categoryID) {
			sameCategory = append(sameCategory, r)
		}
	}

	var exact []model.Rule
	for _, r := range sameCategory {
		if model.SameTags(r.Tags, tags) {
			exact = append(exact, r)
		}
	}
	if len(exact) > 0 {
		canonical := exact[0]
		for _, dup := range exact[1:] {
			if err := s.DeleteRule(ctx, dup.ID); err != nil {
				return nil, "", err
			}
		}
		canonical.Filter = filter
		updated, err := s.UpdateRule(ctx, canonical)
		if err != nil {
			return nil, "", err
		}
		return updated, SmartUpdated, nil
	}

	var sameFilter []model.Rule
	for _, r := range sameCategory {
		if r.Filter == filter {
			sameFilter = append(sameFilter, r)
		}
	}
	if len(sameFilter) > 0 {
		canonical := sameFilter[0]
		merged := tags
		for _, r := range sameFilter {
			merged = unionTags(merged, r.Tags)
		}
		for _, dup := range sameFilter[1:] {
			if err := s.DeleteRule(ctx, dup.ID); err != nil {
				return nil, "", err
			}
		}
		canonical.Tags = merged
		updated, err := s.UpdateRule(ctx, canonical)
		if err != nil {
			return nil, "", err
		}
		return updated, SmartUpdated, nil
	}

	created, err := s.CreateRule(ctx, model.Rule{
		ChannelID:  channelID,
		Type:       model.RuleTypeNormal,
		Filter:     filter,
		CategoryID: categoryID,
		Tags:       tags,
	})
	if err != nil {
		return nil, "", err
	}
	return created, SmartCreated, nil
}

func sameCategoryID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func unionTags(a, b []string) []string {
	return model.NormalizeTags(append(append([]string{}, a...), b...))
}
