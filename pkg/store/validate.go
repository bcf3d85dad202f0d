package store

import (
	"context"
	"fmt"

	"chatrelay/pkg/model"
)

// ValidationError reports a rejected channel or rule write. Field names
// the offending input field; Key is a stable machine-readable reason.
type ValidationError struct {
	Field  string
	Key    string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Key)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Key, e.Detail)
}

// Validation error keys.
const (
	KeyUnknownProvider   = "unknown_provider"
	KeyMissingParam      = "missing_param"
	KeyUnknownParam      = "unknown_param"
	KeyInvalidParam      = "invalid_param"
	KeyDuplicateChannel  = "duplicate_channel"
	KeyUnknownChannel    = "unknown_channel"
	KeyInvalidType       = "invalid_type"
	KeyInvalidFilter     = "invalid_filter"
	KeyThreadUnsupported = "thread_unsupported"
	KeyMissingGroup      = "missing_group"
	KeyUnknownCategory   = "unknown_category"
	KeyUnknownTag        = "unknown_tag"
)

func (s *Store) validateChannel(ctx context.Context, ch *model.Channel) error {
	params, _, ok := s.schema.ChannelSchema(ch.Provider)
	if !ok {
		return &ValidationError{Field: "provider", Key: KeyUnknownProvider, Detail: ch.Provider}
	}

	known := make(map[string]model.ChannelParam, len(params))
	for _, p := range params {
		known[p.Key] = p
		val, present := ch.Data[p.Key]
		if !present || val == "" {
			if p.Optional {
				continue
			}
			return &ValidationError{Field: p.Key, Key: KeyMissingParam}
		}
		if p.Pattern != nil && !p.Pattern.MatchString(val) {
			return &ValidationError{Field: p.Key, Key: KeyInvalidParam, Detail: val}
		}
	}
	for key := range ch.Data {
		if _, ok := known[key]; !ok {
			return &ValidationError{Field: key, Key: KeyUnknownParam}
		}
	}

	// Unique parameters identify a channel within its provider; a second
	// channel with the same value is a duplicate.
	siblings, err := s.Channels(ctx, ch.Provider)
	if err != nil {
		return err
	}
	for _, p := range params {
		if !p.Unique {
			continue
		}
		for _, other := range siblings {
			if other.ID == ch.ID {
				continue
			}
			if other.Data[p.Key] == ch.Data[p.Key] {
				return &ValidationError{Field: p.Key, Key: KeyDuplicateChannel, Detail: ch.Data[p.Key]}
			}
		}
	}
	return nil
}

func (s *Store) validateRule(ctx context.Context, r *model.Rule) error {
	if !r.Type.Valid() {
		return &ValidationError{Field: "type", Key: KeyInvalidType, Detail: string(r.Type)}
	}
	if !r.Filter.Valid() {
		return &ValidationError{Field: "filter", Key: KeyInvalidFilter, Detail: string(r.Filter)}
	}

	ch, err := s.Channel(ctx, r.ChannelID)
	if err == ErrNotFound {
		return &ValidationError{Field: "channel_id", Key: KeyUnknownChannel, Detail: r.ChannelID}
	}
	if err != nil {
		return err
	}

	if r.Filter == model.FilterThread {
		_, supportsThreads, _ := s.schema.ChannelSchema(ch.Provider)
		if !supportsThreads {
			return &ValidationError{Field: "filter", Key: KeyThreadUnsupported, Detail: ch.Provider}
		}
	}

	// Tags restrict any rule type, group rules included.
	for _, tag := range r.Tags {
		ok, err := s.refs.TagExists(ctx, tag)
		if err != nil {
			return fmt.Errorf("checking tag %q: %w", tag, err)
		}
		if !ok {
			return &ValidationError{Field: "tags", Key: KeyUnknownTag, Detail: tag}
		}
	}

	if r.Type.IsGroup() {
		if r.GroupID == nil {
			return &ValidationError{Field: "group_id", Key: KeyMissingGroup}
		}
		// Group rules scope by group membership, not category.
		r.CategoryID = nil
		return nil
	}
	r.GroupID = nil

	if r.CategoryID != nil {
		ok, err := s.refs.CategoryExists(ctx, *r.CategoryID)
		if err != nil {
			return fmt.Errorf("checking category %d: %w", *r.CategoryID, err)
		}
		if !ok {
			return &ValidationError{Field: "category_id", Key: KeyUnknownCategory, Detail: fmt.Sprint(*r.CategoryID)}
		}
	}
	return nil
}
