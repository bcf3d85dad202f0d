// Package forum adapts the host forum the relay watches. The relay only
// ever reads: posts, topics, and the reference data needed to validate
// rules. All access happens as the configured relay actor, so the forum's
// own permission model decides what may be relayed.
package forum

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a post or topic does not exist (or was
// deleted between the event and the dispatch).
var ErrNotFound = errors.New("forum: not found")

// Archetype of a topic.
const (
	ArchetypeRegular        = "regular"
	ArchetypePrivateMessage = "private_message"
)

// PostTypeRegular is the only post kind the relay notifies about;
// whispers, small-actions and moderator posts are skipped.
const PostTypeRegular = 1

// Post is a single forum post.
type Post struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topic_id"`
	PostNumber int       `json:"post_number"`
	PostType   int       `json:"post_type"`
	Username   string    `json:"username"`
	Raw        string    `json:"raw"`
	Excerpt    string    `json:"excerpt"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsFirstPost reports whether this post opens its topic.
func (p *Post) IsFirstPost() bool {
	return p.PostNumber == 1
}

// IsRegular reports whether this is an ordinary user-visible post.
func (p *Post) IsRegular() bool {
	return p.PostType == PostTypeRegular
}

// Topic is the thread a post belongs to.
type Topic struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	Archetype  string   `json:"archetype"`
	CategoryID *int64   `json:"category_id,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	// AllowedGroupIDs lists groups with read access. Only populated for
	// private messages.
	AllowedGroupIDs []int64 `json:"allowed_group_ids,omitempty"`
}

// IsPrivateMessage reports whether the topic is a PM.
func (t *Topic) IsPrivateMessage() bool {
	return t.Archetype == ArchetypePrivateMessage
}

// Group is a forum group, referenced by rules and scanned for mentions.
type Group struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Reader is the forum capability the dispatcher and the rule store need.
// Implementations must treat missing records as ErrNotFound, not failures.
type Reader interface {
	// Post loads a post by id.
	Post(ctx context.Context, id int64) (*Post, error)

	// Topic loads a topic by id.
	Topic(ctx context.Context, id int64) (*Topic, error)

	// CanSee reports whether the relay actor may see the post. Posts the
	// relay actor cannot see are silently never relayed.
	CanSee(ctx context.Context, post *Post) (bool, error)

	// Groups returns all forum groups.
	Groups(ctx context.Context) ([]Group, error)

	// CategoryExists reports whether a category id is valid. Used at
	// rule write time only.
	CategoryExists(ctx context.Context, id int64) (bool, error)

	// CategoryName resolves a category id for display, degrading to a
	// placeholder when the category is gone.
	CategoryName(ctx context.Context, id int64) string

	// TagExists reports whether a tag name is valid.
	TagExists(ctx context.Context, name string) (bool, error)
}

// DeletedCategoryPlaceholder is shown when a rule references a category
// that no longer exists. Broken references degrade, never hard-error.
const DeletedCategoryPlaceholder = "[deleted category]"
