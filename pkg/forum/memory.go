package forum

import (
	"context"
	"sync"
)

// Memory is an in-memory Reader. It backs tests and local development
// without a live forum.
type Memory struct {
	mu         sync.RWMutex
	posts      map[int64]*Post
	topics     map[int64]*Topic
	groups     []Group
	categories map[int64]string
	tags       map[string]struct{}
	hidden     map[int64]struct{} // post ids the relay actor cannot see
}

// NewMemory creates an empty in-memory forum.
func NewMemory() *Memory {
	return &Memory{
		posts:      make(map[int64]*Post),
		topics:     make(map[int64]*Topic),
		categories: make(map[int64]string),
		tags:       make(map[string]struct{}),
		hidden:     make(map[int64]struct{}),
	}
}

// AddPost registers a post.
func (m *Memory) AddPost(p *Post) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = p
}

// AddTopic registers a topic.
func (m *Memory) AddTopic(t *Topic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics[t.ID] = t
}

// AddGroup registers a group.
func (m *Memory) AddGroup(g Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups = append(m.groups, g)
}

// AddCategory registers a category.
func (m *Memory) AddCategory(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[id] = name
}

// AddTag registers a tag.
func (m *Memory) AddTag(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[name] = struct{}{}
}

// Hide marks a post as invisible to the relay actor.
func (m *Memory) Hide(postID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hidden[postID] = struct{}{}
}

// Post implements Reader.
func (m *Memory) Post(ctx context.Context, id int64) (*Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// Topic implements Reader.
func (m *Memory) Topic(ctx context.Context, id int64) (*Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// CanSee implements Reader.
func (m *Memory) CanSee(ctx context.Context, post *Post) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, hidden := m.hidden[post.ID]
	return !hidden, nil
}

// Groups implements Reader.
func (m *Memory) Groups(ctx context.Context) ([]Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Group, len(m.groups))
	copy(out, m.groups)
	return out, nil
}

// CategoryExists implements Reader.
func (m *Memory) CategoryExists(ctx context.Context, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.categories[id]
	return ok, nil
}

// CategoryName implements Reader.
func (m *Memory) CategoryName(ctx context.Context, id int64) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name, ok := m.categories[id]; ok {
		return name
	}
	return DeletedCategoryPlaceholder
}

// TagExists implements Reader.
func (m *Memory) TagExists(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tags[name]
	return ok, nil
}
