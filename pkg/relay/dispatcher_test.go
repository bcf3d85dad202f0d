package relay

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"chatrelay/pkg/config"
	"chatrelay/pkg/forum"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/model"
	"chatrelay/pkg/provider"
	"chatrelay/pkg/store"
)

// fakeSink records deliveries and fails on demand.
type fakeSink struct {
	name    string
	enabled bool

	mu    sync.Mutex
	calls []*provider.Notification
	fail  error
}

func (f *fakeSink) Name() string    { return f.name }
func (f *fakeSink) IsEnabled() bool { return f.enabled }

func (f *fakeSink) ParameterSchema() []provider.Param {
	return []provider.Param{
		{Key: "target", Pattern: regexp.MustCompile(`^\S+$`), Unique: true},
	}
}

func (f *fakeSink) SupportsThreads() bool { return false }

func (f *fakeSink) TriggerNotification(ctx context.Context, n *provider.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, n)
	return nil
}

func (f *fakeSink) deliveries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	store      *store.Store
	registry   *provider.Registry
	forum      *forum.Memory
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, sinks ...*fakeSink) *fixture {
	t.Helper()

	registry := provider.NewRegistry(logger.NewNop())
	for _, sink := range sinks {
		if err := registry.Register(sink); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	mem := forum.NewMemory()
	mem.AddCategory(5, "dev")
	mem.AddCategory(8, "meta")
	mem.AddTag("gsoc")
	mem.AddTag("news")

	s, err := store.Open(logger.NewNop(), store.Config{InMemory: true}, registry, mem)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.DefaultConfig()
	cfg.Forum.BaseURL = "https://forum.example.com"
	cfg.Forum.TaggingEnabled = true
	cfg.Dispatch.Workers = 2
	cfg.Dispatch.ProviderTimeoutSeconds = 5

	return &fixture{
		store:      s,
		registry:   registry,
		forum:      mem,
		dispatcher: NewDispatcher(logger.NewNop(), cfg, s, registry, mem),
	}
}

// channel creates a channel plus one rule on it.
func (fx *fixture) channel(t *testing.T, providerName, target string, r model.Rule) (*model.Channel, *model.Rule) {
	t.Helper()
	ch, err := fx.store.CreateChannel(context.Background(), providerName, map[string]string{"target": target})
	if err != nil {
		t.Fatalf("CreateChannel failed: %v", err)
	}
	r.ChannelID = ch.ID
	rule, err := fx.store.CreateRule(context.Background(), r)
	if err != nil {
		t.Fatalf("CreateRule failed: %v", err)
	}
	return ch, rule
}

func (fx *fixture) post(id, topicID int64, number int) *forum.Post {
	p := &forum.Post{
		ID:         id,
		TopicID:    topicID,
		PostNumber: number,
		PostType:   forum.PostTypeRegular,
		Username:   "alice",
		Raw:        "hello world",
	}
	fx.forum.AddPost(p)
	return p
}

func (fx *fixture) topic(id int64, categoryID *int64, tags ...string) *forum.Topic {
	topic := &forum.Topic{
		ID:         id,
		Title:      "A topic",
		Slug:       "a-topic",
		Archetype:  forum.ArchetypeRegular,
		CategoryID: categoryID,
		Tags:       tags,
	}
	fx.forum.AddTopic(topic)
	return topic
}

func TestDispatchDeliversToMatchingChannel(t *testing.T) {
	sink := &fakeSink{name: "slack", enabled: true}
	fx := newFixture(t, sink)

	cat := int64(5)
	fx.channel(t, "slack", "#general", model.Rule{Filter: model.FilterWatch, CategoryID: &cat})
	fx.topic(1, &cat)
	fx.post(10, 1, 2)

	if err := fx.dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if sink.deliveries() != 1 {
		t.Errorf("expected one delivery, got %d", sink.deliveries())
	}
	if got := sink.calls[0].PostURL; got != "https://forum.example.com/t/a-topic/1/2" {
		t.Errorf("unexpected post url %q", got)
	}
}

func TestDispatchSilentNoOps(t *testing.T) {
	sink := &fakeSink{name: "slack", enabled: true}
	fx := newFixture(t, sink)

	cat := int64(5)
	fx.channel(t, "slack", "#general", model.Rule{Filter: model.FilterWatch})

	// Missing post.
	if err := fx.dispatcher.Dispatch(context.Background(), 999); err != nil {
		t.Errorf("missing post must be a no-op, got %v", err)
	}

	// Non-regular post kind.
	fx.topic(1, &cat)
	whisper := fx.post(11, 1, 2)
	whisper.PostType = 4
	if err := fx.dispatcher.Dispatch(context.Background(), 11); err != nil {
		t.Errorf("non-regular post must be a no-op, got %v", err)
	}

	// Post the relay actor cannot see.
	fx.post(12, 1, 3)
	fx.forum.Hide(12)
	if err := fx.dispatcher.Dispatch(context.Background(), 12); err != nil {
		t.Errorf("invisible post must be a no-op, got %v", err)
	}

	// Missing topic.
	fx.post(13, 777, 1)
	if err := fx.dispatcher.Dispatch(context.Background(), 13); err != nil {
		t.Errorf("missing topic must be a no-op, got %v", err)
	}

	if sink.deliveries() != 0 {
		t.Errorf("expected no deliveries, got %d", sink.deliveries())
	}
}

func TestDispatchFailureIsolation(t *testing.T) {
	sinkA := &fakeSink{name: "pa", enabled: true}
	sinkB := &fakeSink{name: "pb", enabled: true, fail: errors.New("boom")}
	sinkC := &fakeSink{name: "pc", enabled: true}
	fx := newFixture(t, sinkA, sinkB, sinkC)

	chA, _ := fx.channel(t, "pa", "a", model.Rule{Filter: model.FilterWatch})
	chB, _ := fx.channel(t, "pb", "b", model.Rule{Filter: model.FilterWatch})
	chC, _ := fx.channel(t, "pc", "c", model.Rule{Filter: model.FilterWatch})

	cat := int64(5)
	fx.topic(1, &cat)
	fx.post(10, 1, 1)

	if err := fx.dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if sinkA.deliveries() != 1 || sinkC.deliveries() != 1 {
		t.Errorf("healthy channels must still deliver, got %d and %d", sinkA.deliveries(), sinkC.deliveries())
	}

	ctx := context.Background()
	loadedB, _ := fx.store.Channel(ctx, chB.ID)
	if loadedB.ErrorKey != provider.ErrorKeyGeneric {
		t.Errorf("expected generic error key on failing channel, got %q", loadedB.ErrorKey)
	}
	for _, id := range []string{chA.ID, chC.ID} {
		loaded, _ := fx.store.Channel(ctx, id)
		if loaded.ErrorKey != "" {
			t.Errorf("healthy channel %s must carry no error key, got %q", id, loaded.ErrorKey)
		}
	}

	// A later successful dispatch clears the marker.
	sinkB.mu.Lock()
	sinkB.fail = nil
	sinkB.mu.Unlock()
	fx.post(20, 1, 2)
	if err := fx.dispatcher.Dispatch(ctx, 20); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	loadedB, _ = fx.store.Channel(ctx, chB.ID)
	if loadedB.ErrorKey != "" {
		t.Errorf("expected error key cleared after success, got %q", loadedB.ErrorKey)
	}
}

func TestDispatchStructuredProviderError(t *testing.T) {
	sink := &fakeSink{name: "slack", enabled: true, fail: &provider.Error{ErrorKey: provider.ErrorKeyChannelNotFound}}
	fx := newFixture(t, sink)

	ch, rule := fx.channel(t, "slack", "#gone", model.Rule{Filter: model.FilterWatch})
	cat := int64(5)
	fx.topic(1, &cat)
	fx.post(10, 1, 1)

	if err := fx.dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	loaded, _ := fx.store.Channel(context.Background(), ch.ID)
	if loaded.ErrorKey != provider.ErrorKeyChannelNotFound {
		t.Errorf("expected channel_not_found recorded, got %q", loaded.ErrorKey)
	}
	loadedRule, _ := fx.store.Rule(context.Background(), rule.ID)
	if loadedRule.ErrorKey != provider.ErrorKeyChannelNotFound {
		t.Errorf("expected error key on rule too, got %q", loadedRule.ErrorKey)
	}
}

func TestDispatchSkipsDisabledProvider(t *testing.T) {
	sink := &fakeSink{name: "slack", enabled: false}
	fx := newFixture(t, sink)

	fx.channel(t, "slack", "#general", model.Rule{Filter: model.FilterWatch})
	cat := int64(5)
	fx.topic(1, &cat)
	fx.post(10, 1, 1)

	if err := fx.dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if sink.deliveries() != 0 {
		t.Errorf("disabled provider must be skipped, got %d deliveries", sink.deliveries())
	}
}

func TestDispatchEmitsDeliveryEvents(t *testing.T) {
	sink := &fakeSink{name: "slack", enabled: true}
	fx := newFixture(t, sink)

	fx.channel(t, "slack", "#general", model.Rule{Filter: model.FilterWatch})
	cat := int64(5)
	fx.topic(1, &cat)
	fx.post(10, 1, 1)

	events, cancel := fx.dispatcher.Subscribe()
	defer cancel()

	if err := fx.dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	ev := <-events
	if !ev.OK || ev.PostID != 10 || ev.Provider != "slack" {
		t.Errorf("unexpected event %+v", ev)
	}
}
