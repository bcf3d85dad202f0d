package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatrelay/pkg/config"
	"chatrelay/pkg/forum"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/model"
	"chatrelay/pkg/provider"
	"chatrelay/pkg/store"
)

// DeliveryEvent describes one delivery attempt, successful or not. The
// admin websocket streams these.
type DeliveryEvent struct {
	PostID    int64     `json:"post_id"`
	TopicID   int64     `json:"topic_id"`
	Provider  string    `json:"provider"`
	ChannelID string    `json:"channel_id"`
	RuleID    string    `json:"rule_id"`
	Filter    string    `json:"filter"`
	OK        bool      `json:"ok"`
	ErrorKey  string    `json:"error_key,omitempty"`
	At        time.Time `json:"at"`
}

// Dispatcher routes one post to every winning channel. Deliveries fan
// out over a bounded worker pool with a hard per-call timeout; a failing
// or hanging sink never blocks the other channels of the same dispatch.
type Dispatcher struct {
	log      *logger.Logger
	cfg      config.DispatchConfig
	baseURL  string
	store    *store.Store
	registry *provider.Registry
	reader   forum.Reader
	matcher  *Matcher

	mu      sync.RWMutex
	subs    map[int]chan DeliveryEvent
	nextSub int
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	log *logger.Logger,
	cfg *config.Config,
	s *store.Store,
	registry *provider.Registry,
	reader forum.Reader,
) *Dispatcher {
	return &Dispatcher{
		log:      log,
		cfg:      cfg.Dispatch,
		baseURL:  cfg.Forum.BaseURL,
		store:    s,
		registry: registry,
		reader:   reader,
		matcher:  NewMatcher(s, cfg.Forum.TaggingEnabled),
		subs:     make(map[int]chan DeliveryEvent),
	}
}

// Subscribe returns a channel of delivery events and a cancel func.
// Events are dropped, not queued, when the subscriber falls behind.
func (d *Dispatcher) Subscribe() (<-chan DeliveryEvent, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	ch := make(chan DeliveryEvent, 64)
	d.subs[id] = ch
	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if sub, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(sub)
		}
	}
}

func (d *Dispatcher) publish(ev DeliveryEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

// Dispatch routes one post. Missing or invisible posts, missing topics
// and empty winner sets are expected steady state and return nil; only
// infrastructure failure surfaces as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, postID int64) error {
	post, err := d.reader.Post(ctx, postID)
	if errors.Is(err, forum.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !post.IsRegular() {
		return nil
	}

	visible, err := d.reader.CanSee(ctx, post)
	if err != nil {
		return err
	}
	if !visible {
		return nil
	}

	topic, err := d.reader.Topic(ctx, post.TopicID)
	if errors.Is(err, forum.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	tctx := &TopicContext{
		Archetype:  topic.Archetype,
		CategoryID: topic.CategoryID,
		Tags:       topic.Tags,
	}
	if topic.IsPrivateMessage() {
		tctx.GroupsWithAccess = topic.AllowedGroupIDs
		mentioned, err := forum.MentionedGroups(ctx, d.reader, post.Raw)
		if err != nil {
			// Mention scanning is best effort; access-based rules still
			// apply.
			d.log.Warn("Group mention scan failed",
				zap.Int64("post_id", post.ID),
				zap.Error(err))
		} else {
			tctx.GroupsMentioned = mentioned
		}
	}

	candidates, err := d.matcher.MatchCandidates(ctx, tctx)
	if err != nil {
		return err
	}
	winners := Resolve(candidates, post.IsFirstPost())
	if len(winners) == 0 {
		return nil
	}

	d.log.Debug("Dispatching post",
		zap.Int64("post_id", post.ID),
		zap.Int64("topic_id", topic.ID),
		zap.Int("winners", len(winners)))

	workers := d.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, rule := range winners {
		wg.Add(1)
		sem <- struct{}{}
		go func(rule model.Rule) {
			defer wg.Done()
			defer func() { <-sem }()
			d.deliver(ctx, post, topic, rule)
		}(rule)
	}
	wg.Wait()
	return nil
}

// deliver performs one delivery attempt and records the outcome on the
// channel and rule. It never returns an error; failure isolation between
// channels is the dispatcher's core guarantee.
func (d *Dispatcher) deliver(ctx context.Context, post *forum.Post, topic *forum.Topic, rule model.Rule) {
	ch, err := d.store.Channel(ctx, rule.ChannelID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.log.Error("Loading channel failed",
				zap.String("channel_id", rule.ChannelID),
				zap.Error(err))
		}
		return
	}

	sink, ok := d.registry.Get(ch.Provider)
	if !ok || !sink.IsEnabled() {
		return
	}

	n := &provider.Notification{
		Post:    post,
		Topic:   topic,
		Channel: ch,
		Rule:    &rule,
		PostURL: forum.PostURL(d.baseURL, topic, post),
	}

	timeout := time.Duration(d.cfg.ProviderTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ev := DeliveryEvent{
		PostID:    post.ID,
		TopicID:   topic.ID,
		Provider:  ch.Provider,
		ChannelID: ch.ID,
		RuleID:    rule.ID,
		Filter:    string(rule.Filter),
		At:        time.Now().UTC(),
	}

	if err := sink.TriggerNotification(cctx, n); err != nil {
		ev.ErrorKey = provider.ErrorKeyGeneric
		var perr *provider.Error
		if errors.As(err, &perr) && perr.ErrorKey != "" {
			ev.ErrorKey = perr.ErrorKey
		} else {
			d.log.Error("Provider delivery failed",
				zap.String("provider", ch.Provider),
				zap.String("channel_id", ch.ID),
				zap.Int64("post_id", post.ID),
				zap.Error(err))
		}
		d.recordError(ctx, ch.ID, rule.ID, ev.ErrorKey)
		d.publish(ev)
		return
	}

	ev.OK = true
	d.recordError(ctx, ch.ID, rule.ID, "")
	d.publish(ev)
}

// Test synchronously delivers one post to one channel, bypassing rules.
// The admin test action uses it for diagnostics; errors propagate to the
// caller instead of being recorded.
func (d *Dispatcher) Test(ctx context.Context, channelID string, postID int64) error {
	ch, err := d.store.Channel(ctx, channelID)
	if err != nil {
		return err
	}
	sink, ok := d.registry.Get(ch.Provider)
	if !ok {
		return &provider.Error{ErrorKey: provider.ErrorKeyGeneric, Detail: "unknown provider " + ch.Provider}
	}
	post, err := d.reader.Post(ctx, postID)
	if err != nil {
		return err
	}
	topic, err := d.reader.Topic(ctx, post.TopicID)
	if err != nil {
		return err
	}

	rule := &model.Rule{ChannelID: ch.ID, Type: model.RuleTypeNormal, Filter: model.FilterWatch}
	timeout := time.Duration(d.cfg.ProviderTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return sink.TriggerNotification(cctx, &provider.Notification{
		Post:    post,
		Topic:   topic,
		Channel: ch,
		Rule:    rule,
		PostURL: forum.PostURL(d.baseURL, topic, post),
	})
}

// recordError sets or clears the failure markers on the channel and its
// rule. Marker writes are best effort; a store hiccup here must not fail
// the dispatch.
func (d *Dispatcher) recordError(ctx context.Context, channelID, ruleID, errorKey string) {
	if err := d.store.SetChannelError(ctx, channelID, errorKey); err != nil && !errors.Is(err, store.ErrNotFound) {
		d.log.Warn("Recording channel error failed",
			zap.String("channel_id", channelID),
			zap.Error(err))
	}
	if err := d.store.SetRuleError(ctx, ruleID, errorKey); err != nil && !errors.Is(err, store.ErrNotFound) {
		d.log.Warn("Recording rule error failed",
			zap.String("rule_id", ruleID),
			zap.Error(err))
	}
}
