// Package store persists channels and rules in an embedded badger
// database. Records are JSON-encoded under string key prefixes and read
// back with prefix scans; writes are single-record transactions.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatrelay/pkg/logger"
	"chatrelay/pkg/model"
)

// Key prefixes. Channels and rules are flat collections; thread roots are
// keyed by channel and topic.
const (
	channelPrefix = "channel/"
	rulePrefix    = "rule/"
	threadPrefix  = "thread/"
)

// SchemaSource exposes provider parameter schemas for channel validation.
// The provider registry implements it.
type SchemaSource interface {
	ChannelSchema(name string) (params []model.ChannelParam, supportsThreads bool, ok bool)
}

// RefValidator checks category and tag references at rule write time.
// The forum reader implements it.
type RefValidator interface {
	CategoryExists(ctx context.Context, id int64) (bool, error)
	TagExists(ctx context.Context, name string) (bool, error)
}

// Config configures the store.
type Config struct {
	// Dir is the badger database directory. Ignored when InMemory is set.
	Dir string

	// InMemory runs without disk persistence. For tests.
	InMemory bool
}

// Store is the rule and channel store.
type Store struct {
	log    *logger.Logger
	db     *badger.DB
	schema SchemaSource
	refs   RefValidator
}

// Open opens the store.
func Open(log *logger.Logger, cfg Config, schema SchemaSource, refs RefValidator) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &Store{
		log:    log,
		db:     db,
		schema: schema,
		refs:   refs,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs one round of badger value-log garbage collection.
func (s *Store) RunGC() {
	if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		s.log.Warn("Value log GC failed", zap.Error(err))
	}
}

// --- Channels ---

// Channels returns all channels, optionally filtered by provider, ordered
// by creation time.
func (s *Store) Channels(ctx context.Context, providerName string) ([]model.Channel, error) {
	var channels []model.Channel
	err := s.scan(channelPrefix, func(val []byte) error {
		var ch model.Channel
		if err := json.Unmarshal(val, &ch); err != nil {
			return err
		}
		if providerName == "" || ch.Provider == providerName {
			channels = append(channels, ch)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning channels: %w", err)
	}
	sortByCreation(channels, func(c model.Channel) (time.Time, string) { return c.CreatedAt, c.ID })
	return channels, nil
}

// Channel returns one channel by id.
func (s *Store) Channel(ctx context.Context, id string) (*model.Channel, error) {
	var ch model.Channel
	if err := s.get(channelKey(id), &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// CreateChannel validates and persists a new channel.
func (s *Store) CreateChannel(ctx context.Context, providerName string, data map[string]string) (*model.Channel, error) {
	ch := &model.Channel{
		ID:        uuid.NewString(),
		Provider:  providerName,
		Data:      data,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.validateChannel(ctx, ch); err != nil {
		return nil, err
	}
	if err := s.put(channelKey(ch.ID), ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// UpdateChannel validates and replaces a channel's data.
func (s *Store) UpdateChannel(ctx context.Context, id string, data map[string]string) (*model.Channel, error) {
	ch, err := s.Channel(ctx, id)
	if err != nil {
		return nil, err
	}
	ch.Data = data
	ch.UpdatedAt = time.Now().UTC()
	if err := s.validateChannel(ctx, ch); err != nil {
		return nil, err
	}
	if err := s.put(channelKey(id), ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// SetChannelError records or clears the channel's last delivery failure.
// It is a single-record write; concurrent dispatches race benignly with
// last-write-wins, which is fine for a coarse health marker.
func (s *Store) SetChannelError(ctx context.Context, id, errorKey string) error {
	ch, err := s.Channel(ctx, id)
	if err != nil {
		return err
	}
	if ch.ErrorKey == errorKey {
		return nil
	}
	ch.ErrorKey = errorKey
	ch.UpdatedAt = time.Now().UTC()
	return s.put(channelKey(id), ch)
}

// DeleteChannel removes a channel and cascades to its rules and thread
// roots.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	rules, err := s.Rules(ctx, RuleQuery{ChannelID: id})
	if err != nil {
		return err
	}
	for _, r := range rules {
		if err := s.delete(ruleKey(r.ID)); err != nil {
			return err
		}
	}
	if err := s.deletePrefix(threadPrefix + id + "/"); err != nil {
		return err
	}
	return s.delete(channelKey(id))
}

// --- Rules ---

// RuleQuery filters Rules. Zero fields match everything.
type RuleQuery struct {
	// ChannelID restricts to one channel.
	ChannelID string

	// Type restricts to one rule type.
	Type model.RuleType

	// CategoryID restricts normal rules to an exact category id;
	// WildcardCategory selects rules with no category instead.
	CategoryID       *int64
	WildcardCategory bool

	// GroupIDs restricts group rules to any of these groups.
	GroupIDs []int64
}

func (q RuleQuery) matches(r *model.Rule) bool {
	if q.ChannelID != "" && r.ChannelID != q.ChannelID {
		return false
	}
	if q.Type != "" && r.Type != q.Type {
		return false
	}
	if q.WildcardCategory {
		if r.CategoryID != nil {
			return false
		}
	} else if q.CategoryID != nil {
		if r.CategoryID == nil || *r.CategoryID != *q.CategoryID {
			return false
		}
	}
	if len(q.GroupIDs) > 0 {
		if r.GroupID == nil {
			return false
		}
		found := false
		for _, id := range q.GroupIDs {
			if *r.GroupID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Rules returns rules matching the query, ordered by creation time then
// id. The deterministic order pins which rule smart-create treats as
// canonical.
func (s *Store) Rules(ctx context.Context, q RuleQuery) ([]model.Rule, error) {
	var rules []model.Rule
	err := s.scan(rulePrefix, func(val []byte) error {
		var r model.Rule
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		if q.matches(&r) {
			rules = append(rules, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning rules: %w", err)
	}
	sortByCreation(rules, func(r model.Rule) (time.Time, string) { return r.CreatedAt, r.ID })
	return rules, nil
}

// Rule returns one rule by id.
func (s *Store) Rule(ctx context.Context, id string) (*model.Rule, error) {
	var r model.Rule
	if err := s.get(ruleKey(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRule validates and persists a new rule.
func (s *Store) CreateRule(ctx context.Context, r model.Rule) (*model.Rule, error) {
	if r.Type == "" {
		r.Type = model.RuleTypeNormal
	}
	r.ID = uuid.NewString()
	r.Tags = model.NormalizeTags(r.Tags)
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	if err := s.validateRule(ctx, &r); err != nil {
		return nil, err
	}
	if err := s.put(ruleKey(r.ID), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRule validates and replaces a rule's scope and filter.
func (s *Store) UpdateRule(ctx context.Context, r model.Rule) (*model.Rule, error) {
	existing, err := s.Rule(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.ChannelID = existing.ChannelID
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.Tags = model.NormalizeTags(r.Tags)
	if r.Type == "" {
		r.Type = existing.Type
	}
	if err := s.validateRule(ctx, &r); err != nil {
		return nil, err
	}
	if err := s.put(ruleKey(r.ID), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetRuleError records or clears a rule's last delivery failure.
func (s *Store) SetRuleError(ctx context.Context, id, errorKey string) error {
	r, err := s.Rule(ctx, id)
	if err != nil {
		return err
	}
	if r.ErrorKey == errorKey {
		return nil
	}
	r.ErrorKey = errorKey
	r.UpdatedAt = time.Now().UTC()
	return s.put(ruleKey(id), r)
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	return s.delete(ruleKey(id))
}

// --- Slack thread roots ---

// ThreadTimestamp returns the stored thread root for a channel/topic pair,
// or empty when none exists.
func (s *Store) ThreadTimestamp(ctx context.Context, channelID string, topicID int64) (string, error) {
	var ts string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(threadKey(channelID, topicID)))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ts = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("reading thread root: %w", err)
	}
	return ts, nil
}

// SetThreadTimestamp stores the thread root for a channel/topic pair.
func (s *Store) SetThreadTimestamp(ctx context.Context, channelID string, topicID int64, ts string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(threadKey(channelID, topicID)), []byte(ts))
	})
	if err != nil {
		return fmt.Errorf("writing thread root: %w", err)
	}
	return nil
}

// --- key helpers and low-level access ---

func channelKey(id string) string { return channelPrefix + id }
func ruleKey(id string) string    { return rulePrefix + id }

func threadKey(channelID string, topicID int64) string {
	return fmt.Sprintf("%s%s/%d", threadPrefix, channelID, topicID)
}

// ErrNotFound is returned when a channel or rule does not exist.
var ErrNotFound = badger.ErrKeyNotFound

func (s *Store) get(key string, out interface{}) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}

func (s *Store) put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *Store) delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *Store) deletePrefix(prefix string) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", prefix, err)
	}
	for _, key := range keys {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) scan(prefix string, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func sortByCreation[T any](items []T, key func(T) (time.Time, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return strings.Compare(idi, idj) < 0
	})
}
