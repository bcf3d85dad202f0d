package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatrelay/pkg/logger"
)

// RedisQueue schedules jobs in a Redis sorted set scored by due time.
// Scheduled jobs survive restarts, and multiple relay processes can
// share one queue: ZREM is the claim, so each job runs on exactly one
// worker.
type RedisQueue struct {
	log     *logger.Logger
	client  *redis.Client
	key     string
	handler Handler
	delay   time.Duration
	workers int

	due chan int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisQueueConfig configures the Redis queue.
type RedisQueueConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

const pollInterval = time.Second

// NewRedisQueue creates a Redis-backed queue.
func NewRedisQueue(log *logger.Logger, cfg *RedisQueueConfig, handler Handler, delay time.Duration, workers int) (*RedisQueue, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "chatrelay:"
	}
	if workers <= 0 {
		workers = 1
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &RedisQueue{
		log:     log,
		client:  client,
		key:     cfg.Prefix + "dispatch",
		handler: handler,
		delay:   delay,
		workers: workers,
		due:     make(chan int64, 100),
		ctx:     ctx,
		cancel:  cancel,
	}

	log.Info("Redis queue initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("key", q.key))

	return q, nil
}

// Start starts the poller and workers.
func (q *RedisQueue) Start() error {
	q.log.Info("Starting Redis dispatch queue", zap.Int("workers", q.workers))

	q.wg.Add(1)
	go q.poll()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return nil
}

// Stop stops the queue. Scheduled jobs stay in Redis for the next start.
func (q *RedisQueue) Stop() error {
	q.log.Info("Stopping Redis dispatch queue")

	q.cancel()
	q.wg.Wait()
	q.client.Close()

	q.log.Info("Redis dispatch queue stopped")
	return nil
}

// Enqueue schedules a post for dispatch after the settle delay.
func (q *RedisQueue) Enqueue(postID int64) error {
	due := time.Now().Add(q.delay)
	// Member carries a nanosecond suffix so re-enqueueing the same post
	// schedules a fresh job instead of rescoring the old one.
	member := fmt.Sprintf("%d:%d", postID, time.Now().UnixNano())
	err := q.client.ZAdd(q.ctx, q.key, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("scheduling post %d: %w", postID, err)
	}
	return nil
}

func (q *RedisQueue) poll() {
	defer q.wg.Done()
	defer close(q.due)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.claimDue()
		}
	}
}

func (q *RedisQueue) claimDue() {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(q.ctx, q.key, &redis.ZRangeBy{
		Min: "0",
		Max: now,
	}).Result()
	if err != nil {
		if q.ctx.Err() == nil {
			q.log.Warn("Polling dispatch queue failed", zap.Error(err))
		}
		return
	}

	for _, member := range members {
		removed, err := q.client.ZRem(q.ctx, q.key, member).Result()
		if err != nil {
			q.log.Warn("Claiming dispatch job failed",
				zap.String("member", member),
				zap.Error(err))
			continue
		}
		if removed == 0 {
			// Another process claimed it first.
			continue
		}

		postID, err := parseMember(member)
		if err != nil {
			q.log.Warn("Malformed dispatch job dropped",
				zap.String("member", member),
				zap.Error(err))
			continue
		}

		select {
		case q.due <- postID:
		case <-q.ctx.Done():
			return
		}
	}
}

func (q *RedisQueue) work() {
	defer q.wg.Done()

	for postID := range q.due {
		if err := q.handler(q.ctx, postID); err != nil {
			q.log.Error("Dispatch job failed",
				zap.Int64("post_id", postID),
				zap.Error(err))
		}
	}
}

func parseMember(member string) (int64, error) {
	id, _, ok := strings.Cut(member, ":")
	if !ok {
		return 0, fmt.Errorf("missing separator")
	}
	return strconv.ParseInt(id, 10, 64)
}
