package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatrelay/pkg/logger"
)

// LocalQueue is an in-process queue using Go channels. Jobs survive only
// as long as the process does; the redis backend covers deployments that
// need enqueue durability across restarts.
type LocalQueue struct {
	log     *logger.Logger
	handler Handler
	delay   time.Duration
	workers int

	// mu guards jobs against an Enqueue racing the close in Stop.
	mu     sync.RWMutex
	closed bool
	jobs   chan Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLocalQueue creates a local queue.
func NewLocalQueue(log *logger.Logger, handler Handler, delay time.Duration, workers, bufferSize int) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &LocalQueue{
		log:     log,
		handler: handler,
		delay:   delay,
		workers: workers,
		jobs:    make(chan Job, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the worker goroutines.
func (q *LocalQueue) Start() error {
	q.log.Info("Starting dispatch queue", zap.Int("workers", q.workers))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return nil
}

// Stop stops the queue. Jobs still waiting on their delay are abandoned.
func (q *LocalQueue) Stop() error {
	q.log.Info("Stopping dispatch queue")

	q.cancel()
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()

	q.log.Info("Dispatch queue stopped")
	return nil
}

// Enqueue schedules a post for dispatch after the settle delay.
func (q *LocalQueue) Enqueue(postID int64) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("queue is shutting down")
	}

	job := Job{PostID: postID, Due: time.Now().Add(q.delay)}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue is full")
	}
}

func (q *LocalQueue) work() {
	defer q.wg.Done()

	for job := range q.jobs {
		if !q.waitUntil(job.Due) {
			return
		}
		if err := q.handler(q.ctx, job.PostID); err != nil {
			q.log.Error("Dispatch job failed",
				zap.Int64("post_id", job.PostID),
				zap.Error(err))
		}
	}
}

// waitUntil sleeps until the due time, returning false on shutdown.
func (q *LocalQueue) waitUntil(due time.Time) bool {
	wait := time.Until(due)
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-q.ctx.Done():
		return false
	}
}
