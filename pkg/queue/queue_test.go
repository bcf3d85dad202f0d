package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatrelay/pkg/logger"
)

func TestLocalQueueDelivers(t *testing.T) {
	received := make(chan int64, 4)
	q := NewLocalQueue(logger.NewNop(), func(ctx context.Context, postID int64) error {
		received <- postID
		return nil
	}, 0, 2, 10)

	if err := q.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer q.Stop()

	if err := q.Enqueue(42); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	select {
	case id := <-received:
		if id != 42 {
			t.Errorf("expected post 42, got %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for job")
	}
}

func TestLocalQueueHonorsDelay(t *testing.T) {
	var mu sync.Mutex
	var handledAt time.Time
	q := NewLocalQueue(logger.NewNop(), func(ctx context.Context, postID int64) error {
		mu.Lock()
		handledAt = time.Now()
		mu.Unlock()
		return nil
	}, 150*time.Millisecond, 1, 10)

	q.Start()
	defer q.Stop()

	start := time.Now()
	q.Enqueue(1)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := !handledAt.IsZero()
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timeout waiting for job")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	elapsed := handledAt.Sub(start)
	mu.Unlock()
	if elapsed < 150*time.Millisecond {
		t.Errorf("job ran after %v, before the settle delay", elapsed)
	}
}

func TestLocalQueueHandlerErrorDoesNotStopWorkers(t *testing.T) {
	received := make(chan int64, 4)
	q := NewLocalQueue(logger.NewNop(), func(ctx context.Context, postID int64) error {
		if postID == 1 {
			return context.DeadlineExceeded
		}
		received <- postID
		return nil
	}, 0, 1, 10)

	q.Start()
	defer q.Stop()

	q.Enqueue(1)
	q.Enqueue(2)

	select {
	case id := <-received:
		if id != 2 {
			t.Errorf("expected post 2, got %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after a handler error")
	}
}

func TestLocalQueueEnqueueAfterStop(t *testing.T) {
	q := NewLocalQueue(logger.NewNop(), func(ctx context.Context, postID int64) error {
		return nil
	}, 0, 1, 10)

	q.Start()
	if err := q.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if err := q.Enqueue(1); err == nil {
		t.Error("expected error enqueueing after stop")
	}
	// A second Stop must not close the channel twice.
	if err := q.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestLocalQueueEnqueueDuringStop(t *testing.T) {
	q := NewLocalQueue(logger.NewNop(), func(ctx context.Context, postID int64) error {
		return nil
	}, 0, 2, 4)
	q.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				// Errors are fine here; a send on the closed channel
				// would panic and fail the test.
				q.Enqueue(id)
			}
		}(int64(i))
	}

	q.Stop()
	wg.Wait()
}

func TestFactoryRejectsUnknownBackend(t *testing.T) {
	if _, err := New(logger.NewNop(), &Config{Backend: "kafka"}, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := New(logger.NewNop(), &Config{Backend: BackendRedis}, nil); err == nil {
		t.Error("expected error for redis backend without address")
	}
}

func TestParseMember(t *testing.T) {
	id, err := parseMember("42:1724000000000")
	if err != nil || id != 42 {
		t.Errorf("expected 42, got %d %v", id, err)
	}
	if _, err := parseMember("bogus"); err == nil {
		t.Error("expected error for malformed member")
	}
}
