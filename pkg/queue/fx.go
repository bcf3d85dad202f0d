package queue

import (
	"context"
	"time"

	"go.uber.org/fx"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/relay"
)

// Module is the fx module for the dispatch queue.
var Module = fx.Module("queue",
	fx.Provide(NewQueue),
)

// NewQueue creates the dispatch queue for fx, wired to the dispatcher.
func NewQueue(
	lc fx.Lifecycle,
	log *logger.Logger,
	cfg *config.Config,
	dispatcher *relay.Dispatcher,
) (Queue, error) {
	queueConfig := &Config{
		Backend:    Backend(cfg.Queue.Backend),
		BufferSize: cfg.Queue.BufferSize,
		Delay:      time.Duration(cfg.Dispatch.DelaySeconds) * time.Second,
		Workers:    cfg.Dispatch.Workers,

		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
		RedisPrefix:   cfg.Queue.RedisPrefix,
	}

	q, err := New(log, queueConfig, dispatcher.Dispatch)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return q.Start()
		},
		OnStop: func(ctx context.Context) error {
			return q.Stop()
		},
	})

	return q, nil
}
