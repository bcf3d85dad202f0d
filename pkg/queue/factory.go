package queue

import (
	"fmt"
	"time"

	"chatrelay/pkg/logger"
)

// Backend is the queue backend type.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendRedis Backend = "redis"
)

// Config configures the queue.
type Config struct {
	Backend    Backend
	BufferSize int
	Delay      time.Duration
	Workers    int

	// Redis config
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// New creates a queue based on configuration.
func New(log *logger.Logger, cfg *Config, handler Handler) (Queue, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocalQueue(log, handler, cfg.Delay, cfg.Workers, cfg.BufferSize), nil

	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis address is required for redis queue")
		}

		return NewRedisQueue(log, &RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}, handler, cfg.Delay, cfg.Workers)

	default:
		return nil, fmt.Errorf("unknown queue backend: %s", cfg.Backend)
	}
}
