// Package queue defers post dispatch off the intake path. A post id is
// enqueued when the forum reports a new post and handed to the dispatch
// handler after a settle delay, so rapid edits land before anything is
// relayed.
package queue

import (
	"context"
	"time"
)

// Handler processes one due post id.
type Handler func(ctx context.Context, postID int64) error

// Queue schedules post ids for deferred dispatch. Jobs are at most once:
// a handler failure is logged by the backend, never retried.
type Queue interface {
	// Start starts the workers.
	Start() error

	// Stop stops the workers. Jobs still waiting on their settle delay
	// are abandoned (local) or stay scheduled for the next start (redis).
	Stop() error

	// Enqueue schedules a post for dispatch after the settle delay.
	Enqueue(postID int64) error
}

// Job is one scheduled dispatch.
type Job struct {
	PostID int64     `json:"post_id"`
	Due    time.Time `json:"due"`
}
