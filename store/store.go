package store

//go:generate mockgen -source=store.go -destination=../mocks/mockstore/store_mock.gen.go -package mockstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "store")

// DefaultMaxHistory is the number of checkpoints kept per thread
const DefaultMaxHistory = 50

// ErrNotFound is returned when a thread has no checkpoints
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is a snapshot of a graph run after a step
type Checkpoint struct {
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id,omitempty"`
	// Step is the number of steps executed in the run
	Step int `json:"step"`
	// Next is the node to execute when the run is resumed
	Next string `json:"next"`
	// State is the JSON encoded graph state
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// Checkpointer persists checkpoints per thread.
// The tenant is taken from the chat context of ctx.
type Checkpointer interface {
	// Put appends the checkpoint to the thread history
	Put(ctx context.Context, threadID string, cp *Checkpoint) error
	// Get returns the latest checkpoint of the thread
	Get(ctx context.Context, threadID string) (*Checkpoint, error)
	// History returns checkpoints of the thread, oldest first
	History(ctx context.Context, threadID string) ([]*Checkpoint, error)
	// List returns IDs of the threads with checkpoints
	List(ctx context.Context) ([]string, error)
	// Delete removes all checkpoints of the thread
	Delete(ctx context.Context, threadID string) error
	// Cleanup removes threads not updated since olderThan, and returns the number removed
	Cleanup(ctx context.Context, olderThan time.Duration) (uint32, error)
}
