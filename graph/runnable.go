package graph

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/store"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "graph")

// DefaultRecursionLimit is the default number of steps per run
const DefaultRecursionLimit = 25

// Option configures the compiled graph
type Option func(*config)

type config struct {
	recursionLimit int
	interrupts     map[string]bool
	checkpointer   store.Checkpointer
}

// WithRecursionLimit sets the max number of steps per run
func WithRecursionLimit(limit int) Option {
	return func(c *config) {
		if limit > 0 {
			c.recursionLimit = limit
		}
	}
}

// WithInterruptBefore stops the run before the named nodes
func WithInterruptBefore(nodes ...string) Option {
	return func(c *config) {
		for _, n := range nodes {
			c.interrupts[n] = true
		}
	}
}

// WithCheckpointer saves a checkpoint after every step
func WithCheckpointer(cp store.Checkpointer) Option {
	return func(c *config) {
		c.checkpointer = cp
	}
}

// Runnable is a compiled graph
type Runnable[S any] struct {
	config
	graph *StateGraph[S]
}

// Invoke runs the graph from the entry point.
// When the run stops before an interrupt node, the current state
// is returned with ErrInterrupted.
func (r *Runnable[S]) Invoke(ctx context.Context, state S, threadID string) (S, error) {
	return r.run(ctx, state, threadID, r.graph.entry, 0, false)
}

// Resume continues an interrupted run of the thread from its last checkpoint
func (r *Runnable[S]) Resume(ctx context.Context, threadID string) (S, error) {
	state, cp, err := r.GetState(ctx, threadID)
	if err != nil {
		return state, err
	}
	if cp.Next == END {
		return state, nil
	}
	if r.graph.nodes[cp.Next] == nil {
		return state, errors.WithMessagef(ErrNodeNotFound, "checkpoint next %q", cp.Next)
	}
	return r.run(ctx, state, threadID, cp.Next, cp.Step, true)
}

// GetState returns the state of the last checkpoint of the thread
func (r *Runnable[S]) GetState(ctx context.Context, threadID string) (S, *store.Checkpoint, error) {
	var state S
	if r.checkpointer == nil {
		return state, nil, errors.New("checkpointer is not configured")
	}
	cp, err := r.checkpointer.Get(ctx, threadID)
	if err != nil {
		return state, nil, err
	}
	if err = json.Unmarshal(cp.State, &state); err != nil {
		return state, nil, errors.Wrapf(err, "unable to decode state of thread %q", threadID)
	}
	return state, cp, nil
}

func (r *Runnable[S]) run(ctx context.Context, state S, threadID, current string, step int, resumed bool) (S, error) {
	runID := ""
	if cc := chatmodel.GetChatContext(ctx); cc != nil {
		runID = cc.RunID()
	}

	for current != END {
		if err := ctx.Err(); err != nil {
			return state, errors.WithStack(err)
		}
		if r.interrupts[current] && !resumed {
			logger.ContextKV(ctx, xlog.DEBUG, "status", "interrupted", "thread", threadID, "next", current)
			if err := r.save(ctx, threadID, runID, step, current, state); err != nil {
				return state, err
			}
			return state, errors.WithMessagef(ErrInterrupted, "before %q", current)
		}
		resumed = false

		if step >= r.recursionLimit {
			return state, errors.WithMessagef(ErrRecursionLimit, "limit %d, node %q", r.recursionLimit, current)
		}
		step++

		fn := r.graph.nodes[current]
		update, err := fn(ctx, state)
		if err != nil {
			return state, errors.WithMessagef(err, "node %q", current)
		}
		state = r.graph.reducer(state, update)

		next, err := r.next(ctx, current, state)
		if err != nil {
			return state, err
		}
		logger.ContextKV(ctx, xlog.DEBUG, "thread", threadID, "step", step, "node", current, "next", next)

		if err = r.save(ctx, threadID, runID, step, next, state); err != nil {
			return state, err
		}
		current = next
	}
	return state, nil
}

func (r *Runnable[S]) next(ctx context.Context, from string, state S) (string, error) {
	if to, ok := r.graph.edges[from]; ok {
		return to, nil
	}
	ce := r.graph.conditional[from]
	key, err := ce.router(ctx, state)
	if err != nil {
		return "", errors.WithMessagef(err, "route from %q", from)
	}
	to := key
	if len(ce.pathMap) > 0 {
		var ok bool
		to, ok = ce.pathMap[key]
		if !ok {
			return "", errors.WithMessagef(ErrNodeNotFound, "route %q from %q", key, from)
		}
	}
	if to != END && r.graph.nodes[to] == nil {
		return "", errors.WithMessagef(ErrNodeNotFound, "route %q from %q", to, from)
	}
	return to, nil
}

func (r *Runnable[S]) save(ctx context.Context, threadID, runID string, step int, next string, state S) error {
	if r.checkpointer == nil || threadID == "" {
		return nil
	}
	js, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "unable to encode state")
	}
	err = r.checkpointer.Put(ctx, threadID, &store.Checkpoint{
		ThreadID:  threadID,
		RunID:     runID,
		Step:      step,
		Next:      next,
		State:     js,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.WithMessagef(err, "unable to save checkpoint for thread %q", threadID)
	}
	return nil
}
