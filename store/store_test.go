package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/mcpagent/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCheckpoint(step int, next string) *store.Checkpoint {
	state, _ := json.Marshal(map[string]any{"messages": []string{gofakeit.Sentence(5)}})
	return &store.Checkpoint{
		RunID:     gofakeit.UUID(),
		Step:      step,
		Next:      next,
		State:     state,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testCheckpointer(t *testing.T, st store.Checkpointer) {
	ctx := chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext("tenant1", "", nil))
	otherTenant := chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext("tenant2", "", nil))

	_, err := st.Get(ctx, "thread1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = st.History(ctx, "thread1")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	ids, err := st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	cp1 := newCheckpoint(1, "tool_node")
	cp2 := newCheckpoint(2, "chat_node")
	require.NoError(t, st.Put(ctx, "thread1", cp1))
	require.NoError(t, st.Put(ctx, "thread1", cp2))
	require.NoError(t, st.Put(ctx, "thread2", newCheckpoint(1, "__end__")))

	latest, err := st.Get(ctx, "thread1")
	require.NoError(t, err)
	assert.Equal(t, "thread1", latest.ThreadID)
	assert.Equal(t, 2, latest.Step)
	assert.Equal(t, "chat_node", latest.Next)
	assert.JSONEq(t, string(cp2.State), string(latest.State))
	assert.True(t, cp2.CreatedAt.Equal(latest.CreatedAt))

	history, err := st.History(ctx, "thread1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 1, history[0].Step)
	assert.Equal(t, 2, history[1].Step)

	// returned checkpoints are copies
	latest.Step = 100
	latest, err = st.Get(ctx, "thread1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Step)

	ids, err = st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"thread1", "thread2"}, ids)

	// tenants are isolated
	ids, err = st.List(otherTenant)
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, err = st.Get(otherTenant, "thread1")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	// history is bounded
	for i := range store.DefaultMaxHistory + 5 {
		require.NoError(t, st.Put(ctx, "long", newCheckpoint(i+1, "chat_node")))
	}
	history, err = st.History(ctx, "long")
	require.NoError(t, err)
	require.Len(t, history, store.DefaultMaxHistory)
	assert.Equal(t, 6, history[0].Step)
	assert.Equal(t, store.DefaultMaxHistory+5, history[len(history)-1].Step)

	require.NoError(t, st.Delete(ctx, "long"))
	_, err = st.Get(ctx, "long")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	old := newCheckpoint(3, "__end__")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, st.Put(ctx, "stale", old))

	deleted, err := st.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), deleted)

	ids, err = st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"thread1", "thread2"}, ids)

	for _, id := range ids {
		require.NoError(t, st.Delete(ctx, id))
	}
	ids, err = st.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func Test_MemoryStore(t *testing.T) {
	testCheckpointer(t, store.NewMemoryStore())
}

func Test_MemoryStore_DefaultTenant(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "t1", newCheckpoint(1, "chat_node")))

	// the same tenant is used without chat context
	ctx2 := chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(chatmodel.DefaultTenantID, "", nil))
	cp, err := st.Get(ctx2, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.Step)
	assert.Equal(t, "t1", cp.ThreadID)
}
