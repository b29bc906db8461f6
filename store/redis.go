package store

import (
	"context"
	"encoding/json"
	"path"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/chatmodel"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis store implements the Checkpointer interface using Redis as the backend.
// Each thread keeps a bounded list of checkpoints, the last item is the latest.
// The keys namespace is organized as follows:
// - `/<prefix>/checkpoints/<tenantID>/history/<threadID>` list of checkpoints
// - `/<prefix>/checkpoints/<tenantID>/threads` set of thread IDs of the tenant

type redisStore struct {
	client     *redis.Client
	prefix     string
	maxHistory int
}

// NewRedisStore returns Checkpointer backed by Redis
func NewRedisStore(client *redis.Client, prefix string) Checkpointer {
	return &redisStore{
		client:     client,
		prefix:     prefix,
		maxHistory: DefaultMaxHistory,
	}
}

// NewRedisStoreFromURL returns Checkpointer for redis://... URL
func NewRedisStoreFromURL(ctx context.Context, redisURL, prefix string) (Checkpointer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	return NewRedisStore(client, prefix), nil
}

func (m *redisStore) historyKey(tenantID, threadID string) string {
	return path.Join(m.prefix, "checkpoints", tenantID, "history", threadID)
}

func (m *redisStore) threadsKey(tenantID string) string {
	return path.Join(m.prefix, "checkpoints", tenantID, "threads")
}

func (m *redisStore) Put(ctx context.Context, threadID string, cp *Checkpoint) error {
	tenantID := chatmodel.GetTenantID(ctx)

	c := *cp
	c.ThreadID = threadID
	data, err := json.Marshal(&c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal checkpoint")
	}

	key := m.historyKey(tenantID, threadID)
	pipe := m.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-m.maxHistory), -1)
	pipe.SAdd(ctx, m.threadsKey(tenantID), threadID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to store checkpoint in Redis")
	}
	return nil
}

func (m *redisStore) Get(ctx context.Context, threadID string) (*Checkpoint, error) {
	key := m.historyKey(chatmodel.GetTenantID(ctx), threadID)
	data, err := m.client.LIndex(ctx, key, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get checkpoint from Redis")
	}

	cp := new(Checkpoint)
	if err := json.Unmarshal([]byte(data), cp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal checkpoint")
	}
	return cp, nil
}

func (m *redisStore) History(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	key := m.historyKey(chatmodel.GetTenantID(ctx), threadID)
	data, err := m.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get checkpoints from Redis")
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}

	res := make([]*Checkpoint, 0, len(data))
	for _, item := range data {
		cp := new(Checkpoint)
		if err := json.Unmarshal([]byte(item), cp); err != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"reason", "unmarshal_checkpoint",
				"thread", threadID,
				"err", err.Error())
			continue
		}
		res = append(res, cp)
	}
	return res, nil
}

func (m *redisStore) List(ctx context.Context) ([]string, error) {
	ids, err := m.client.SMembers(ctx, m.threadsKey(chatmodel.GetTenantID(ctx))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to list threads from Redis")
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *redisStore) Delete(ctx context.Context, threadID string) error {
	tenantID := chatmodel.GetTenantID(ctx)

	pipe := m.client.Pipeline()
	pipe.Del(ctx, m.historyKey(tenantID, threadID))
	pipe.SRem(ctx, m.threadsKey(tenantID), threadID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete thread from Redis")
	}
	return nil
}

func (m *redisStore) Cleanup(ctx context.Context, olderThan time.Duration) (uint32, error) {
	ids, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	deleted := uint32(0)
	cutoff := time.Now().Add(-olderThan)
	for _, threadID := range ids {
		cp, err := m.Get(ctx, threadID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return deleted, err
		}
		if cp == nil || cp.CreatedAt.Before(cutoff) {
			if err := m.Delete(ctx, threadID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}
