package dice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultHistoryCap is the number of results kept per roller.
const DefaultHistoryCap = 50

// History records results per user, most recent first, keeping at most a
// fixed number.
type History interface {
	Push(ctx context.Context, userID string, r Result) error
	List(ctx context.Context, userID string) ([]Result, error)
	Clear(ctx context.Context, userID string) error
}

// MemoryHistory keeps histories in process memory.
type MemoryHistory struct {
	mu    sync.Mutex
	limit int
	lists map[string][]Result
}

// NewMemoryHistory creates an in-memory history capped at limit entries.
func NewMemoryHistory(limit int) *MemoryHistory {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	return &MemoryHistory{limit: limit, lists: make(map[string][]Result)}
}

func (h *MemoryHistory) Push(_ context.Context, userID string, r Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := append([]Result{r}, h.lists[userID]...)
	if len(list) > h.limit {
		list = list[:h.limit]
	}
	h.lists[userID] = list
	return nil
}

func (h *MemoryHistory) List(_ context.Context, userID string) ([]Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Result, len(h.lists[userID]))
	copy(out, h.lists[userID])
	return out, nil
}

func (h *MemoryHistory) Clear(_ context.Context, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lists, userID)
	return nil
}

// RedisHistory keeps each user's history in a Redis list, trimmed on every
// push.
type RedisHistory struct {
	client *redis.Client
	limit  int
}

// NewRedisHistory creates a Redis-backed history capped at limit entries.
func NewRedisHistory(client *redis.Client, limit int) *RedisHistory {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	return &RedisHistory{client: client, limit: limit}
}

func historyKey(userID string) string {
	return "dice:history:" + userID
}

func (h *RedisHistory) Push(ctx context.Context, userID string, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding dice result: %w", err)
	}
	key := historyKey(userID)
	pipe := h.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(h.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording dice result: %w", err)
	}
	return nil
}

func (h *RedisHistory) List(ctx context.Context, userID string) ([]Result, error) {
	items, err := h.client.LRange(ctx, historyKey(userID), 0, int64(h.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading dice history: %w", err)
	}
	out := make([]Result, 0, len(items))
	for _, item := range items {
		var r Result
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (h *RedisHistory) Clear(ctx context.Context, userID string) error {
	if err := h.client.Del(ctx, historyKey(userID)).Err(); err != nil {
		return fmt.Errorf("clearing dice history: %w", err)
	}
	return nil
}

var (
	_ History = (*MemoryHistory)(nil)
	_ History = (*RedisHistory)(nil)
)
