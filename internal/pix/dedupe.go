package pix

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeTTL = 7 * 24 * time.Hour

// Deduper is a short-circuit cache of already-applied payment IDs. It is
// an optimization only: the conditional updates underneath stay correct
// without it.
type Deduper interface {
	Seen(ctx context.Context, key string) bool
	Mark(ctx context.Context, key string)
}

type RedisDeduper struct {
	client *redis.Client
}

func NewRedisDeduper(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) bool {
	return d.client.Exists(ctx, "pix:processed:"+key).Val() > 0
}

func (d *RedisDeduper) Mark(ctx context.Context, key string) {
	d.client.Set(ctx, "pix:processed:"+key, "1", dedupeTTL)
}

// MemoryDeduper is the in-process fallback used in tests.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) Seen(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[key]
	return ok
}

func (d *MemoryDeduper) Mark(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[key] = struct{}{}
}
