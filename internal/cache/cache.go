// Package cache holds recently read document snapshots in memory.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

const (
	defaultShardCount      = 16
	defaultTTL             = 15 * time.Minute
	defaultCleanupInterval = 1 * time.Minute
)

type entry struct {
	doc       domain.Document
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

type shard struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*entry
}

// SnapshotCache is a sharded TTL cache of document snapshots. Documents are
// cloned on the way in and out, so a cached value is never aliased by a caller.
type SnapshotCache struct {
	shards          []*shard
	ttl             time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	hits   atomic.Int64
	misses atomic.Int64

	cleanupMu      sync.Mutex
	cleanupRunning bool
	cleanupStop    chan struct{}
	cleanupWg      sync.WaitGroup
}

// Option configures the cache
type Option func(*SnapshotCache)

// WithCleanupInterval sets how often the cleanup worker runs
func WithCleanupInterval(d time.Duration) Option {
	return func(c *SnapshotCache) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// NewSnapshotCache creates a cache with shardCount shards and the given TTL
func NewSnapshotCache(shardCount int, ttl time.Duration, opts ...Option) *SnapshotCache {
	if shardCount < 1 {
		shardCount = defaultShardCount
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{items: make(map[uuid.UUID]*entry)}
	}

	c := &SnapshotCache{
		shards:          shards,
		ttl:             ttl,
		cleanupInterval: defaultCleanupInterval,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getShard picks a shard by FNV-1a over the id bytes
func (c *SnapshotCache) getShard(id uuid.UUID) *shard {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for _, b := range id {
		h ^= uint32(b)
		h *= prime32
	}
	return c.shards[h%uint32(len(c.shards))]
}

// Get returns a copy of the cached document
func (c *SnapshotCache) Get(ctx context.Context, id uuid.UUID) (domain.Document, bool) {
	if ctx.Err() != nil {
		return domain.Document{}, false
	}

	s := c.getShard(id)
	s.mu.RLock()
	e, ok := s.items[id]
	s.mu.RUnlock()

	// expired entries are left for the cleanup worker
	if !ok || e.expired(c.now()) {
		c.misses.Add(1)
		return domain.Document{}, false
	}
	c.hits.Add(1)
	return e.doc.Clone(), true
}

// Set stores a copy of the document
func (c *SnapshotCache) Set(ctx context.Context, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.getShard(doc.ID)
	s.mu.Lock()
	s.items[doc.ID] = &entry{doc: doc.Clone(), expiresAt: c.now().Add(c.ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes a document from the cache
func (c *SnapshotCache) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := c.getShard(id)
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}

// CleanExpired removes all expired items from the cache
func (c *SnapshotCache) CleanExpired(ctx context.Context) error {
	now := c.now()
	for _, s := range c.shards {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		for id, e := range s.items {
			if e.expired(now) {
				delete(s.items, id)
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// StartCleanupWorker starts a background goroutine that periodically removes expired items
func (c *SnapshotCache) StartCleanupWorker() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	if c.cleanupRunning {
		return
	}

	c.cleanupRunning = true
	c.cleanupStop = make(chan struct{})

	c.cleanupWg.Add(1)
	go c.cleanupWorker(c.cleanupStop)
}

// StopCleanupWorker stops the background cleanup worker gracefully
func (c *SnapshotCache) StopCleanupWorker() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	if !c.cleanupRunning {
		return
	}

	close(c.cleanupStop)
	c.cleanupWg.Wait()
	c.cleanupRunning = false
}

func (c *SnapshotCache) cleanupWorker(stop <-chan struct{}) {
	defer c.cleanupWg.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_ = c.CleanExpired(ctx)
			cancel()
		}
	}
}

// Clear removes all items from the cache
func (c *SnapshotCache) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.items = make(map[uuid.UUID]*entry)
		s.mu.Unlock()
	}
}

// Stats represents cache statistics
type Stats struct {
	ShardCount   int         `json:"shard_count"`
	TotalItems   int         `json:"total_items"`
	ExpiredItems int         `json:"expired_items"`
	Hits         int64       `json:"hits"`
	Misses       int64       `json:"misses"`
	Shards       []ShardStat `json:"shards,omitempty"`
}

// ShardStat represents statistics for a single shard
type ShardStat struct {
	Index        int `json:"index"`
	ItemCount    int `json:"item_count"`
	ExpiredCount int `json:"expired_count"`
}

// GetStats returns cache statistics
func (c *SnapshotCache) GetStats() Stats {
	now := c.now()
	stats := Stats{
		ShardCount: len(c.shards),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Shards:     make([]ShardStat, len(c.shards)),
	}

	for i, s := range c.shards {
		s.mu.RLock()
		stat := ShardStat{Index: i, ItemCount: len(s.items)}
		for _, e := range s.items {
			if e.expired(now) {
				stat.ExpiredCount++
			}
		}
		s.mu.RUnlock()

		stats.Shards[i] = stat
		stats.TotalItems += stat.ItemCount
		stats.ExpiredItems += stat.ExpiredCount
	}
	return stats
}

var _ domain.SnapshotCache = (*SnapshotCache)(nil)
