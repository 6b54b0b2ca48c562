// Package audiocache implements the two-tier cache for generated audio: a
// hot in-process map in front of a durable key-value store that survives
// restarts.
package audiocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/narrator/internal/core"
)

// Log format strings.
const (
	logFmtDurableWriteFailed = "Durable cache write for key %s failed, serving from hot tier only: %v"
	logFmtDurableReadFailed  = "Durable cache read for key %s failed: %v"
	logFmtEntryDecodeFailed  = "Discarding undecodable cache entry %s: %v"
)

// storedEntry is the durable-tier envelope: the unit plus the metadata needed
// for eviction and statistics.
type storedEntry struct {
	Unit  core.AudioUnit  `json:"unit"`
	Entry core.CacheEntry `json:"entry"`
}

type hotEntry struct {
	unit  core.AudioUnit
	entry core.CacheEntry
}

// TieredCache is safe for concurrent use. The hot tier is consulted first; a
// durable-tier hit repopulates the hot tier before returning.
type TieredCache struct {
	mu      sync.Mutex
	hot     map[string]hotEntry
	durable core.DurableStore
	log     *logger.Logger
	now     func() time.Time
}

// New creates a tiered cache over the given durable store.
func New(durable core.DurableStore, log *logger.Logger) *TieredCache {
	return NewWithClock(durable, log, time.Now)
}

// NewWithClock creates a tiered cache with an injected clock. Entry ages and
// eviction cutoffs are derived from it.
func NewWithClock(durable core.DurableStore, log *logger.Logger, now func() time.Time) *TieredCache {
	return &TieredCache{
		hot:     make(map[string]hotEntry),
		durable: durable,
		log:     log,
		now:     now,
	}
}

// Get returns the cached unit for key, if present in either tier.
func (c *TieredCache) Get(ctx context.Context, key string) (core.AudioUnit, bool) {
	c.mu.Lock()
	if entry, ok := c.hot[key]; ok {
		c.mu.Unlock()

		return entry.unit, true
	}
	c.mu.Unlock()

	data, err := c.durable.Get(ctx, key)
	if err != nil {
		if !isNotFound(err) {
			c.log.Warn(logFmtDurableReadFailed, key, err)
		}

		return core.AudioUnit{}, false
	}

	var stored storedEntry

	err = json.Unmarshal(data, &stored)
	if err != nil {
		c.log.Warn(logFmtEntryDecodeFailed, key, err)

		return core.AudioUnit{}, false
	}

	c.mu.Lock()
	c.hot[key] = hotEntry{unit: stored.Unit, entry: stored.Entry}
	c.mu.Unlock()

	return stored.Unit, true
}

// Put writes the unit through both tiers. The hot tier always succeeds; a
// durable-tier failure is returned wrapped in core.ErrCacheWrite but the unit
// remains servable from the hot tier for the rest of the session.
func (c *TieredCache) Put(ctx context.Context, key string, unit core.AudioUnit, textHash string) error {
	entry := core.CacheEntry{
		Key:         key,
		Engine:      unit.Engine,
		VoiceID:     unit.VoiceID,
		Speaker:     unit.Speaker,
		TextHash:    textHash,
		ContentType: unit.ContentType,
		SizeBytes:   payloadSize(unit),
		CreatedAt:   c.now(),
	}

	c.mu.Lock()
	c.hot[key] = hotEntry{unit: unit, entry: entry}
	c.mu.Unlock()

	data, err := json.Marshal(storedEntry{Unit: unit, Entry: entry})
	if err != nil {
		return fmt.Errorf("%w: encoding entry %s: %w", core.ErrCacheWrite, key, err)
	}

	err = c.durable.Put(ctx, key, data)
	if err != nil {
		c.log.Warn(logFmtDurableWriteFailed, key, err)

		return fmt.Errorf("%w: %w", core.ErrCacheWrite, err)
	}

	return nil
}

// EvictOlderThan removes entries created before now-maxAge from both tiers.
// The durable scan is snapshot-scoped: entries written after the scan starts
// carry a newer creation time and are untouched, and a concurrent Put cannot
// resurrect an evicted record because it always writes a fresh one.
func (c *TieredCache) EvictOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := c.now().Add(-maxAge)

	entries, err := c.durable.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan durable cache tier: %w", err)
	}

	var stale []string

	for _, entry := range entries {
		if entry.CreatedAt.Before(cutoff) {
			stale = append(stale, entry.Key)
		}
	}

	if len(stale) > 0 {
		err = c.durable.Delete(ctx, stale)
		if err != nil {
			return 0, fmt.Errorf("failed to evict durable cache entries: %w", err)
		}
	}

	c.mu.Lock()
	for key, entry := range c.hot {
		if entry.entry.CreatedAt.Before(cutoff) {
			delete(c.hot, key)
		}
	}
	c.mu.Unlock()

	return len(stale), nil
}

// ClearAll empties both tiers. Remote persistence is untouched.
func (c *TieredCache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	c.hot = make(map[string]hotEntry)
	c.mu.Unlock()

	err := c.durable.Clear(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear durable cache tier: %w", err)
	}

	return nil
}

// Stats reports entry counts and total payload bytes across the durable tier
// plus the hot-tier entry count.
func (c *TieredCache) Stats(ctx context.Context) (core.CacheStats, error) {
	entries, err := c.durable.Entries(ctx)
	if err != nil {
		return core.CacheStats{}, fmt.Errorf("failed to scan durable cache tier: %w", err)
	}

	stats := core.CacheStats{
		EntryCount:    len(entries),
		TotalBytes:    0,
		HotEntryCount: 0,
	}

	for _, entry := range entries {
		stats.TotalBytes += entry.SizeBytes
	}

	c.mu.Lock()
	stats.HotEntryCount = len(c.hot)
	c.mu.Unlock()

	return stats, nil
}

func payloadSize(unit core.AudioUnit) int64 {
	if unit.IsRealtime() {
		return int64(len(unit.Text))
	}

	return int64(len(unit.Audio))
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
