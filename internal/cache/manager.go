package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ppiankov/sourcerank/internal/model"
)

// Stats are cumulative cache counters
type Stats struct {
	MemoryHits     int64 `json:"memory_hits"`
	PersistentHits int64 `json:"persistent_hits"`
	Misses         int64 `json:"misses"`
	Computations   int64 `json:"computations"`
	MemoryEntries  int   `json:"memory_entries"`
	Degraded       bool  `json:"degraded"` // Persistent tier failed; memory only
}

// Manager layers the memory tier over the persistent tier. Lookups go
// memory, then persistent (promoting hits), then compute. Concurrent
// computations for the same key collapse into one; different keys never
// wait on each other.
type Manager struct {
	memory     *MemoryCache
	persistent Cache
	group      singleflight.Group
	logger     zerolog.Logger

	degraded       atomic.Bool
	memoryHits     atomic.Int64
	persistentHits atomic.Int64
	misses         atomic.Int64
	computations   atomic.Int64
}

// NewManager creates a manager. persistent may be nil for memory-only caching.
func NewManager(memory *MemoryCache, persistent Cache, logger zerolog.Logger) *Manager {
	return &Manager{memory: memory, persistent: persistent, logger: logger}
}

// NewFromConfig builds both tiers from configuration. A persistent tier that
// cannot be opened leaves the manager degraded rather than failing.
func NewFromConfig(cfg model.CacheConfig, logger zerolog.Logger) *Manager {
	memory := NewMemoryCache(cfg.MemoryEntries, cfg.MemoryTTL)
	if !cfg.Enabled || cfg.PersistentPath == "" {
		return NewManager(memory, nil, logger)
	}

	bolt, err := OpenBoltCache(filepath.Clean(cfg.PersistentPath), cfg.PersistentTTL, cfg.PersistentEntries)
	if err != nil {
		m := NewManager(memory, nil, logger)
		m.degrade(err)
		return m
	}
	return NewManager(memory, bolt, logger)
}

// Get looks a key up in memory, then in the persistent tier.
func (m *Manager) Get(key string) (Entry, bool) {
	if e, ok, _ := m.memory.Get(key); ok {
		m.memoryHits.Add(1)
		return e, true
	}

	if p := m.persistentTier(); p != nil {
		e, ok, err := p.Get(key)
		if err != nil {
			m.degrade(err)
		} else if ok {
			m.persistentHits.Add(1)
			_ = m.memory.Set(key, Entry{Payload: e.Payload, StoredAt: m.promotedAt(p, e)})
			return e, true
		}
	}

	m.misses.Add(1)
	return Entry{}, false
}

// promotedAt stamps a promoted entry with the current time, pulled back so
// its memory copy expires no later than the persistent one.
func (m *Manager) promotedAt(p Cache, e Entry) time.Time {
	now := m.memory.now()
	bounded, ok := p.(interface{ TTL() time.Duration })
	if !ok || bounded.TTL() <= 0 || m.memory.ttl <= 0 {
		return now
	}
	latest := e.StoredAt.Add(bounded.TTL() - m.memory.ttl)
	if latest.Before(now) {
		return latest
	}
	return now
}

// Put stores payload in both tiers.
func (m *Manager) Put(key string, payload []byte) {
	e := Entry{Payload: payload, StoredAt: m.memory.now()}
	_ = m.memory.Set(key, e)
	if p := m.persistentTier(); p != nil {
		if err := p.Set(key, e); err != nil {
			m.degrade(err)
		}
	}
}

// Invalidate removes key from both tiers.
func (m *Manager) Invalidate(key string) {
	_ = m.memory.Delete(key)
	if p := m.persistentTier(); p != nil {
		if err := p.Delete(key); err != nil {
			m.degrade(err)
		}
	}
}

// GetOrCompute returns the cached payload for key when valid accepts it,
// otherwise runs compute at most once per key across concurrent callers and
// caches the result. valid may be nil.
func (m *Manager) GetOrCompute(ctx context.Context, key string, valid func(Entry) bool, compute func() ([]byte, error)) ([]byte, error) {
	if e, ok := m.Get(key); ok && (valid == nil || valid(e)) {
		return e.Payload, nil
	}

	ch := m.group.DoChan(key, func() (any, error) {
		// A flight that finished between our lookup and this one already stored it
		if e, ok, _ := m.memory.Get(key); ok && (valid == nil || valid(e)) {
			return e.Payload, nil
		}
		m.computations.Add(1)
		payload, err := compute()
		if err != nil {
			return nil, err
		}
		m.Put(key, payload)
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]byte), nil
	}
}

// Load is the typed form of GetOrCompute. Values travel as JSON; valid sees
// the decoded value and may be nil.
func Load[T any](ctx context.Context, m *Manager, key string, valid func(T) bool, compute func() (T, error)) (T, error) {
	var zero T

	var check func(Entry) bool
	if valid != nil {
		check = func(e Entry) bool {
			var v T
			if err := json.Unmarshal(e.Payload, &v); err != nil {
				return false
			}
			return valid(v)
		}
	}

	payload, err := m.GetOrCompute(ctx, key, check, func() ([]byte, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return zero, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, nil
}

// Sweep expires persistent entries. It returns 0 when there is nothing to sweep.
func (m *Manager) Sweep() int {
	s, ok := m.persistentTier().(Sweeper)
	if !ok {
		return 0
	}
	n, err := s.Sweep()
	if err != nil {
		m.degrade(err)
		return 0
	}
	if n > 0 {
		m.logger.Debug().Int("removed", n).Msg("Swept expired persistent cache entries")
	}
	return n
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Stats returns a snapshot of the cache counters.
func (m *Manager) Stats() Stats {
	return Stats{
		MemoryHits:     m.memoryHits.Load(),
		PersistentHits: m.persistentHits.Load(),
		Misses:         m.misses.Load(),
		Computations:   m.computations.Load(),
		MemoryEntries:  m.memory.Len(),
		Degraded:       m.degraded.Load(),
	}
}

// Clear empties both tiers.
func (m *Manager) Clear() error {
	_ = m.memory.Clear()
	if p := m.persistentTier(); p != nil {
		if err := p.Clear(); err != nil {
			m.degrade(err)
			return fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)
		}
	}
	return nil
}

// Close releases the persistent tier.
func (m *Manager) Close() error {
	if c, ok := m.persistent.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// persistentTier returns nil once the manager has degraded.
func (m *Manager) persistentTier() Cache {
	if m.degraded.Load() {
		return nil
	}
	return m.persistent
}

// degrade switches to memory-only caching, logging once.
func (m *Manager) degrade(err error) {
	if m.degraded.CompareAndSwap(false, true) {
		m.logger.Warn().Err(fmt.Errorf("%w: %v", model.ErrCacheUnavailable, err)).
			Msg("Persistent cache unavailable, continuing memory-only")
	}
}
