// Package cache implements the two-tier health cache: a bounded in-memory
// LRU in front of a persistent bbolt store.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Tier identifies where an entry was served from
type Tier string

const (
	TierMemory     Tier = "memory"
	TierPersistent Tier = "persistent"
)

// Kind separates computations cached for the same source
type Kind string

const (
	KindHealth     Kind = "health"
	KindPrediction Kind = "prediction"
)

// Entry is a cached payload with its insertion time
type Entry struct {
	Payload  []byte    `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
	Tier     Tier      `json:"-"`
}

// Cache defines one cache tier. Get never returns an entry older than the
// tier's TTL.
type Cache interface {
	Get(key string) (Entry, bool, error)
	Set(key string, e Entry) error
	Delete(key string) error
	Clear() error
}

// Sweeper is implemented by tiers that need explicit expiry passes
type Sweeper interface {
	Sweep() (int, error)
}

// Key generates a cache key from a computation kind and source id
func Key(kind Kind, sourceID string) string {
	hash := sha256.Sum256([]byte(string(kind) + "\x00" + sourceID))
	return "sourcerank:v1:" + hex.EncodeToString(hash[:])
}
