package cache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketEntries = []byte("entries")
	bucketByTime  = []byte("by_time") // StoredAt (8 bytes, big endian) + key -> nil
)

// BoltCache is the persistent tier. Entries expire after ttl and the oldest
// entries are evicted once maxEntries is exceeded.
type BoltCache struct {
	db         *bolt.DB
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	// Serializes writers so count matches the committed state
	mu    sync.Mutex
	count int
}

// OpenBoltCache opens (or creates) the persistent tier at path
func OpenBoltCache(path string, ttl time.Duration, maxEntries int) (*BoltCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	count := 0
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketByTime} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketEntries).ForEach(func(_, _ []byte) error {
			count++
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltCache{db: db, ttl: ttl, maxEntries: maxEntries, now: time.Now, count: count}, nil
}

// Get retrieves an unexpired value
func (c *BoltCache) Get(key string) (Entry, bool, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	if data == nil {
		return Entry{}, false, nil
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupt entries are treated as misses and overwritten on the next Set
		return Entry{}, false, nil
	}
	if c.expired(e) {
		return Entry{}, false, nil
	}
	e.Tier = TierPersistent
	return e, true, nil
}

// Set stores a value and enforces the entry bound
func (c *BoltCache) Set(key string, e Entry) error {
	if e.StoredAt.IsZero() {
		e.StoredAt = c.now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var count int
	err = c.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		byTime := tx.Bucket(bucketByTime)
		count = c.count

		if old := entries.Get([]byte(key)); old != nil {
			var prev Entry
			if json.Unmarshal(old, &prev) == nil {
				if err := byTime.Delete(timeKey(prev.StoredAt, key)); err != nil {
					return err
				}
			}
		} else {
			count++
		}
		if err := entries.Put([]byte(key), data); err != nil {
			return err
		}
		if err := byTime.Put(timeKey(e.StoredAt, key), nil); err != nil {
			return err
		}
		evicted, err := c.evictOverflow(entries, byTime, count)
		count -= evicted
		return err
	})
	if err != nil {
		return err
	}
	c.count = count
	return nil
}

// Delete removes a value
func (c *BoltCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deleted := false
	err := c.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		old := entries.Get([]byte(key))
		if old == nil {
			return nil
		}
		var prev Entry
		if json.Unmarshal(old, &prev) == nil {
			if err := tx.Bucket(bucketByTime).Delete(timeKey(prev.StoredAt, key)); err != nil {
				return err
			}
		}
		deleted = true
		return entries.Delete([]byte(key))
	})
	if err == nil && deleted {
		c.count--
	}
	return err
}

// Clear removes every entry
func (c *BoltCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketByTime} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		c.count = 0
	}
	return err
}

// Sweep deletes expired entries, oldest first, and returns how many went
func (c *BoltCache) Sweep() (int, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(bucketEntries)
		byTime := tx.Bucket(bucketByTime)
		removed = 0

		var stale [][]byte
		cur := byTime.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if !decodeTime(k).Before(cutoff) {
				break
			}
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := entries.Delete(k[8:]); err != nil {
				return err
			}
			if err := byTime.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.count -= removed
	return removed, nil
}

// Len returns the number of stored entries, expired or not
func (c *BoltCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Close closes the underlying database
func (c *BoltCache) Close() error {
	return c.db.Close()
}

// evictOverflow drops the oldest entries beyond maxEntries
func (c *BoltCache) evictOverflow(entries, byTime *bolt.Bucket, count int) (int, error) {
	if c.maxEntries <= 0 {
		return 0, nil
	}
	overflow := count - c.maxEntries
	if overflow <= 0 {
		return 0, nil
	}

	var oldest [][]byte
	cur := byTime.Cursor()
	for k, _ := cur.First(); k != nil && len(oldest) < overflow; k, _ = cur.Next() {
		oldest = append(oldest, append([]byte(nil), k...))
	}
	for _, k := range oldest {
		if err := entries.Delete(k[8:]); err != nil {
			return 0, err
		}
		if err := byTime.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(oldest), nil
}

// TTL returns how long entries live
func (c *BoltCache) TTL() time.Duration {
	return c.ttl
}

func (c *BoltCache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.StoredAt) > c.ttl
}

func timeKey(t time.Time, key string) []byte {
	buf := make([]byte, 8, 8+len(key))
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return append(buf, key...)
}

func decodeTime(k []byte) time.Time {
	return time.Unix(0, int64(binary.BigEndian.Uint64(k[:8])))
}
