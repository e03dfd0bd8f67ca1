package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/assetflow/internal/logging"
)

// Store persists processed content by key.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Clear() error
}

// Key returns the cache key of content processed by step for class.
func Key(class, step string, content []byte) string {
	sum := sha256.Sum256(content)
	return class + ":" + step + ":" + hex.EncodeToString(sum[:])
}

// MemoryStore is a size-bounded LRU store with TTL.
type MemoryStore struct {
	entries     map[string]*cacheEntry
	mutex       sync.Mutex
	maxSize     int64
	currentSize int64
	ttl         time.Duration
	// LRU list with dummy head and tail
	head *cacheEntry
	tail *cacheEntry
	evictions int64
}

type cacheEntry struct {
	key       string
	value     []byte
	createdAt time.Time
	size      int64
	prev      *cacheEntry
	next      *cacheEntry
}

// NewMemoryStore creates an LRU store holding at most maxSize bytes. A zero
// ttl keeps entries until they are evicted.
func NewMemoryStore(maxSize int64, ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
	}

	s.head = &cacheEntry{}
	s.tail = &cacheEntry{}
	s.head.next = s.tail
	s.tail.prev = s.head

	return s
}

// Get retrieves a value and marks it most recently used.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return nil, false
	}

	if s.ttl > 0 && time.Since(entry.createdAt) > s.ttl {
		s.remove(entry)
		return nil, false
	}

	s.moveToFront(entry)
	return entry.value, true
}

// Set stores value, evicting least recently used entries as needed. Values
// larger than the whole store are not kept.
func (s *MemoryStore) Set(key string, value []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	size := int64(len(value))
	if size > s.maxSize {
		return nil
	}

	if existing, ok := s.entries[key]; ok {
		s.remove(existing)
	}

	s.evictIfNeeded(size)

	entry := &cacheEntry{
		key:       key,
		value:     value,
		createdAt: time.Now(),
		size:      size,
	}
	s.entries[key] = entry
	s.currentSize += size
	s.addToFront(entry)
	return nil
}

// Clear drops every entry.
func (s *MemoryStore) Clear() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.entries = make(map[string]*cacheEntry)
	s.currentSize = 0
	s.head.next = s.tail
	s.tail.prev = s.head
	return nil
}

// Len returns the number of entries.
func (s *MemoryStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.entries)
}

// Evictions returns how many entries were dropped to make room.
func (s *MemoryStore) Evictions() int64 {
	return atomic.LoadInt64(&s.evictions)
}

func (s *MemoryStore) evictIfNeeded(newSize int64) {
	for s.currentSize+newSize > s.maxSize && s.tail.prev != s.head {
		s.remove(s.tail.prev)
		atomic.AddInt64(&s.evictions, 1)
	}
}

func (s *MemoryStore) remove(entry *cacheEntry) {
	s.removeFromList(entry)
	delete(s.entries, entry.key)
	s.currentSize -= entry.size
}

func (s *MemoryStore) addToFront(entry *cacheEntry) {
	entry.prev = s.head
	entry.next = s.head.next
	s.head.next.prev = entry
	s.head.next = entry
}

func (s *MemoryStore) removeFromList(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (s *MemoryStore) moveToFront(entry *cacheEntry) {
	s.removeFromList(entry)
	s.addToFront(entry)
}

// DiskStore keeps entries as files below a directory so they survive
// between runs.
type DiskStore struct {
	dir string
}

// NewDiskStore returns a store rooted at dir. The directory is created on
// the first Set.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Dir returns the cache directory.
func (d *DiskStore) Dir() string { return d.dir }

func (d *DiskStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:])
	return filepath.Join(d.dir, name[:2], name)
}

func (d *DiskStore) Get(key string) ([]byte, bool) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set writes value through a temporary file so readers never see a partial
// entry.
func (d *DiskStore) Set(key string, value []byte) error {
	target := d.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create cache entry: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

// Clear removes the cache directory. A missing directory is not an error.
func (d *DiskStore) Clear() error {
	if err := os.RemoveAll(d.dir); err != nil {
		return fmt.Errorf("failed to clear cache %s: %w", d.dir, err)
	}
	return nil
}

// TieredStore reads through a fast store in front of a slow one.
type TieredStore struct {
	front Store
	back  Store
}

func NewTieredStore(front, back Store) *TieredStore {
	return &TieredStore{front: front, back: back}
}

func (t *TieredStore) Get(key string) ([]byte, bool) {
	if v, ok := t.front.Get(key); ok {
		return v, true
	}
	v, ok := t.back.Get(key)
	if ok {
		_ = t.front.Set(key, v)
	}
	return v, ok
}

func (t *TieredStore) Set(key string, value []byte) error {
	if err := t.front.Set(key, value); err != nil {
		return err
	}
	return t.back.Set(key, value)
}

func (t *TieredStore) Clear() error {
	if err := t.front.Clear(); err != nil {
		return err
	}
	return t.back.Clear()
}

// CacheStats are the counters of a Cache since creation or the last Clear.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// HitRate returns hits over lookups, between 0 and 1.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the content cache shared by every class task. Concurrent misses on
// the same key run the computation once.
type Cache struct {
	store  Store
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
	logger logging.Logger
}

func NewCache(store Store, logger logging.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Cache{store: store, logger: logger.WithComponent("cache")}
}

// Do returns the value stored under key, computing and storing it on a miss.
// hit reports whether compute was skipped.
func (c *Cache) Do(key string, compute func() ([]byte, error)) (value []byte, hit bool, err error) {
	if v, ok := c.store.Get(key); ok {
		c.hits.Add(1)
		return v, true, nil
	}

	computed := false
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}
		computed = true
		c.misses.Add(1)

		out, err := compute()
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(key, out); err != nil {
			c.logger.Warn(context.Background(), err, "Failed to persist cache entry", "key", key)
		}
		return out, nil
	})
	if err != nil {
		return nil, false, err
	}

	if !computed {
		c.hits.Add(1)
	}
	return v.([]byte), !computed, nil
}

// Clear empties the store and resets the counters.
func (c *Cache) Clear() error {
	c.hits.Store(0)
	c.misses.Store(0)
	return c.store.Clear()
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}
