package build

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLRU(t *testing.T) {
	t.Run("eviction order", func(t *testing.T) {
		store := NewMemoryStore(30, 0)

		for i := 1; i <= 5; i++ {
			require.NoError(t, store.Set(fmt.Sprintf("key%d", i), []byte(fmt.Sprintf("value%d", i))))
		}
		for i := 1; i <= 5; i++ {
			_, found := store.Get(fmt.Sprintf("key%d", i))
			assert.True(t, found, "key%d should be present", i)
		}

		require.NoError(t, store.Set("key6", []byte("value6")))

		_, found := store.Get("key1")
		assert.False(t, found, "key1 should be evicted as LRU")
		assert.Equal(t, int64(1), store.Evictions())
		assert.Equal(t, 5, store.Len())
	})

	t.Run("access refreshes recency", func(t *testing.T) {
		store := NewMemoryStore(24, 0)
		for i := 1; i <= 4; i++ {
			require.NoError(t, store.Set(fmt.Sprintf("key%d", i), []byte("value"+fmt.Sprint(i))))
		}

		store.Get("key1")
		require.NoError(t, store.Set("key5", []byte("value5")))

		_, found := store.Get("key1")
		assert.True(t, found)
		_, found = store.Get("key2")
		assert.False(t, found)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		store := NewMemoryStore(100, time.Millisecond)
		require.NoError(t, store.Set("k", []byte("v")))
		time.Sleep(5 * time.Millisecond)
		_, found := store.Get("k")
		assert.False(t, found)
	})

	t.Run("oversized values are skipped", func(t *testing.T) {
		store := NewMemoryStore(4, 0)
		require.NoError(t, store.Set("big", []byte("too large")))
		assert.Equal(t, 0, store.Len())
	})
}

func TestDiskStore(t *testing.T) {
	dir := t.TempDir() + "/cache"
	store := NewDiskStore(dir)

	_, found := store.Get("img:imagemin:abc")
	assert.False(t, found)

	require.NoError(t, store.Set("img:imagemin:abc", []byte("compressed")))
	value, found := store.Get("img:imagemin:abc")
	require.True(t, found)
	assert.Equal(t, []byte("compressed"), value)

	reopened := NewDiskStore(dir)
	_, found = reopened.Get("img:imagemin:abc")
	assert.True(t, found, "entries persist across store instances")

	require.NoError(t, store.Clear())
	_, found = store.Get("img:imagemin:abc")
	assert.False(t, found)
	assert.NoError(t, store.Clear(), "clearing a missing cache succeeds")
}

func TestTieredStorePromotes(t *testing.T) {
	front := NewMemoryStore(1024, 0)
	back := NewDiskStore(t.TempDir())
	require.NoError(t, back.Set("k", []byte("v")))

	tiered := NewTieredStore(front, back)
	value, found := tiered.Get("k")
	require.True(t, found)
	assert.Equal(t, []byte("v"), value)

	_, inFront := front.Get("k")
	assert.True(t, inFront)

	require.NoError(t, tiered.Clear())
	_, found = tiered.Get("k")
	assert.False(t, found)
}

func TestCacheDeduplicatesConcurrentMisses(t *testing.T) {
	cache := NewCache(NewMemoryStore(1024, 0), nil)

	var computations atomic.Int32
	release := make(chan struct{})
	compute := func() ([]byte, error) {
		computations.Add(1)
		<-release
		return []byte("out"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := cache.Do("key", compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), computations.Load())
	for _, r := range results {
		assert.Equal(t, []byte("out"), r)
	}
	assert.Equal(t, int64(1), cache.Stats().Misses)
	assert.Equal(t, int64(7), cache.Stats().Hits)
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	cache := NewCache(NewMemoryStore(1024, 0), nil)

	_, _, err := cache.Do("key", func() ([]byte, error) { return nil, fmt.Errorf("decode failed") })
	require.Error(t, err)

	value, hit, err := cache.Do("key", func() ([]byte, error) { return []byte("ok"), nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("ok"), value)
}

func TestKeyDependsOnContent(t *testing.T) {
	a := Key("img", "imagemin", []byte("one"))
	b := Key("img", "imagemin", []byte("two"))
	c := Key("fonts", "imagemin", []byte("one"))

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, Key("img", "imagemin", []byte("one")))
	assert.InDelta(t, 0.5, CacheStats{Hits: 1, Misses: 1}.HitRate(), 1e-9)
}
