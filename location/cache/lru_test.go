package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLRUCache_Creation(t *testing.T) {
	testCases := []struct {
		name      string
		capacity  int
		ttl       time.Duration
		expectCap int
		expectTTL time.Duration
	}{
		{"default values", 0, 0, 512, DefaultTTL},
		{"custom capacity", 64, 0, 64, DefaultTTL},
		{"custom TTL", 0, time.Minute, 512, time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewLRUCache[string, int](tc.capacity, tc.ttl)
			assert.Equal(t, tc.expectCap, c.Capacity())
			assert.Equal(t, tc.expectTTL, c.TTL())
			assert.Equal(t, 0, c.Size())
		})
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	clock := newFakeClock()
	c := NewLRUCache[string, string](10, 30*time.Minute, WithClock(clock.Now))

	c.Set("home", "52.52,13.40")

	t.Run("present before the window closes", func(t *testing.T) {
		clock.Advance(29 * time.Minute)
		v, ok := c.Get("home")
		require.True(t, ok)
		assert.Equal(t, "52.52,13.40", v)
	})

	t.Run("absent after the window closes", func(t *testing.T) {
		clock.Advance(2 * time.Minute)
		_, ok := c.Get("home")
		assert.False(t, ok)
		assert.Equal(t, 0, c.Size(), "expired entry is dropped on access")
	})
}

func TestLRUCache_SetRestartsWindow(t *testing.T) {
	clock := newFakeClock()
	c := NewLRUCache[string, int](10, 30*time.Minute, WithClock(clock.Now))

	c.Set("k", 1)
	clock.Advance(20 * time.Minute)
	c.Set("k", 2)
	clock.Advance(20 * time.Minute)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestLRUCache_ClearExpired(t *testing.T) {
	clock := newFakeClock()
	c := NewLRUCache[string, int](10, 30*time.Minute, WithClock(clock.Now))

	c.Set("old-1", 1)
	c.Set("old-2", 2)
	clock.Advance(20 * time.Minute)
	c.Set("fresh", 3)
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 3, c.Size())
	assert.Equal(t, 2, c.ClearExpired())
	assert.Equal(t, 1, c.Size())

	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[string, int](3, time.Hour)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Touch "a" so "b" becomes least recently used.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("d", 4)
	assert.Equal(t, 3, c.Size())

	_, ok = c.Get("b")
	assert.False(t, ok)
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, k)
	}
}

func TestLRUCache_RemoveAndClear(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	_, ok := c.Get("b")
	assert.False(t, ok)
}

func TestLRUCache_ThreadSafety(t *testing.T) {
	c := NewLRUCache[string, int](100, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d", (g*200+i)%150)
				c.Set(key, i)
				c.Get(key)
				if i%50 == 0 {
					c.ClearExpired()
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 100)
}
