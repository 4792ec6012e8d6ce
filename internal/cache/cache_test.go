package cache_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skywatch/skywatch/internal/cache"
)

func TestCache_GetSetExpiry(t *testing.T) {
	c := cache.New[string, int](50 * time.Millisecond)
	c.Set("a", 1)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
}

// Invariant 10: N concurrent GetOrCompute calls for the same missing key
// trigger exactly one compute invocation.
func TestCache_Invariant10_SingleFlight(t *testing.T) {
	c := cache.New[string, int](time.Minute)

	var computeCalls int32
	release := make(chan struct{})

	compute := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&computeCalls, 1)
		<-release
		return 42, nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]int, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute(context.Background(), "k", compute)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond) // let all goroutines queue on the group
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&computeCalls))
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestCache_Sweep(t *testing.T) {
	c := cache.New[string, int](10 * time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)

	removed := c.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, c.Len())
}
