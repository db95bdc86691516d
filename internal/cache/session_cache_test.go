package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/velofit/velofit/internal/cache"
	"github.com/velofit/velofit/internal/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedList struct {
	Names []string `json:"names"`
}

func TestSessionCache_PutGet(t *testing.T) {
	sc := cache.NewSessionCache(1, metrics.NewTestManager())

	in := cachedList{Names: []string{"ana", "bojan", "ceca"}}
	sc.Put("clients::list::coach1", in, time.Minute)

	var out cachedList
	require.True(t, sc.Get("clients::list::coach1", &out))
	assert.Equal(t, in, out)

	// overwrite wins
	sc.Put("clients::list::coach1", cachedList{Names: []string{"dejan"}}, time.Minute)
	require.True(t, sc.Get("clients::list::coach1", &out))
	assert.Equal(t, []string{"dejan"}, out.Names)
}

func TestSessionCache_Expiry_NoResurrection(t *testing.T) {
	sc := cache.NewSessionCache(1, metrics.NewTestManager())

	sc.Put("k", "v", time.Second)

	var out string
	require.True(t, sc.Get("k", &out))
	assert.Equal(t, "v", out)

	time.Sleep(1100 * time.Millisecond)

	out = ""
	assert.False(t, sc.Get("k", &out))
	// a subsequent get must never return the stale value
	assert.False(t, sc.Get("k", &out))
	assert.Empty(t, out)
}

func TestSessionCache_Invalidate(t *testing.T) {
	sc := cache.NewSessionCache(1, metrics.NewTestManager())

	sc.Put("workouts::list::c1", 1, time.Minute)
	sc.Put("workouts::list::c2", 2, time.Minute)
	sc.Put("clients::count", 3, time.Minute)

	sc.Invalidate("workouts::list::c1")

	var out int
	assert.False(t, sc.Get("workouts::list::c1", &out))
	assert.True(t, sc.Get("workouts::list::c2", &out))
	assert.True(t, sc.Get("clients::count", &out))
}

func TestSessionCache_InvalidatePrefix(t *testing.T) {
	sc := cache.NewSessionCache(1, metrics.NewTestManager())

	sc.Put("workouts::list::c1", 1, time.Minute)
	sc.Put("workouts::list::c2", 2, time.Minute)
	sc.Put("clients::count", 3, time.Minute)

	sc.InvalidatePrefix("workouts::")

	var out int
	assert.False(t, sc.Get("workouts::list::c1", &out))
	assert.False(t, sc.Get("workouts::list::c2", &out))
	assert.True(t, sc.Get("clients::count", &out))
}

func TestSessionCache_Clear(t *testing.T) {
	sc := cache.NewSessionCache(1, metrics.NewTestManager())

	sc.Put("a", 1, time.Minute)
	sc.Put("b", 2, time.Minute)
	sc.Clear()

	var out int
	assert.False(t, sc.Get("a", &out))
	assert.False(t, sc.Get("b", &out))
}

func TestSessionCache_HitMissCounters(t *testing.T) {
	metricsManager := metrics.NewTestManager()
	sc := cache.NewSessionCache(1, metricsManager)

	var out string
	assert.False(t, sc.Get("k", &out))

	sc.Put("k", "v", time.Minute)
	require.True(t, sc.Get("k", &out))
	require.True(t, sc.Get("k", &out))

	assert.Equal(t, float64(2), testutil.ToFloat64(metricsManager.CounterCacheHits))
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterCacheMisses))
}

func TestSessionCache_ConcurrentAccess(t *testing.T) {
	sc := cache.NewSessionCache(1, metrics.NewTestManager())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			sc.Put(fmt.Sprintf("key::%d", i%10), i, time.Minute)
		}(i)
		go func(i int) {
			defer wg.Done()
			var out int
			sc.Get(fmt.Sprintf("key::%d", i%10), &out)
		}(i)
	}
	wg.Wait()
}
