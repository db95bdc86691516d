package cache

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/velofit/velofit/internal/telemetry/metrics"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

var _ Cache = (*SessionCache)(nil)

// SessionCache holds JSON-marshalled payloads with a per-entry TTL.
// Entries live at most for the process lifetime; expiry is lazy, on read.
// The underlying freecache segments do their own locking, so concurrent
// readers and writers need no coordination here.
type SessionCache struct {
	store          *freecache.Cache
	metricsManager *metrics.Manager
}

func NewSessionCache(sizeMB int, metricsManager *metrics.Manager) *SessionCache {
	megabyte := 1024 * 1024
	return &SessionCache{
		store:          freecache.NewCache(sizeMB * megabyte),
		metricsManager: metricsManager,
	}
}

func (sc *SessionCache) Put(key string, value any, ttl time.Duration) {
	valueBytes, err := json.Marshal(value)
	if err != nil {
		log.Errorf("session cache, marshal value for [%s]: %s", key, err)
		return
	}
	if err := sc.store.Set([]byte(key), valueBytes, int(ttl.Seconds())); err != nil {
		log.Errorf("session cache, set [%s]: %s", key, err)
	}
}

// Get unmarshals the cached value for key into out and reports whether a
// live entry was found. An expired entry counts as a miss and will never
// be returned again.
func (sc *SessionCache) Get(key string, out any) bool {
	valueBytes, err := sc.store.Get([]byte(key))
	if err != nil {
		sc.metricsManager.CounterCacheMisses.Inc()
		return false
	}
	if err := json.Unmarshal(valueBytes, out); err != nil {
		log.Errorf("session cache, unmarshal value for [%s]: %s", key, err)
		sc.store.Del([]byte(key))
		sc.metricsManager.CounterCacheMisses.Inc()
		return false
	}
	sc.metricsManager.CounterCacheHits.Inc()
	return true
}

func (sc *SessionCache) Invalidate(key string) {
	sc.store.Del([]byte(key))
}

// InvalidatePrefix removes all entries whose key starts with prefix. Used
// after writes that change cached aggregates, e.g. the workout list after
// a new workout is created.
func (sc *SessionCache) InvalidatePrefix(prefix string) {
	var toRemove [][]byte
	it := sc.store.NewIterator()
	for entry := it.Next(); entry != nil; entry = it.Next() {
		if strings.HasPrefix(string(entry.Key), prefix) {
			key := make([]byte, len(entry.Key))
			copy(key, entry.Key)
			toRemove = append(toRemove, key)
		}
	}
	for _, key := range toRemove {
		sc.store.Del(key)
	}
}

func (sc *SessionCache) Clear() {
	sc.store.Clear()
}
