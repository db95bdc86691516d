package cache

import "time"

// Cache is the session-scoped, best-effort store used by repositories to
// avoid redundant backend reads. A cache failure is never an application
// error: callers fall through to the network path on any miss.
type Cache interface {
	Put(key string, value any, ttl time.Duration)
	Get(key string, out any) bool
	Invalidate(key string)
	InvalidatePrefix(prefix string)
	Clear()
}
