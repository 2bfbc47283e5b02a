package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const DefaultTTL = 60 * time.Second

// MemoryCache is a process-wide TTL cache, each key's last writer wins.
type MemoryCache struct {
	items *ttlcache.Cache[string, interface{}]
}

func NewMemoryCache() *MemoryCache {
	items := ttlcache.New[string, interface{}](
		ttlcache.WithTTL[string, interface{}](DefaultTTL),
		ttlcache.WithDisableTouchOnHit[string, interface{}](),
	)
	go items.Start()
	return &MemoryCache{items: items}
}

// Set stores value for ttl (DefaultTTL when ttl <= 0). A nil value deletes the key.
func (m *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	if value == nil {
		m.items.Delete(key)
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.items.Set(key, value, ttl)
}

func (m *MemoryCache) Get(key string) (interface{}, bool) {
	item := m.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	return item.Value(), true
}

func (m *MemoryCache) Delete(key string) {
	m.items.Delete(key)
}

func (m *MemoryCache) Clear() {
	m.items.DeleteAll()
}

func (m *MemoryCache) Len() int {
	return m.items.Len()
}

// Stop halts the expiry loop.
func (m *MemoryCache) Stop() {
	m.items.Stop()
}
