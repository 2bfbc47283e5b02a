package cache

import (
	"encoding/json"
	"time"
)

// FileCacheMemoryTTL is how long a durable entry stays promoted in memory.
const FileCacheMemoryTTL = time.Hour

// Provider pairs the memory cache with an optional durable store.
type Provider struct {
	memory *MemoryCache
	store  Store
}

func NewProvider(memory *MemoryCache, store Store) *Provider {
	if memory == nil {
		memory = NewMemoryCache()
	}
	return &Provider{memory: memory, store: store}
}

func (p *Provider) Memory() *MemoryCache {
	return p.memory
}

func (p *Provider) GetCache(key string) (interface{}, bool) {
	return p.memory.Get(key)
}

func (p *Provider) SetCache(key string, value interface{}, ttl time.Duration) {
	p.memory.Set(key, value, ttl)
}

func (p *Provider) ClearCache() {
	p.memory.Clear()
}

func fileMemoryKey(typ, key string) string {
	return "file/" + typ + "/" + key
}

// GetFileCache decodes the (typ, key) entry into out. It never fetches, a miss
// or an undecodable entry returns false.
func (p *Provider) GetFileCache(typ, key string, out interface{}) bool {
	mk := fileMemoryKey(typ, key)
	if v, ok := p.memory.Get(mk); ok {
		if raw, ok := v.([]byte); ok && json.Unmarshal(raw, out) == nil {
			return true
		}
	}
	if p.store == nil {
		return false
	}
	raw, ok := p.store.Load(typ, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false
	}
	p.memory.Set(mk, raw, FileCacheMemoryTTL)
	return true
}

// SetFileCache updates memory immediately and returns the durable write error, if any.
func (p *Provider) SetFileCache(typ, key string, value interface{}) error {
	raw, err := json.MarshalIndent(value, "", " ")
	if err != nil {
		return err
	}
	p.memory.Set(fileMemoryKey(typ, key), raw, FileCacheMemoryTTL)
	if p.store == nil {
		return nil
	}
	return p.store.Save(typ, key, raw)
}

// Get is a typed read of the memory cache.
func Get[T any](p *Provider, key string) (T, bool) {
	var zero T
	v, ok := p.memory.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
