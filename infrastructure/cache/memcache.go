package cache

import (
	"sync"
	"time"
)

// MemCache is an in-memory TTL cache backed by sync.Map. A background
// sweeper runs when NewMemCache is given a positive cleanupInterval.
type MemCache struct {
	items sync.Map
	gate  sync.Mutex
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
	now   func() time.Time
}

type item struct {
	value      any
	expiration int64 // unix nano; 0 means no expiration
}

func NewMemCache(cleanupInterval time.Duration) *MemCache {
	m := &MemCache{
		stop: make(chan struct{}),
		now:  time.Now,
	}
	if cleanupInterval > 0 {
		m.wg.Add(1)
		go func() {
			ticker := time.NewTicker(cleanupInterval)
			defer ticker.Stop()
			defer m.wg.Done()
			for {
				select {
				case <-ticker.C:
					m.cleanup()
				case <-m.stop:
					return
				}
			}
		}()
	}
	return m
}

func (m *MemCache) Set(key string, value any, ttl time.Duration) {
	m.items.Store(key, m.newItem(value, ttl))
}

func (m *MemCache) Get(key string) (any, bool) {
	v, ok := m.items.Load(key)
	if !ok {
		return nil, false
	}
	it := v.(*item)
	if it.expiredAt(m.now().UnixNano()) {
		m.items.CompareAndDelete(key, v)
		return nil, false
	}
	return it.value, true
}

// GetOrSet returns the live value for key, or stores and returns the value
// built by create. create runs at most once per miss.
func (m *MemCache) GetOrSet(key string, ttl time.Duration, create func() any) any {
	if v, ok := m.Get(key); ok {
		return v
	}

	m.gate.Lock()
	defer m.gate.Unlock()
	if v, ok := m.Get(key); ok {
		return v
	}
	value := create()
	m.Set(key, value, ttl)
	return value
}

func (m *MemCache) Delete(key string) {
	m.items.Delete(key)
}

func (m *MemCache) Len() int {
	n := 0
	now := m.now().UnixNano()
	m.items.Range(func(_, v any) bool {
		if !v.(*item).expiredAt(now) {
			n++
		}
		return true
	})
	return n
}

func (m *MemCache) Close() {
	m.once.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}

func (m *MemCache) newItem(value any, ttl time.Duration) *item {
	var exp int64
	if ttl > 0 {
		exp = m.now().Add(ttl).UnixNano()
	}
	return &item{value: value, expiration: exp}
}

func (it *item) expiredAt(now int64) bool {
	return it.expiration != 0 && now > it.expiration
}

func (m *MemCache) cleanup() {
	now := m.now().UnixNano()
	m.items.Range(func(k, v any) bool {
		if v.(*item).expiredAt(now) {
			m.items.CompareAndDelete(k, v)
		}
		return true
	})
}
