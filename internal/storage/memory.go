package storage

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"corrplot-backend/internal/model"
	"corrplot-backend/internal/table"
)

type memoryItem struct {
	table   *table.Table
	modTime time.Time
}

type MemoryCache struct {
	items  map[string]memoryItem
	mu     sync.RWMutex
	hits   atomic.Int64
	misses atomic.Int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: make(map[string]memoryItem),
	}
}

func (m *MemoryCache) Init() error {
	return nil
}

func (m *MemoryCache) Close() error {
	return nil
}

func (m *MemoryCache) Get(key string) (*table.Table, error) {
	t, err := m.Peek(key)
	switch {
	case err == nil:
		m.hits.Add(1)
	case errors.Is(err, ErrCacheMiss):
		m.misses.Add(1)
	}
	return t, err
}

func (m *MemoryCache) Peek(key string) (*table.Table, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	item, exists := m.items[key]
	if !exists {
		return nil, ErrCacheMiss
	}
	return item.table, nil
}

func (m *MemoryCache) Put(key string, t *table.Table) error {
	if err := validKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = memoryItem{table: t, modTime: time.Now()}
	return nil
}

func (m *MemoryCache) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[key]; !exists {
		return ErrCacheMiss
	}
	delete(m.items, key)
	return nil
}

func (m *MemoryCache) List() ([]model.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]model.CacheEntry, 0, len(m.items))
	for key, item := range m.items {
		entries = append(entries, model.CacheEntry{Key: key, ModTime: item.modTime})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return entries, nil
}

func (m *MemoryCache) Clear() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.items)
	m.items = make(map[string]memoryItem)
	return n, nil
}

func (m *MemoryCache) Stats() model.CacheStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return model.CacheStats{
		Entries: len(m.items),
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
	}
}
