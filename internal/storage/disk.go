package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"corrplot-backend/internal/model"
	"corrplot-backend/internal/table"
	"corrplot-backend/pkg/logger"

	"github.com/google/uuid"
)

const cacheExt = ".csv"

// DiskCache 是扁平目录下的 CSV 文件缓存，文件名即缓存 key。
// 写入先落临时文件再 rename，读者不会看到写了一半的文件。
type DiskCache struct {
	dir       string
	mu        sync.RWMutex
	memory    map[string]*memEntry
	cacheSize int
	hits      atomic.Int64
	misses    atomic.Int64
}

type memEntry struct {
	table    *table.Table
	lastUsed time.Time
	// 对应磁盘文件的状态，用于发现外部修改
	size    int64
	modTime time.Time
}

func (e *memEntry) matches(info os.FileInfo) bool {
	return e.size == info.Size() && e.modTime.Equal(info.ModTime())
}

func NewDiskCache(dir string, cacheSize int) *DiskCache {
	return &DiskCache{
		dir:       dir,
		memory:    make(map[string]*memEntry),
		cacheSize: cacheSize,
	}
}

func (d *DiskCache) Init() error {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInit, err)
	}

	// 清理上次异常退出残留的临时文件
	stale, _ := filepath.Glob(filepath.Join(d.dir, ".*.tmp"))
	for _, p := range stale {
		if err := os.Remove(p); err != nil {
			logger.Warnf("Failed to remove stale temp file %s: %v", p, err)
		}
	}

	logger.Infof("Disk cache initialized at %s", d.dir)
	return nil
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func (d *DiskCache) path(key string) string {
	return filepath.Join(d.dir, key)
}

func (d *DiskCache) Get(key string) (*table.Table, error) {
	t, err := d.Peek(key)
	switch {
	case err == nil:
		d.hits.Add(1)
	case errors.Is(err, ErrCacheMiss):
		d.misses.Add(1)
	}
	return t, err
}

// Peek 与 Get 相同但不计入命中统计。
// 内存中的表只有在磁盘文件未变时才可用，文件被外部删除即视为未命中。
func (d *DiskCache) Peek(key string) (*table.Table, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	info, err := os.Stat(d.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			d.forget(key)
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	d.mu.Lock()
	if e, ok := d.memory[key]; ok && e.matches(info) {
		e.lastUsed = time.Now()
		d.mu.Unlock()
		return e.table, nil
	}
	d.mu.Unlock()

	d.mu.RLock()
	t, err := table.ReadFile(d.path(key))
	d.mu.RUnlock()
	if err != nil {
		d.forget(key)
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	d.remember(key, t, info)
	return t, nil
}

func (d *DiskCache) Put(key string, t *table.Table) error {
	if err := validKey(key); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := t.Write(&buf); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	tempPath := filepath.Join(d.dir, "."+key+"."+uuid.NewString()+".tmp")

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.WriteFile(tempPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	if err := os.Rename(tempPath, d.path(key)); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	delete(d.memory, key)
	if d.cacheSize > 0 {
		if info, err := os.Stat(d.path(key)); err == nil {
			d.memory[key] = &memEntry{table: t, lastUsed: time.Now(), size: info.Size(), modTime: info.ModTime()}
			d.evictMemory()
		}
	}
	return nil
}

func (d *DiskCache) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.memory, key)
	if err := os.Remove(d.path(key)); err != nil {
		if os.IsNotExist(err) {
			return ErrCacheMiss
		}
		return fmt.Errorf("%w: %v", ErrFileOperation, err)
	}
	return nil
}

func (d *DiskCache) List() ([]model.CacheEntry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	files, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileOperation, err)
	}

	entries := make([]model.CacheEntry, 0, len(files))
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != cacheExt {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		entries = append(entries, model.CacheEntry{
			Key:     name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return entries, nil
}

func (d *DiskCache) Clear() (int, error) {
	entries, err := d.List()
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for _, e := range entries {
		if err := os.Remove(d.path(e.Key)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("%w: %v", ErrFileOperation, err)
		}
		removed++
	}
	d.memory = make(map[string]*memEntry)

	logger.Infof("Cleared %d cache entries from %s", removed, d.dir)
	return removed, nil
}

func (d *DiskCache) Stats() model.CacheStats {
	entries, err := d.List()
	if err != nil {
		logger.Warnf("Failed to list cache dir: %v", err)
	}
	return model.CacheStats{
		Entries: len(entries),
		Hits:    d.hits.Load(),
		Misses:  d.misses.Load(),
	}
}

func (d *DiskCache) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memory = make(map[string]*memEntry)
	return nil
}

func (d *DiskCache) remember(key string, t *table.Table, info os.FileInfo) {
	if d.cacheSize <= 0 {
		return
	}
	d.mu.Lock()
	d.memory[key] = &memEntry{table: t, lastUsed: time.Now(), size: info.Size(), modTime: info.ModTime()}
	d.evictMemory()
	d.mu.Unlock()
}

func (d *DiskCache) forget(key string) {
	d.mu.Lock()
	delete(d.memory, key)
	d.mu.Unlock()
}

// evictMemory 按最近使用时间淘汰，调用方持有写锁
func (d *DiskCache) evictMemory() {
	if len(d.memory) <= d.cacheSize {
		return
	}

	type cacheEntry struct {
		key      string
		lastUsed time.Time
	}

	entries := make([]cacheEntry, 0, len(d.memory))
	for key, e := range d.memory {
		entries = append(entries, cacheEntry{key: key, lastUsed: e.lastUsed})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastUsed.Before(entries[j].lastUsed)
	})

	toEvict := len(d.memory) - d.cacheSize
	for i := 0; i < toEvict; i++ {
		delete(d.memory, entries[i].key)
	}
}
