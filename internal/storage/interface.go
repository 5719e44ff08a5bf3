package storage

import (
	"context"

	"corrplot-backend/internal/model"
	"corrplot-backend/internal/table"
)

// Cache 按缓存 key 保存模拟结果，每个 key 只有一份
type Cache interface {
	Get(key string) (*table.Table, error)
	// Peek 与 Get 相同，但不计入命中统计
	Peek(key string) (*table.Table, error)
	Put(key string, t *table.Table) error
	Delete(key string) error
	List() ([]model.CacheEntry, error)
	Clear() (int, error)
	Stats() model.CacheStats

	// 存储管理
	Init() error
	Close() error
}

// Ledger 记录每一次模拟请求
type Ledger interface {
	Record(ctx context.Context, rec model.RunRecord) error
	Recent(ctx context.Context, limit int) ([]model.RunRecord, error)
	Summary(ctx context.Context) (model.RunSummary, error)
	Close() error
}
