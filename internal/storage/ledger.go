package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"corrplot-backend/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteLedger 把每次模拟请求写入 SQLite
type SQLiteLedger struct {
	db *sql.DB
}

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	cache_key TEXT NOT NULL,
	cache_hit INTEGER NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	args TEXT NOT NULL DEFAULT '[]',
	duration_ns INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageInit, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// SQLite 只允许一个写者
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createRunsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func (l *SQLiteLedger) Record(ctx context.Context, rec model.RunRecord) error {
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO runs (id, cache_key, cache_hit, status, error, args, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CacheKey, boolToInt(rec.CacheHit), rec.Status, rec.Error, string(args),
		int64(rec.Duration), rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) Recent(ctx context.Context, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, cache_key, cache_hit, status, error, args, duration_ns, created_at
		 FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger recent: %w", err)
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var (
			rec       model.RunRecord
			hit       int
			args      string
			duration  int64
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.CacheKey, &hit, &rec.Status, &rec.Error, &args, &duration, &createdAt); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &rec.Args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		rec.CacheHit = hit != 0
		rec.Duration = time.Duration(duration)
		rec.CreatedAt = time.Unix(0, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (l *SQLiteLedger) Summary(ctx context.Context) (model.RunSummary, error) {
	var s model.RunSummary
	var mean float64

	err := l.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(cache_hit), 0),
			COALESCE(SUM(CASE WHEN cache_hit = 0 AND status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN cache_hit = 0 AND status = ? THEN duration_ns END), 0)
		FROM runs`, model.RunStatusOK, model.RunStatusFailed, model.RunStatusOK,
	).Scan(&s.Total, &s.Hits, &s.Misses, &s.Failures, &mean)
	if err != nil {
		return s, fmt.Errorf("ledger summary: %w", err)
	}

	s.MeanDuration = time.Duration(mean)
	return s, nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NopLedger 在台账关闭时使用
type NopLedger struct{}

func (NopLedger) Record(context.Context, model.RunRecord) error { return nil }

func (NopLedger) Recent(context.Context, int) ([]model.RunRecord, error) { return nil, nil }

func (NopLedger) Summary(context.Context) (model.RunSummary, error) { return model.RunSummary{}, nil }

func (NopLedger) Close() error { return nil }
