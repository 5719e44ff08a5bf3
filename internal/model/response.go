package model

import "time"

type CorrelationResponse struct {
	RequestID       string `json:"request_id"`
	CacheKey        string `json:"cache_key"`
	CacheHit        bool   `json:"cache_hit"`
	Correlation     string `json:"correlation"`
	AutoCorrelation string `json:"autocorrelation"`
	ElapsedMs       int64  `json:"elapsed_ms"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

// RunRecord 是运行台账中的一条记录
type RunRecord struct {
	ID        string        `json:"id"`
	CacheKey  string        `json:"cache_key"`
	CacheHit  bool          `json:"cache_hit"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Args      []string      `json:"args,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

const (
	RunStatusOK     = "ok"
	RunStatusFailed = "failed"
)

type RunSummary struct {
	Total        int64         `json:"total"`
	Hits         int64         `json:"hits"`
	Misses       int64         `json:"misses"`
	Failures     int64         `json:"failures"`
	MeanDuration time.Duration `json:"mean_invocation_ns"`
}

type CacheEntry struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}
