package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"corrplot-backend/internal/config"
	"corrplot-backend/internal/model"
	"corrplot-backend/internal/storage"
	"corrplot-backend/internal/table"
	"corrplot-backend/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// SimulationResult 是一次请求得到的结果
type SimulationResult struct {
	Key      string
	Table    *table.Table
	CacheHit bool
	Args     []string
	Duration time.Duration
}

type SimulationService struct {
	cfg      config.SimulationConfig
	cache    storage.Cache
	ledger   storage.Ledger
	executor Executor

	// 相同 key 的并发请求只调用一次模拟程序
	group singleflight.Group
	// 同一结果目录同时只允许一个模拟程序写入
	dirLocks sync.Map
}

func NewSimulationService(cfg config.SimulationConfig, cache storage.Cache, ledger storage.Ledger, executor Executor) *SimulationService {
	if ledger == nil {
		ledger = storage.NopLedger{}
	}
	if executor == nil {
		executor = ProcessExecutor{}
	}
	return &SimulationService{
		cfg:      cfg,
		cache:    cache,
		ledger:   ledger,
		executor: executor,
	}
}

func (s *SimulationService) Cache() storage.Cache {
	return s.cache
}

func (s *SimulationService) Ledger() storage.Ledger {
	return s.ledger
}

// Run 返回参数对应的结果表：命中缓存直接返回，否则调用模拟程序并写入缓存。
// 调用失败不重试。
func (s *SimulationService) Run(ctx context.Context, p model.Params) (*SimulationResult, error) {
	key, err := p.CacheKey()
	if err != nil {
		return nil, &SimulationError{Stage: StageParams, Err: err}
	}

	start := time.Now()
	log := logger.WithFields(logger.Fields{"cache_key": key})

	if t, err := s.cache.Get(key); err == nil {
		log.Debug("cache hit")
		res := &SimulationResult{Key: key, Table: t, CacheHit: true, Duration: time.Since(start)}
		s.record(ctx, res, nil)
		return res, nil
	} else if !errors.Is(err, storage.ErrCacheMiss) {
		log.Warnf("unreadable cache entry, recomputing: %v", err)
	}

	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		// 等待期间其他请求可能已经写好缓存，外层已计过一次未命中
		if t, err := s.cache.Peek(key); err == nil {
			return &SimulationResult{Key: key, Table: t, CacheHit: true}, nil
		}
		return s.compute(ctx, key, p)
	})
	if shared {
		log.Debug("joined in-flight simulation")
	}

	var res *SimulationResult
	if v != nil {
		copied := *v.(*SimulationResult)
		res = &copied
		res.Duration = time.Since(start)
	} else {
		res = &SimulationResult{Key: key, Duration: time.Since(start)}
	}
	s.record(ctx, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *SimulationService) compute(ctx context.Context, key string, p model.Params) (*SimulationResult, error) {
	inv := p.WithDefaults(s.defaults(), s.cfg.ResDir, s.cfg.Sweeps)
	args := inv.Args()
	res := &SimulationResult{Key: key, Args: args}

	workDir, err := filepath.Abs(s.cfg.WorkDir)
	if err != nil {
		return res, &SimulationError{Key: key, Stage: StageInvoke, Err: fmt.Errorf("%w: %v", ErrInvocationFailed, err)}
	}
	binary := s.cfg.Binary
	if !filepath.IsAbs(binary) {
		binary = filepath.Join(workDir, binary)
	}
	resultDir := inv.ResultDir(workDir)

	unlock := s.lockDir(resultDir)
	defer unlock()

	before := snapshot(resultDir)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	log := logger.WithFields(logger.Fields{"cache_key": key, "binary": binary})
	log.Infof("cache miss, invoking simulation with %d args", len(args))

	started := time.Now()
	stdout, err := s.executor.Run(ctx, workDir, binary, args)
	if err != nil {
		return res, &SimulationError{Key: key, Stage: StageInvoke, Err: fmt.Errorf("%w: %w", ErrInvocationFailed, err)}
	}
	log.WithField("elapsed", time.Since(started)).Info("simulation finished")

	path, err := locateOutput(stdout, workDir, resultDir, before)
	if err != nil {
		return res, &SimulationError{Key: key, Stage: StageLocate, Err: err}
	}

	t, err := table.ReadFile(path)
	if err != nil {
		return res, &SimulationError{Key: key, Stage: StageLoad, Err: fmt.Errorf("%w: %s: %v", ErrInvalidResult, path, err)}
	}

	if err := os.Remove(path); err != nil {
		log.Warnf("failed to remove transient result %s: %v", path, err)
	}

	if err := s.cache.Put(key, t); err != nil {
		// 结果仍然可用，只是下次需要重新计算
		log.Error(&SimulationError{Key: key, Stage: StagePersist, Err: err})
	}

	res.Table = t
	return res, nil
}

func (s *SimulationService) defaults() []model.Flag {
	flags := make([]model.Flag, 0, len(s.cfg.Defaults))
	for _, d := range s.cfg.Defaults {
		flags = append(flags, model.Flag{Key: d.Key, Value: d.Value})
	}
	return flags
}

func (s *SimulationService) lockDir(dir string) func() {
	v, _ := s.dirLocks.LoadOrStore(dir, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *SimulationService) record(ctx context.Context, res *SimulationResult, runErr error) {
	rec := model.RunRecord{
		ID:        uuid.NewString(),
		CacheKey:  res.Key,
		CacheHit:  res.CacheHit,
		Status:    model.RunStatusOK,
		Args:      res.Args,
		Duration:  res.Duration,
		CreatedAt: time.Now(),
	}
	if runErr != nil {
		rec.Status = model.RunStatusFailed
		rec.Error = runErr.Error()
	}
	// 台账写入不受请求取消影响
	if err := s.ledger.Record(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warnf("Failed to record run %s: %v", rec.ID, err)
	}
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// snapshot 记录结果目录中已有的文件，用于区分本次调用新写出的文件
func snapshot(dir string) map[string]fileStamp {
	out := make(map[string]fileStamp)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if !isResultFile(e) {
			continue
		}
		if info, err := e.Info(); err == nil {
			out[e.Name()] = fileStamp{size: info.Size(), modTime: info.ModTime()}
		}
	}
	return out
}

// isResultFile 跳过目录和 .gitkeep 之类的隐藏占位文件
func isResultFile(e os.DirEntry) bool {
	return !e.IsDir() && !strings.HasPrefix(e.Name(), ".")
}

// locateOutput 优先使用模拟程序在 stdout 最后一行报告的路径，
// 否则在结果目录中找本次新写出的唯一文件。
// 报告的路径必须位于结果目录内，读取后该文件会被删除。
func locateOutput(stdout []byte, workDir, resultDir string, before map[string]fileStamp) (string, error) {
	if p := lastLine(stdout); p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(workDir, p)
		}
		if within(resultDir, p) {
			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return p, nil
			}
		}
	}

	entries, err := os.ReadDir(resultDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResultNotFound, err)
	}

	var candidates []string
	for _, e := range entries {
		if !isResultFile(e) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if prev, ok := before[e.Name()]; ok && prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
			continue
		}
		candidates = append(candidates, e.Name())
	}

	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: in %s", ErrResultNotFound, resultDir)
	case 1:
		return filepath.Join(resultDir, candidates[0]), nil
	default:
		return "", fmt.Errorf("%w: %s in %s", ErrAmbiguousResult, strings.Join(candidates, ", "), resultDir)
	}
}

// within 判断 path 是否在 dir 之下（不含 dir 本身）
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, filepath.Clean(path))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func lastLine(out []byte) string {
	var last string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	return last
}
