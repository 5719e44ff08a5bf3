package main

import (
	"fmt"

	"corrplot-backend/internal/config"
	"corrplot-backend/internal/plot"
	"corrplot-backend/internal/service"
	"corrplot-backend/internal/storage"
)

// app 持有各命令共用的存储和服务
type app struct {
	cache    storage.Cache
	ledger   storage.Ledger
	sim      *service.SimulationService
	renderer *plot.Renderer
}

func newApp(cfg *config.Config) (*app, error) {
	// 未配置缓存目录时结果只保存在进程内
	var cache storage.Cache = storage.NewMemoryCache()
	if cfg.Cache.Dir != "" {
		cache = storage.NewDiskCache(cfg.Cache.Dir, cfg.Cache.MemoryEntries)
	}
	if err := cache.Init(); err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	var ledger storage.Ledger = storage.NopLedger{}
	if cfg.Ledger.Enabled {
		l, err := storage.NewSQLiteLedger(cfg.Ledger.Path)
		if err != nil {
			cache.Close()
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		ledger = l
	}

	renderer := plot.NewRenderer(plot.Options{
		DPI:    cfg.Plot.DPI,
		Levels: cfg.Plot.Levels,
		VMin:   cfg.Plot.VMin,
		VMax:   cfg.Plot.VMax,
	})

	return &app{
		cache:    cache,
		ledger:   ledger,
		sim:      service.NewSimulationService(cfg.Simulation, cache, ledger, nil),
		renderer: renderer,
	}, nil
}

func (a *app) Close() error {
	lerr := a.ledger.Close()
	if err := a.cache.Close(); err != nil {
		return err
	}
	return lerr
}
