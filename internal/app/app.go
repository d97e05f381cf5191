// Package app wires configuration, storage and services for the CLI, API and bot.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhi752/pacepilot-os/internal/cache"
	"github.com/nidhi752/pacepilot-os/internal/config"
	"github.com/nidhi752/pacepilot-os/internal/logger"
	"github.com/nidhi752/pacepilot-os/internal/repository"
	"github.com/nidhi752/pacepilot-os/internal/service"
)

type App struct {
	Config   config.Config
	Log      *logger.Logger
	Location *time.Location
	Repos    *repository.Repositories
	Cache    cache.PlanCache
	Planner  *service.PlannerService
	Tasks    *service.TaskService
	Reports  *service.ReportService

	closers []func() error
}

// New opens the database and, when REDIS_ADDR is set, the plan cache.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	log, err := logger.New(cfg.LogMode, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a := &App{Config: cfg, Log: log, Location: loc, Repos: repository.New(db), Cache: cache.Nop{}}
	a.closers = append(a.closers, a.Repos.Close)

	if cfg.RedisAddr != "" {
		redisCache, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.PlanCacheTTL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Cache = redisCache
		a.closers = append(a.closers, redisCache.Close)
		log.Info("plan cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.PlanCacheTTL)
	}

	opts := []service.PlannerOption{service.WithPlanCache(a.Cache)}
	if cfg.DailyBudgetMinutes > 0 {
		opts = append(opts, service.WithDefaultBudget(cfg.DailyBudgetMinutes))
	}
	a.Planner = service.NewPlannerService(a.Repos, log, loc, opts...)
	a.Tasks = service.NewTaskService(a.Repos, a.Cache, log, loc)
	a.Reports = service.NewReportService(a.Planner)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.Log.Sync()
	return first
}
