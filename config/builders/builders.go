// Package builders 注册内置的数据源与缓存后端，并把一份配置组装成可用的引擎。
//
//	cfg, err := config.Load("shoprec.yaml")
//	rt, err := builders.Build(ctx, cfg)
//	defer rt.Close()
//	err = rt.Engine.Train(ctx)
package builders

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/cache"
	"github.com/rushteam/shoprec/config"
	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/datasource"
	"github.com/rushteam/shoprec/datasource/postgres"
	"github.com/rushteam/shoprec/engine"
	"github.com/rushteam/shoprec/filter"
	"github.com/rushteam/shoprec/logging"
	"github.com/rushteam/shoprec/metrics"
	"github.com/rushteam/shoprec/store"
)

func init() {
	config.RegisterSource(config.SourceMemory, BuildMemorySource)
	config.RegisterSource(config.SourceFile, BuildFileSource)
	config.RegisterSource(config.SourcePostgres, BuildPostgresSource)

	config.RegisterStore(config.CacheMemory, BuildMemoryStore)
	config.RegisterStore(config.CacheRedis, BuildRedisStore)
	config.RegisterStore(config.CacheNone, BuildNoStore)
}

// BuildMemorySource 返回空的内存数据源，由调用方通过 Replace 写入数据
func BuildMemorySource(_ context.Context, _ config.SourceConfig) (core.DataSource, func(), error) {
	return datasource.NewMemory(datasource.Snapshot{}), nil, nil
}

// BuildFileSource 从 YAML 快照加载
func BuildFileSource(_ context.Context, cfg config.SourceConfig) (core.DataSource, func(), error) {
	f, err := datasource.OpenFile(cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	return f, nil, nil
}

// BuildPostgresSource 连接数据库
func BuildPostgresSource(ctx context.Context, cfg config.SourceConfig) (core.DataSource, func(), error) {
	src, err := postgres.Open(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	return src, src.Close, nil
}

func BuildMemoryStore(_ context.Context, _ config.CacheConfig) (core.Store, error) {
	return store.NewMemoryStore(), nil
}

func BuildRedisStore(ctx context.Context, cfg config.CacheConfig) (core.Store, error) {
	r, err := store.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func BuildNoStore(context.Context, config.CacheConfig) (core.Store, error) {
	return nil, nil
}

// BuildFilters 根据配置构建候选过滤器
func BuildFilters(cfg config.FilterConfig) ([]filter.Filter, error) {
	var filters []filter.Filter
	if len(cfg.Blacklist) > 0 {
		filters = append(filters, filter.NewBlacklistFilter(cfg.Blacklist))
	}
	if cfg.Expression != "" {
		f, err := filter.NewExprFilter(cfg.Expression)
		if err != nil {
			return nil, fmt.Errorf("filter expression: %w", err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// Runtime 是组装好的引擎及其依赖
type Runtime struct {
	Engine *engine.Engine
	Source core.DataSource
	Cache  *cache.ResultCache
	Logger zerolog.Logger

	closeSource func()
}

// Close 释放缓存与数据源连接
func (r *Runtime) Close() error {
	err := r.Cache.Close()
	if r.closeSource != nil {
		r.closeSource()
	}
	return err
}

// Build 按配置组装数据源、缓存与引擎
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	logger := logging.New(cfg.Logging)

	src, closeSource, err := config.BuildSource(ctx, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("build source: %w", err)
	}

	st, err := config.BuildStore(ctx, cfg.Cache)
	switch {
	case errors.Is(err, config.ErrUnsupported):
		if closeSource != nil {
			closeSource()
		}
		return nil, fmt.Errorf("build cache store: %w", err)
	case err != nil:
		// 缓存只影响延迟，后端不可用时不带缓存继续运行
		metrics.RecordCacheBackendFailure(cfg.Cache.Backend)
		logger.Warn().Err(err).Str("backend", cfg.Cache.Backend).Msg("cache backend unavailable, running without result cache")
		st = nil
	}
	rc := cache.New(st,
		cache.WithTTL(cfg.Cache.TTL),
		cache.WithOpTimeout(cfg.Cache.OpTimeout),
		cache.WithBreaker(cfg.Cache.Breaker),
		cache.WithLogger(logger),
	)

	filters, err := BuildFilters(cfg.Filter)
	if err != nil {
		_ = rc.Close()
		if closeSource != nil {
			closeSource()
		}
		return nil, err
	}

	e := engine.New(src,
		engine.WithSettings(cfg.Engine),
		engine.WithEvalSettings(cfg.Eval),
		engine.WithCache(rc),
		engine.WithFilters(filters...),
		engine.WithLogger(logger),
	)

	logger.Info().
		Str("source", src.Name()).
		Str("cache", cfg.Cache.Backend).
		Bool("cache_enabled", rc != nil).
		Int("filters", len(filters)).
		Msg("engine assembled")

	return &Runtime{
		Engine:      e,
		Source:      src,
		Cache:       rc,
		Logger:      logger,
		closeSource: closeSource,
	}, nil
}
