// Package config 加载引擎配置。
//
// 优先级：环境变量 > 配置文件 > 默认值。
// 环境变量以 SHOPREC_ 为前缀，双下划线表示层级，例如：
//
//	SHOPREC_CACHE__BACKEND=redis        -> cache.backend
//	SHOPREC_CACHE__REDIS__ADDR=...      -> cache.redis.addr
//	SHOPREC_ENGINE__SOURCE_TIMEOUT=1s   -> engine.source_timeout
//	SHOPREC_FILTER__BLACKLIST=p1,p2     -> filter.blacklist
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/shoprec/cache"
	"github.com/rushteam/shoprec/engine"
	"github.com/rushteam/shoprec/eval"
	"github.com/rushteam/shoprec/logging"
	"github.com/rushteam/shoprec/pkg/dsl"
	"github.com/rushteam/shoprec/store"
)

const (
	// EnvPrefix 环境变量前缀
	EnvPrefix = "SHOPREC_"
	// PathEnvVar 指定配置文件路径的环境变量
	PathEnvVar = "SHOPREC_CONFIG"
)

// 数据源类型
const (
	SourceMemory   = "memory"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// 缓存后端
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config 是完整的服务配置
type Config struct {
	Engine  engine.Settings `koanf:"engine"`
	Eval    eval.Settings   `koanf:"eval"`
	Cache   CacheConfig     `koanf:"cache"`
	Source  SourceConfig    `koanf:"source"`
	Filter  FilterConfig    `koanf:"filter"`
	Logging logging.Config  `koanf:"logging"`
}

// CacheConfig 结果缓存配置
type CacheConfig struct {
	Backend   string                `koanf:"backend"` // memory | redis | none
	TTL       time.Duration         `koanf:"ttl"`
	OpTimeout time.Duration         `koanf:"op_timeout"`
	Redis     store.RedisConfig     `koanf:"redis"`
	Breaker   cache.BreakerSettings `koanf:"breaker"`
}

// SourceConfig 上游数据配置
type SourceConfig struct {
	Kind string `koanf:"kind"` // memory | file | postgres
	Path string `koanf:"path"` // file: YAML 快照路径
	URL  string `koanf:"url"`  // postgres: 连接串
}

// FilterConfig 候选过滤配置
type FilterConfig struct {
	// Expression 是 CEL 准入表达式，例如 "product.stock > 0"
	Expression string   `koanf:"expression"`
	Blacklist  []string `koanf:"blacklist"`
}

// Defaults 返回默认配置
func Defaults() *Config {
	return &Config{
		Engine: engine.DefaultSettings(),
		Eval:   eval.DefaultSettings(),
		Cache: CacheConfig{
			Backend:   CacheMemory,
			TTL:       cache.DefaultTTL,
			OpTimeout: cache.DefaultOpTimeout,
			Redis: store.RedisConfig{
				Addr:         "localhost:6379",
				DialTimeout:  2 * time.Second,
				ReadTimeout:  time.Second,
				WriteTimeout: time.Second,
				PoolSize:     10,
				KeyPrefix:    "shoprec:",
			},
			Breaker: cache.DefaultBreakerSettings(),
		},
		Source: SourceConfig{
			Kind: SourceFile,
			Path: "shop.yaml",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load 按 默认值 → 配置文件 → 环境变量 的顺序加载配置。
// path 为空时使用 SHOPREC_CONFIG；两者都为空时不读文件。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransformFunc: SHOPREC_CACHE__REDIS__ADDR -> cache.redis.addr
func envTransformFunc(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	if key == "CONFIG" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

// sliceConfigPaths 环境变量中以逗号分隔的列表字段
var sliceConfigPaths = []string{
	"filter.blacklist",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// Validate 校验配置，返回所有问题
func (c *Config) Validate() error {
	var errs []error

	if c.Engine.Threshold <= 0 || c.Engine.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("engine.threshold must be in (0, 1), got %v", c.Engine.Threshold))
	}
	if c.Engine.CandidateMultiplier < 0 {
		errs = append(errs, fmt.Errorf("engine.candidate_multiplier must not be negative"))
	}
	if c.Engine.MaxCount < 0 || c.Engine.DefaultRecommendCount < 0 || c.Engine.DefaultSimilarCount < 0 || c.Engine.MaxPerCategory < 0 {
		errs = append(errs, fmt.Errorf("engine counts must not be negative"))
	}

	if c.Eval.Ceiling <= 0 || c.Eval.Ceiling > 1 {
		errs = append(errs, fmt.Errorf("eval.ceiling must be in (0, 1], got %v", c.Eval.Ceiling))
	}
	if c.Eval.Neutral <= 0 || c.Eval.Neutral > c.Eval.Ceiling {
		errs = append(errs, fmt.Errorf("eval.neutral must be in (0, eval.ceiling], got %v", c.Eval.Neutral))
	}
	if c.Eval.LoadTimeout < 0 {
		errs = append(errs, fmt.Errorf("eval.load_timeout must not be negative"))
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("cache.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be one of memory, redis, none; got %q", c.Cache.Backend))
	}
	if c.Cache.TTL < 0 || c.Cache.OpTimeout < 0 {
		errs = append(errs, fmt.Errorf("cache durations must not be negative"))
	}

	switch c.Source.Kind {
	case SourceMemory:
	case SourceFile:
		if c.Source.Path == "" {
			errs = append(errs, fmt.Errorf("source.path is required for the file source"))
		}
	case SourcePostgres:
		if c.Source.URL == "" {
			errs = append(errs, fmt.Errorf("source.url is required for the postgres source"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind must be one of memory, file, postgres; got %q", c.Source.Kind))
	}

	if c.Filter.Expression != "" {
		if _, err := dsl.Compile(c.Filter.Expression); err != nil {
			errs = append(errs, fmt.Errorf("filter.expression: %w", err))
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
