// Package cache 是推荐结果的读穿/写穿缓存。
//
// Key 空间：
//   - recommendations:<userId>
//   - similar:<productId>
//
// 缓存只影响延迟，不影响正确性：任何超时、错误、熔断都按未命中处理。
// 条目记录模型版本与请求数量，两者任一不同都视为未命中，重新训练后不会读到旧结果。
package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/metrics"
)

const (
	NamespaceRecommendations = "recommendations"
	NamespaceSimilar         = "similar"
)

const (
	DefaultTTL       = time.Hour
	DefaultOpTimeout = 200 * time.Millisecond
)

// BreakerSettings 熔断配置
type BreakerSettings struct {
	MaxRequests      uint32        `koanf:"max_requests"`      // 半开状态允许的请求数
	Interval         time.Duration `koanf:"interval"`          // 关闭状态下计数清零周期
	Timeout          time.Duration `koanf:"timeout"`           // 打开状态持续时间
	FailureThreshold uint32        `koanf:"failure_threshold"` // 连续失败多少次后打开
}

// DefaultBreakerSettings 返回默认熔断配置
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// RecommendationsKey 返回用户推荐结果的 key
func RecommendationsKey(userID string) string {
	return NamespaceRecommendations + ":" + userID
}

// SimilarKey 返回相似商品结果的 key
func SimilarKey(productID string) string {
	return NamespaceSimilar + ":" + productID
}

type envelope[T any] struct {
	Version  string    `json:"version"`
	Count    int       `json:"count"`
	CachedAt time.Time `json:"cached_at"`
	Items    []T       `json:"items"`
}

// ResultCache 包装一个 core.Store。nil *ResultCache 表示不启用缓存，所有方法可安全调用。
type ResultCache struct {
	store   core.Store
	ttl     time.Duration
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger
}

// Option 配置 ResultCache
type Option func(*options)

type options struct {
	ttl     time.Duration
	timeout time.Duration
	breaker BreakerSettings
	logger  zerolog.Logger
}

// WithTTL 设置条目过期时间，<= 0 时使用默认值
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithOpTimeout 设置单次缓存调用的超时，<= 0 时使用默认值
func WithOpTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithBreaker 设置熔断参数
func WithBreaker(s BreakerSettings) Option {
	return func(o *options) { o.breaker = s }
}

// WithLogger 设置 logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New 创建 ResultCache，store 为 nil 时返回 nil（即不启用缓存）。
func New(store core.Store, opts ...Option) *ResultCache {
	if store == nil {
		return nil
	}
	o := options{
		ttl:     DefaultTTL,
		timeout: DefaultOpTimeout,
		breaker: DefaultBreakerSettings(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &ResultCache{
		store:   store,
		ttl:     o.ttl,
		timeout: o.timeout,
		logger:  o.logger.With().Str("component", "cache").Str("backend", store.Name()).Logger(),
	}
	threshold := o.breaker.FailureThreshold
	if threshold == 0 {
		threshold = DefaultBreakerSettings().FailureThreshold
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "cache." + store.Name(),
		MaxRequests: o.breaker.MaxRequests,
		Interval:    o.breaker.Interval,
		Timeout:     o.breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || core.IsStoreNotFound(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("cache circuit breaker state changed")
		},
	})
	return c
}

// TTL 返回条目过期时间
func (c *ResultCache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// BreakerState 返回熔断器状态（closed/half-open/open）
func (c *ResultCache) BreakerState() string {
	if c == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// GetRecommendations 读取用户推荐结果；版本或数量不同视为未命中。
func (c *ResultCache) GetRecommendations(ctx context.Context, userID, version string, count int) ([]core.Recommendation, bool) {
	return get[core.Recommendation](ctx, c, NamespaceRecommendations, RecommendationsKey(userID), version, count)
}

// PutRecommendations 写入用户推荐结果
func (c *ResultCache) PutRecommendations(ctx context.Context, userID, version string, count int, items []core.Recommendation) {
	put(ctx, c, RecommendationsKey(userID), version, count, items)
}

// GetSimilar 读取相似商品结果
func (c *ResultCache) GetSimilar(ctx context.Context, productID, version string, count int) ([]core.SimilarProduct, bool) {
	return get[core.SimilarProduct](ctx, c, NamespaceSimilar, SimilarKey(productID), version, count)
}

// PutSimilar 写入相似商品结果
func (c *ResultCache) PutSimilar(ctx context.Context, productID, version string, count int, items []core.SimilarProduct) {
	put(ctx, c, SimilarKey(productID), version, count, items)
}

// Close 关闭底层存储
func (c *ResultCache) Close() error {
	if c == nil {
		return nil
	}
	return c.store.Close()
}

func get[T any](ctx context.Context, c *ResultCache, namespace, key, version string, count int) ([]T, bool) {
	if c == nil {
		return nil, false
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.store.Get(opCtx, key)
	})
	switch {
	case core.IsStoreNotFound(err):
		metrics.RecordCache(namespace, metrics.CacheMiss)
		return nil, false
	case err != nil:
		metrics.RecordCache(namespace, metrics.CacheError)
		c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed, recomputing")
		return nil, false
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.RecordCache(namespace, metrics.CacheError)
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, recomputing")
		return nil, false
	}
	if env.Version != version || env.Count != count {
		metrics.RecordCache(namespace, metrics.CacheStale)
		return nil, false
	}
	metrics.RecordCache(namespace, metrics.CacheHit)
	if env.Items == nil {
		env.Items = []T{}
	}
	return env.Items, true
}

func put[T any](ctx context.Context, c *ResultCache, key, version string, count int, items []T) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(envelope[T]{
		Version:  version,
		Count:    count,
		CachedAt: time.Now().UTC(),
		Items:    items,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry encode failed")
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if _, err := c.breaker.Execute(func() ([]byte, error) {
		return nil, c.store.Set(opCtx, key, raw, c.ttl)
	}); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}
