package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rushteam/shoprec/core"
)

// 使用配置驱动时，需在 main 或入口处 import _ "github.com/rushteam/shoprec/config/builders"
// 以触发内置数据源（memory、file、postgres）与缓存后端（memory、redis、none）的 init 注册。

// SourceBuilder 根据配置构建数据源；返回的 closer 可以为 nil。
type SourceBuilder func(ctx context.Context, cfg SourceConfig) (src core.DataSource, closer func(), err error)

// StoreBuilder 根据配置构建缓存后端；返回 nil Store 表示不启用缓存。
type StoreBuilder func(ctx context.Context, cfg CacheConfig) (core.Store, error)

// ErrUnsupported 表示数据源类型或缓存后端未注册
var ErrUnsupported = errors.New("unsupported")

var (
	registryMu     sync.RWMutex
	sourceBuilders = make(map[string]SourceBuilder)
	storeBuilders  = make(map[string]StoreBuilder)
)

// RegisterSource 注册一种数据源，建议在 init 中调用。
func RegisterSource(kind string, builder SourceBuilder) {
	if kind == "" || builder == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	sourceBuilders[kind] = builder
}

// RegisterStore 注册一种缓存后端，建议在 init 中调用。
func RegisterStore(backend string, builder StoreBuilder) {
	if backend == "" || builder == nil {
		return
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	storeBuilders[backend] = builder
}

// SupportedSources 返回已注册的数据源类型（排序）
func SupportedSources() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedKeys(sourceBuilders)
}

// SupportedStores 返回已注册的缓存后端（排序）
func SupportedStores() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedKeys(storeBuilders)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildSource 按 cfg.Kind 构建数据源；类型未注册时返回包含已支持列表的错误。
func BuildSource(ctx context.Context, cfg SourceConfig) (core.DataSource, func(), error) {
	registryMu.RLock()
	builder, ok := sourceBuilders[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w source kind %q (supported: %v)", ErrUnsupported, cfg.Kind, SupportedSources())
	}
	return builder(ctx, cfg)
}

// BuildStore 按 cfg.Backend 构建缓存后端；后端未注册时返回 ErrUnsupported。
func BuildStore(ctx context.Context, cfg CacheConfig) (core.Store, error) {
	registryMu.RLock()
	builder, ok := storeBuilders[cfg.Backend]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w cache backend %q (supported: %v)", ErrUnsupported, cfg.Backend, SupportedStores())
	}
	return builder(ctx, cfg)
}
