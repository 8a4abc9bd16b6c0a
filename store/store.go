// Package store 提供 core.Store 的两种实现，供结果缓存使用：
//   - MemoryStore：进程内 map，后台定期清理过期 key
//   - RedisStore：go-redis，key 统一加前缀，TTL 交给 Redis
//
//	var s core.Store = store.NewMemoryStore()
//	r, err := store.NewRedisStore(ctx, store.RedisConfig{Addr: "localhost:6379", KeyPrefix: "shoprec:"})
package store
