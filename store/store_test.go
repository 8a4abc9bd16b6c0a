package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rushteam/shoprec/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := newMemoryStore(time.Hour, clock.Now)
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "recommendations:u1", []byte("v1"), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "forever", []byte("v2"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := s.Get(ctx, "recommendations:u1")
	if err != nil || string(got) != "v1" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	clock.Advance(time.Hour + time.Second)
	if _, err := s.Get(ctx, "recommendations:u1"); !core.IsStoreNotFound(err) {
		t.Errorf("Get() after TTL error = %v, want ErrStoreNotFound", err)
	}
	if _, err := s.Get(ctx, "forever"); err != nil {
		t.Errorf("Get(forever) error = %v", err)
	}

	s.purge()
	if s.Len() != 1 {
		t.Errorf("Len() after purge = %d, want 1", s.Len())
	}
}

func TestMemoryStore_DeleteAndCopy(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	buf := []byte("abc")
	_ = s.Set(ctx, "k", buf, 0)
	buf[0] = 'x'
	got, _ := s.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value mutated by caller: %q", got)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "k"); !core.IsStoreNotFound(err) {
		t.Errorf("Get() after Delete error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SHOPREC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SHOPREC_TEST_REDIS_ADDR not set, skipping redis test")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, RedisConfig{Addr: addr, KeyPrefix: "shoprec-test:"})
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	defer s.Close()

	if err := s.Set(ctx, "similar:A", []byte("[]"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := s.Get(ctx, "similar:A")
	if err != nil || string(got) != "[]" {
		t.Fatalf("Get() = %q, %v", got, err)
	}
	_ = s.Delete(ctx, "similar:A")
	if _, err := s.Get(ctx, "similar:A"); !core.IsStoreNotFound(err) {
		t.Errorf("Get() after Delete error = %v", err)
	}
}
