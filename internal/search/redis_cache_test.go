package search

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache, s
}

func TestRedisCacheSetAndGet(t *testing.T) {
	cache, _ := setupTestRedis(t)
	ctx := context.Background()

	want := []Person{{ID: "a", Name: "Ana", StageLabel: "Semillas 2", Week: 3}}
	if err := cache.Set(ctx, "ana", want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok, err := cache.Get(ctx, "ana")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v err %v", ok, err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestRedisCacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	_, ok, err := cache.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Fatal("expected a miss")
	}
}

func TestRedisCacheExpires(t *testing.T) {
	cache, s := setupTestRedis(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "ana", []Person{{ID: "a"}}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	s.FastForward(61 * time.Second)

	if _, ok, _ := cache.Get(ctx, "ana"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRedisCacheClear(t *testing.T) {
	cache, s := setupTestRedis(t)
	ctx := context.Background()

	for _, q := range []string{"ana", "beto", "carla"} {
		if err := cache.Set(ctx, q, nil); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := s.Set("unrelated", "keep"); err != nil {
		t.Fatalf("seed unrelated key: %v", err)
	}

	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "beto"); ok {
		t.Fatal("expected cleared entry to be gone")
	}
	if !s.Exists("unrelated") {
		t.Fatal("Clear removed a key outside its prefix")
	}
}

func TestNewRedisCacheBadURL(t *testing.T) {
	if _, err := NewRedisCache("not-a-url", time.Minute); err == nil {
		t.Fatal("expected error for invalid url")
	}
}
