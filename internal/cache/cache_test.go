package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func clients(t *testing.T) map[string]Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "t")
	return map[string]Client{
		"memory": NewMemory(),
		"redis":  rc,
	}
}

func TestClient_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
				t.Fatalf("Set err: %v", err)
			}
			got, err := c.Get(ctx, "k")
			if err != nil || got != "v" {
				t.Fatalf("Get = %q, %v", got, err)
			}
			if err := c.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete err: %v", err)
			}
			if _, err := c.Get(ctx, "k"); !IsNotFound(err) {
				t.Fatalf("want ErrNotFound, got %v", err)
			}
		})
	}
}

func TestClient_GetDelIsSingleUse(t *testing.T) {
	ctx := context.Background()
	for name, c := range clients(t) {
		t.Run(name, func(t *testing.T) {
			if err := c.Set(ctx, "one", "shot", time.Minute); err != nil {
				t.Fatalf("Set err: %v", err)
			}
			got, err := c.GetDel(ctx, "one")
			if err != nil || got != "shot" {
				t.Fatalf("GetDel = %q, %v", got, err)
			}
			if _, err := c.GetDel(ctx, "one"); !IsNotFound(err) {
				t.Fatalf("second GetDel must be ErrNotFound, got %v", err)
			}
		})
	}
}

func TestMemory_GetDelConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	_ = c.Set(ctx, "k", "v", time.Minute)

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetDel(ctx, "k"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("want exactly 1 GetDel winner, got %d", count)
	}
}

func TestRedis_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")

	if err := c.Set(ctx, "k", "v", time.Second); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := c.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("expired key must be ErrNotFound, got %v", err)
	}
}
