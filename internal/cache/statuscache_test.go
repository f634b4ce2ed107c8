package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/streamcast/internal/model"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

type countingDelegate struct {
	mu    sync.Mutex
	calls int
	rec   *model.Record
	err   error
}

func (d *countingDelegate) Get(videoID string) (*model.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.rec.Clone(), nil
}

func (d *countingDelegate) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func TestCachedStore_Disabled_PassesThrough(t *testing.T) {
	delegate := &countingDelegate{rec: model.NewRecord("v1")}
	store := New(delegate, nil, time.Minute, nil)

	rec, err := store.Get(context.Background(), "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.VideoID != "v1" {
		t.Errorf("video_id = %s", rec.VideoID)
	}
	if delegate.callCount() != 1 {
		t.Errorf("calls = %d, want 1", delegate.callCount())
	}
}

func TestCachedStore_CacheHitAvoidsDelegate(t *testing.T) {
	client := setupTestRedis(t)
	delegate := &countingDelegate{rec: model.NewRecord("v1")}
	store := New(delegate, client, time.Minute, nil)
	ctx := context.Background()

	if _, err := store.Get(ctx, "v1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if _, err := store.Get(ctx, "v1"); err != nil {
		t.Fatalf("second get: %v", err)
	}

	if delegate.callCount() != 1 {
		t.Errorf("delegate calls = %d, want 1 (second read should hit cache)", delegate.callCount())
	}
}

func TestCachedStore_Invalidate(t *testing.T) {
	client := setupTestRedis(t)
	delegate := &countingDelegate{rec: model.NewRecord("v1")}
	store := New(delegate, client, time.Minute, nil)
	ctx := context.Background()

	_, _ = store.Get(ctx, "v1")
	store.Invalidate(ctx, "v1")
	_, _ = store.Get(ctx, "v1")

	if delegate.callCount() != 2 {
		t.Errorf("delegate calls = %d, want 2 (cache invalidated between reads)", delegate.callCount())
	}
}

func TestCachedStore_ConcurrentReadsCoalesce(t *testing.T) {
	client := setupTestRedis(t)
	delegate := &countingDelegate{rec: model.NewRecord("v1")}
	store := New(delegate, client, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Get(context.Background(), "v1")
		}()
	}
	wg.Wait()

	if delegate.callCount() != 1 {
		t.Errorf("delegate calls = %d, want 1 (overlapping reads share one fetch, later reads hit the cache)", delegate.callCount())
	}
}

func TestCachedStore_InvalidateNoopWhenDisabled(t *testing.T) {
	delegate := &countingDelegate{rec: model.NewRecord("v1")}
	store := New(delegate, nil, time.Minute, nil)
	store.Invalidate(context.Background(), "v1")
}
