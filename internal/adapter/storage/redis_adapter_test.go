package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func resetRedisRecord(t *testing.T, client *redis.Client, adapter *RedisAdapter, productID string, onHand int) domain.StockRecord {
	t.Helper()
	ctx := context.Background()

	client.Del(ctx, "stock:"+productID)
	rec, _ := domain.NewStockRecord(productID, onHand, time.Now().UTC())
	if err := adapter.CreateStock(ctx, rec); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return rec
}

func TestRedis_CreateStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	rec := resetRedisRecord(t, client, adapter, "test-item", 10)

	if err := adapter.CreateStock(ctx, rec); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got: %v", err)
	}

	got, err := adapter.GetStock(ctx, "test-item")
	if err != nil {
		t.Fatalf("GetStock failed: %v", err)
	}
	if got == nil || got.OnHand != 10 || got.Reserved != 0 || got.Version != 1 {
		t.Errorf("unexpected record: %+v", got)
	}
	if !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("expected updated_at %v, got %v", rec.UpdatedAt, got.UpdatedAt)
	}
}

func TestRedis_GetStock_KeyNotExists(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "stock:nonexistent")

	rec, err := adapter.GetStock(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Error("expected nil for nonexistent key")
	}
}

func TestRedis_UpdateStock_OptimisticLock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	rec := resetRedisRecord(t, client, adapter, "lock-item", 10)

	next, _ := rec.Reserve(3, time.Now().UTC())
	if err := adapter.UpdateStock(ctx, next, rec.Version); err != nil {
		t.Fatalf("UpdateStock failed: %v", err)
	}

	got, _ := adapter.GetStock(ctx, "lock-item")
	if got.Reserved != 3 || got.Version != 2 {
		t.Errorf("expected reserved 3 version 2, got %d/%d", got.Reserved, got.Version)
	}

	if err := adapter.UpdateStock(ctx, next, rec.Version); !errors.Is(err, domain.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got: %v", err)
	}
}

func TestRedis_UpdateStock_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	rec := resetRedisRecord(t, client, adapter, "concurrent-test", 20)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next, _ := rec.Reserve(1, time.Now().UTC())
			err := adapter.UpdateStock(ctx, next, rec.Version)
			if err == nil {
				successCount.Add(1)
			} else if !errors.Is(err, domain.ErrOptimisticLock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != 1 {
		t.Errorf("expected 1 success, got %d", successCount.Load())
	}
}

func TestRedis_MarkProcessed(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "test-idem-key")

	ok, err := adapter.MarkProcessed(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first call to succeed")
	}

	ok, err = adapter.MarkProcessed(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second call to fail")
	}
}

func TestRedis_MarkProcessed_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "concurrent-idem-key")

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.MarkProcessed(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	// Only one should succeed
	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
}
