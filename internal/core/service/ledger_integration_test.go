package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

type integrationStore struct {
	name  string
	setup func(t *testing.T) port.StockRepository
}

func integrationStores() []integrationStore {
	return []integrationStore{
		{"redis", func(t *testing.T) port.StockRepository {
			addr := os.Getenv("REDIS_ADDR")
			if addr == "" {
				addr = "localhost:6379"
			}
			rdb := redis.NewClient(&redis.Options{Addr: addr})
			if err := rdb.Ping(context.Background()).Err(); err != nil {
				t.Skipf("Redis not available: %v", err)
			}
			t.Cleanup(func() { rdb.Close() })
			return storage.NewRedisAdapter(rdb)
		}},
		{"mysql", func(t *testing.T) port.StockRepository {
			dsn := os.Getenv("MYSQL_DSN")
			if dsn == "" {
				dsn = "root:root@tcp(localhost:3306)/stockledger?parseTime=true"
			}
			db, err := sql.Open("mysql", dsn)
			if err != nil {
				t.Skipf("MySQL not available: %v", err)
			}
			if err := db.Ping(); err != nil {
				t.Skipf("MySQL not available: %v", err)
			}
			t.Cleanup(func() { db.Close() })

			adapter := storage.NewMySQLAdapter(db)
			if err := adapter.EnsureSchema(context.Background()); err != nil {
				t.Fatalf("EnsureSchema failed: %v", err)
			}
			return adapter
		}},
	}
}

func TestIntegration_NoOversell(t *testing.T) {
	for _, store := range integrationStores() {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			repo := store.setup(t)
			sink := &recordingSink{}
			ledger := NewLedgerService(repo, sink, zaptest.NewLogger(t), WithMaxRetries(50))

			// Fresh product per run so reruns do not collide
			productID := "integration-" + uuid.New().String()
			initialStock := 10
			if _, err := ledger.CreateStock(ctx, productID, initialStock); err != nil {
				t.Fatalf("create stock failed: %v", err)
			}

			var successCount, soldOut atomic.Int32
			var wg sync.WaitGroup
			totalRequests := 20

			for i := 0; i < totalRequests; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := ledger.Reserve(ctx, productID, 1)
					switch {
					case err == nil:
						successCount.Add(1)
					case errors.Is(err, domain.ErrInsufficientStock):
						soldOut.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			if successCount.Load() != int32(initialStock) {
				t.Errorf("expected %d successful reservations, got %d", initialStock, successCount.Load())
			}
			if soldOut.Load() != int32(totalRequests-initialStock) {
				t.Errorf("expected %d sold out, got %d", totalRequests-initialStock, soldOut.Load())
			}

			rec, err := ledger.Snapshot(ctx, productID)
			if err != nil {
				t.Fatalf("snapshot failed: %v", err)
			}
			if rec.Reserved != initialStock || rec.Available() != 0 {
				t.Errorf("expected reserved %d available 0, got %d/%d", initialStock, rec.Reserved, rec.Available())
			}
			if len(sink.all()) != initialStock {
				t.Errorf("expected %d events, got %d", initialStock, len(sink.all()))
			}
		})
	}
}

func TestIntegration_ReserveCommitRelease(t *testing.T) {
	for _, store := range integrationStores() {
		t.Run(store.name, func(t *testing.T) {
			ctx := context.Background()
			ledger := NewLedgerService(store.setup(t), nil, zaptest.NewLogger(t))

			productID := "flow-" + uuid.New().String()
			if _, err := ledger.CreateStock(ctx, productID, 20); err != nil {
				t.Fatalf("create stock failed: %v", err)
			}

			if _, err := ledger.Reserve(ctx, productID, 6); err != nil {
				t.Fatalf("reserve failed: %v", err)
			}
			if _, err := ledger.Commit(ctx, productID, 4); err != nil {
				t.Fatalf("commit failed: %v", err)
			}
			res, err := ledger.Release(ctx, productID, 10)
			if err != nil {
				t.Fatalf("release failed: %v", err)
			}
			if res.Quantity != 2 {
				t.Errorf("expected 2 released, got %d", res.Quantity)
			}

			rec, _ := ledger.Snapshot(ctx, productID)
			if rec.OnHand != 16 || rec.Reserved != 0 || rec.Version != 4 {
				t.Errorf("expected on hand 16 reserved 0 version 4, got %+v", rec)
			}
		})
	}
}
