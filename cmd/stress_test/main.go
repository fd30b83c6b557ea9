package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	productID     = "flash-sale-item"
	initialStock  = 20
	totalRequests = 50
	maxRetries    = 50
)

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	rdb.Del(ctx, "stock:"+productID)

	// Initialize adapter and ledger
	ledger := service.NewLedgerService(storage.NewRedisAdapter(rdb), nil, nil, service.WithMaxRetries(maxRetries))
	if _, err := ledger.CreateStock(ctx, productID, initialStock); err != nil {
		log.Fatalf("failed to create stock: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var insufficientCount atomic.Int32
	var contentionCount atomic.Int32

	// Spawn concurrent reservations
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := ledger.Reserve(ctx, productID, 1)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				insufficientCount.Add(1)
			case errors.Is(err, domain.ErrContention):
				contentionCount.Add(1)
			default:
				log.Printf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	insufficient := insufficientCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Reserved:         %d\n", success)
	fmt.Printf("Insufficient:     %d\n", insufficient)
	fmt.Printf("Contention:       %d\n", contentionCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == initialStock && insufficient == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d reservations succeeded, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d reserved/%d insufficient, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, insufficient)
	}

	// Verify final record
	rec, err := ledger.Snapshot(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	fmt.Printf("Final Record:     on_hand=%d reserved=%d available=%d version=%d\n",
		rec.OnHand, rec.Reserved, rec.Available(), rec.Version)

	if rec.Available() == 0 && rec.Reserved == initialStock && rec.Version == int64(initialStock+1) {
		fmt.Println("PASS: Stock fully reserved, one version per reservation")
	} else {
		fmt.Printf("FAIL: Expected available 0 reserved %d, got %d/%d\n", initialStock, rec.Available(), rec.Reserved)
	}
}
