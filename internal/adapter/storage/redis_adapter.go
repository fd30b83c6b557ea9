package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const (
	stockKeyPrefix    = "stock:"
	idempotencyKeyTTL = 24 * time.Hour
)

var createStockScript = redis.NewScript(`
local key = KEYS[1]

if redis.call('EXISTS', key) == 1 then
	return 0
end

redis.call('HSET', key,
	'on_hand', ARGV[1],
	'reserved', ARGV[2],
	'version', ARGV[3],
	'created_at', ARGV[4],
	'updated_at', ARGV[5])
return 1
`)

var compareAndSwapScript = redis.NewScript(`
local key = KEYS[1]

local current = redis.call('HGET', key, 'version')
if not current then
	return 0
end

if tonumber(current) ~= tonumber(ARGV[1]) then
	return 0
end

redis.call('HSET', key,
	'on_hand', ARGV[2],
	'reserved', ARGV[3],
	'version', ARGV[4],
	'updated_at', ARGV[5])
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) CreateStock(ctx context.Context, record domain.StockRecord) error {
	key := stockKeyPrefix + record.ProductID

	created, err := createStockScript.Run(ctx, r.client, []string{key},
		record.OnHand, record.Reserved, record.Version,
		record.CreatedAt.UnixNano(), record.UpdatedAt.UnixNano(),
	).Int()
	if err != nil {
		return fmt.Errorf("create stock hash: %w", err)
	}
	if created == 0 {
		return domain.ErrAlreadyExists
	}

	return nil
}

// GetStock reads the whole hash in one command so the fields are consistent.
func (r *RedisAdapter) GetStock(ctx context.Context, productID string) (*domain.StockRecord, error) {
	key := stockKeyPrefix + productID

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read stock hash: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return decodeStockHash(productID, fields)
}

func (r *RedisAdapter) UpdateStock(ctx context.Context, record domain.StockRecord, expectedVersion int64) error {
	key := stockKeyPrefix + record.ProductID

	swapped, err := compareAndSwapScript.Run(ctx, r.client, []string{key},
		expectedVersion, record.OnHand, record.Reserved, record.Version,
		record.UpdatedAt.UnixNano(),
	).Int()
	if err != nil {
		return fmt.Errorf("swap stock hash: %w", err)
	}
	if swapped == 0 {
		return domain.ErrOptimisticLock
	}

	return nil
}

func (r *RedisAdapter) MarkProcessed(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func decodeStockHash(productID string, fields map[string]string) (*domain.StockRecord, error) {
	ints := make(map[string]int64, len(fields))
	for _, name := range []string{"on_hand", "reserved", "version", "created_at", "updated_at"} {
		raw, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("stock hash %s: missing field %s", productID, name)
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stock hash %s: field %s: %w", productID, name, err)
		}
		ints[name] = v
	}

	return &domain.StockRecord{
		ProductID: productID,
		OnHand:    int(ints["on_hand"]),
		Reserved:  int(ints["reserved"]),
		Version:   ints["version"],
		CreatedAt: time.Unix(0, ints["created_at"]).UTC(),
		UpdatedAt: time.Unix(0, ints["updated_at"]).UTC(),
	}, nil
}
