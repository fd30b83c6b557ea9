package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(pool *pgxpool.Pool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create stock_records: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) CreateStock(ctx context.Context, record domain.StockRecord) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO stock_records (product_id, on_hand, reserved, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id) DO NOTHING`,
		record.ProductID, record.OnHand, record.Reserved, record.Version,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stock record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (p *PostgresAdapter) GetStock(ctx context.Context, productID string) (*domain.StockRecord, error) {
	var rec domain.StockRecord
	err := p.pool.QueryRow(ctx, `
		SELECT product_id, on_hand, reserved, version, created_at, updated_at
		FROM stock_records WHERE product_id = $1`, productID,
	).Scan(&rec.ProductID, &rec.OnHand, &rec.Reserved, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock record: %w", err)
	}

	return &rec, nil
}

func (p *PostgresAdapter) UpdateStock(ctx context.Context, record domain.StockRecord, expectedVersion int64) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE stock_records
		SET on_hand = $1, reserved = $2, version = $3, updated_at = $4
		WHERE product_id = $5 AND version = $6`,
		record.OnHand, record.Reserved, record.Version, record.UpdatedAt,
		record.ProductID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update stock record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOptimisticLock
	}

	return nil
}
