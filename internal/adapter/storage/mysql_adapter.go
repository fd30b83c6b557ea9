package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, mysqlSchema); err != nil {
		return fmt.Errorf("create stock_records: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateStock(ctx context.Context, record domain.StockRecord) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO stock_records (product_id, on_hand, reserved, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.ProductID, record.OnHand, record.Reserved, record.Version,
		record.CreatedAt, record.UpdatedAt,
	)

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert stock record: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetStock(ctx context.Context, productID string) (*domain.StockRecord, error) {
	var rec domain.StockRecord
	err := m.db.QueryRowContext(ctx, `
		SELECT product_id, on_hand, reserved, version, created_at, updated_at
		FROM stock_records WHERE product_id = ?`, productID,
	).Scan(&rec.ProductID, &rec.OnHand, &rec.Reserved, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock record: %w", err)
	}

	return &rec, nil
}

func (m *MySQLAdapter) UpdateStock(ctx context.Context, record domain.StockRecord, expectedVersion int64) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE stock_records
		SET on_hand = ?, reserved = ?, version = ?, updated_at = ?
		WHERE product_id = ? AND version = ?`,
		record.OnHand, record.Reserved, record.Version, record.UpdatedAt,
		record.ProductID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update stock record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrOptimisticLock
	}

	return nil
}
