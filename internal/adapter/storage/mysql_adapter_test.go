package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
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

	adapter := NewMySQLAdapter(db)
	if err := adapter.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return adapter, db
}

func resetMySQLRecord(t *testing.T, db *sql.DB, adapter *MySQLAdapter, productID string, onHand int) domain.StockRecord {
	t.Helper()
	ctx := context.Background()

	db.ExecContext(ctx, `DELETE FROM stock_records WHERE product_id = ?`, productID)
	rec, _ := domain.NewStockRecord(productID, onHand, time.Now().UTC().Truncate(time.Microsecond))
	if err := adapter.CreateStock(ctx, rec); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	return rec
}

func TestMySQL_CreateStock_Duplicate(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	rec := resetMySQLRecord(t, db, adapter, "mysql-dup-item", 10)

	err := adapter.CreateStock(context.Background(), rec)
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got: %v", err)
	}
}

func TestMySQL_GetStock(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	resetMySQLRecord(t, db, adapter, "mysql-get-item", 50)

	rec, err := adapter.GetStock(context.Background(), "mysql-get-item")
	if err != nil {
		t.Fatalf("GetStock failed: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record, got nil")
	}
	if rec.OnHand != 50 || rec.Reserved != 0 || rec.Version != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestMySQL_GetStock_NotFound(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	rec, err := adapter.GetStock(context.Background(), "nonexistent-item")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Error("expected nil for nonexistent item")
	}
}

func TestMySQL_UpdateStock_OptimisticLock(t *testing.T) {
	adapter, db := getMySQLAdapter(t)
	defer db.Close()

	ctx := context.Background()
	rec := resetMySQLRecord(t, db, adapter, "mysql-lock-item", 100)

	next, _ := rec.Reserve(10, time.Now().UTC())
	if err := adapter.UpdateStock(ctx, next, rec.Version); err != nil {
		t.Fatalf("UpdateStock failed: %v", err)
	}

	var reserved int
	var version int64
	db.QueryRowContext(ctx, `SELECT reserved, version FROM stock_records WHERE product_id = ?`, rec.ProductID).Scan(&reserved, &version)
	if reserved != 10 || version != 2 {
		t.Errorf("expected reserved 10 version 2, got %d/%d", reserved, version)
	}

	// Try update with stale version
	err := adapter.UpdateStock(ctx, next, rec.Version)
	if !errors.Is(err, domain.ErrOptimisticLock) {
		t.Errorf("expected ErrOptimisticLock, got: %v", err)
	}
}
