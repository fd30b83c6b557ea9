package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type StockRepository interface {
	// CreateStock inserts a new record, returns domain.ErrAlreadyExists if the product is stocked
	CreateStock(ctx context.Context, record domain.StockRecord) error

	// GetStock retrieves a record by product ID, returns nil if it does not exist
	GetStock(ctx context.Context, productID string) (*domain.StockRecord, error)

	// UpdateStock writes record only if the stored version still equals expectedVersion,
	// returns domain.ErrOptimisticLock otherwise
	UpdateStock(ctx context.Context, record domain.StockRecord, expectedVersion int64) error
}
