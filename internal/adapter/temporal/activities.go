package temporal

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type StockRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// LedgerActivities exposes the ledger to workflows. Rejections are final;
// contention and store failures are left to the activity retry policy.
type LedgerActivities struct {
	Ledger *service.LedgerService
}

func NewLedgerActivities(ledger *service.LedgerService) *LedgerActivities {
	return &LedgerActivities{Ledger: ledger}
}

func (a *LedgerActivities) ReserveStock(ctx context.Context, req StockRequest) (domain.Result, error) {
	activity.GetLogger(ctx).Info("reserving stock", "product_id", req.ProductID, "quantity", req.Quantity)
	res, err := a.Ledger.Reserve(ctx, req.ProductID, req.Quantity)
	return res, classify(err)
}

// ReleaseStock is the compensation for ReserveStock.
func (a *LedgerActivities) ReleaseStock(ctx context.Context, req StockRequest) (domain.Result, error) {
	activity.GetLogger(ctx).Info("releasing stock", "product_id", req.ProductID, "quantity", req.Quantity)
	res, err := a.Ledger.Release(ctx, req.ProductID, req.Quantity)
	return res, classify(err)
}

func (a *LedgerActivities) CommitStock(ctx context.Context, req StockRequest) (domain.Result, error) {
	activity.GetLogger(ctx).Info("committing stock", "product_id", req.ProductID, "quantity", req.Quantity)
	res, err := a.Ledger.Commit(ctx, req.ProductID, req.Quantity)
	return res, classify(err)
}

func (a *LedgerActivities) SnapshotStock(ctx context.Context, productID string) (domain.StockRecord, error) {
	rec, err := a.Ledger.Snapshot(ctx, productID)
	return rec, classify(err)
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	outcome := domain.OutcomeOf(err)
	switch outcome {
	case domain.OutcomeContention, domain.OutcomeInternal:
		return err
	}

	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		return temporal.NewNonRetryableApplicationError(err.Error(), string(outcome), err, insufficient.Available, insufficient.Shortfall())
	}
	return temporal.NewNonRetryableApplicationError(err.Error(), string(outcome), err)
}
