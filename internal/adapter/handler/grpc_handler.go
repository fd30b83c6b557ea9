package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

// GRPCHandler reports ledger outcomes in the response body. Only failures
// outside the ledger taxonomy become gRPC status errors.
type GRPCHandler struct {
	ledger *service.LedgerService
}

func NewGRPCHandler(ledger *service.LedgerService) *GRPCHandler {
	return &GRPCHandler{ledger: ledger}
}

func (h *GRPCHandler) CreateStock(ctx context.Context, req *CreateStockRequest) (*StockResponse, error) {
	rec, err := h.ledger.CreateStock(ctx, req.ProductId, int(req.OnHand))
	if err != nil {
		return errorResponse(err)
	}
	return recordToResponse(rec, "stock created"), nil
}

func (h *GRPCHandler) Snapshot(ctx context.Context, req *SnapshotRequest) (*StockResponse, error) {
	rec, err := h.ledger.Snapshot(ctx, req.ProductId)
	if err != nil {
		return errorResponse(err)
	}
	return recordToResponse(rec, "ok"), nil
}

func (h *GRPCHandler) Reserve(ctx context.Context, req *MutationRequest) (*StockResponse, error) {
	return resultResponse(h.ledger.Reserve(ctx, req.GetProductId(), int(req.GetQuantity())))
}

func (h *GRPCHandler) Release(ctx context.Context, req *MutationRequest) (*StockResponse, error) {
	return resultResponse(h.ledger.Release(ctx, req.GetProductId(), int(req.GetQuantity())))
}

func (h *GRPCHandler) Commit(ctx context.Context, req *MutationRequest) (*StockResponse, error) {
	return resultResponse(h.ledger.Commit(ctx, req.GetProductId(), int(req.GetQuantity())))
}

func resultResponse(res domain.Result, err error) (*StockResponse, error) {
	if err != nil {
		return errorResponse(err)
	}

	return &StockResponse{
		Success:   true,
		Outcome:   res.Outcome,
		Message:   "stock " + string(res.Outcome),
		ProductId: res.ProductID,
		Requested: int64(res.Requested),
		Quantity:  int64(res.Quantity),
		OnHand:    int64(res.OnHand),
		Reserved:  int64(res.Reserved),
		Available: int64(res.Available),
		Version:   res.Version,
	}, nil
}

func recordToResponse(rec domain.StockRecord, message string) *StockResponse {
	return &StockResponse{
		Success:   true,
		Message:   message,
		ProductId: rec.ProductID,
		OnHand:    int64(rec.OnHand),
		Reserved:  int64(rec.Reserved),
		Available: int64(rec.Available()),
		Version:   rec.Version,
	}
}

func errorResponse(err error) (*StockResponse, error) {
	outcome := domain.OutcomeOf(err)
	if outcome == domain.OutcomeInternal {
		return nil, status.Error(codes.Internal, "internal error")
	}

	resp := &StockResponse{Outcome: outcome, Message: err.Error()}

	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		resp.Requested = int64(insufficient.Requested)
		resp.Available = int64(insufficient.Available)
		resp.Shortfall = int64(insufficient.Shortfall())
	}

	var over *domain.OverCommitError
	if errors.As(err, &over) {
		resp.Requested = int64(over.Requested)
		resp.Reserved = int64(over.Reserved)
	}

	return resp, nil
}
