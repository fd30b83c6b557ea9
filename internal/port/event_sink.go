package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type EventSink interface {
	// Publish hands an event over for at-least-once delivery
	Publish(ctx context.Context, event domain.StockEvent) error
}
