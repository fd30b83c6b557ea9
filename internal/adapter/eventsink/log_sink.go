package eventsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// LogSink writes events to the log. Used when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Publish(ctx context.Context, event domain.StockEvent) error {
	l.logger.Info("stock event",
		zap.String("event_id", event.ID),
		zap.String("product_id", event.ProductID),
		zap.String("operation", string(event.Operation)),
		zap.Int("quantity", event.Quantity),
		zap.Int("on_hand", event.OnHand),
		zap.Int("available", event.Available),
		zap.Int64("version", event.Version),
	)
	return nil
}
