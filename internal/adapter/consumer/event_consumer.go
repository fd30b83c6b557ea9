package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

type Reader interface {
	ReadMessage(ctx context.Context) (*kafka.Message, error)
	Close() error
}

// EventConsumer follows the ledger event stream. Delivery is at least once,
// so each (product, version) pair is handled a single time.
type EventConsumer struct {
	reader    Reader
	dedup     port.IdempotencyStore
	threshold int
	logger    *zap.Logger

	newBackOff func() backoff.BackOff
}

type Option func(*EventConsumer)

// WithReadBackOff sets the wait policy between failed reads.
func WithReadBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *EventConsumer) { c.newBackOff = newBackOff }
}

func defaultReadBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func NewEventConsumer(reader Reader, dedup port.IdempotencyStore, lowStockThreshold int, logger *zap.Logger, opts ...Option) *EventConsumer {
	c := &EventConsumer{
		reader:     reader,
		dedup:      dedup,
		threshold:  lowStockThreshold,
		logger:     logger,
		newBackOff: defaultReadBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run reads until ctx is done or the reader is closed. Read failures are
// retried with backoff.
func (c *EventConsumer) Run(ctx context.Context) error {
	c.logger.Info("stock event consumer started")
	wait := c.newBackOff()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("context done, stopping consumer", zap.Error(err))
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("reader closed, stopping consumer")
				return nil
			}

			delay := wait.NextBackOff()
			if delay == backoff.Stop {
				return fmt.Errorf("read stock event: %w", err)
			}
			c.logger.Error("failed to read stock event", zap.Error(err), zap.Duration("retry_in", delay))

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.logger.Info("context done, stopping consumer", zap.Error(ctx.Err()))
				return nil
			}
			continue
		}
		wait.Reset()

		if err := c.Handle(ctx, msg); err != nil {
			c.logger.Error("failed to handle stock event",
				zap.Error(err),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
			)
		}
	}
}

func (c *EventConsumer) Handle(ctx context.Context, msg *kafka.Message) error {
	var event domain.StockEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode stock event: %w", err)
	}

	first, err := c.dedup.MarkProcessed(ctx, DedupKey(event))
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if !first {
		c.logger.Debug("duplicate stock event skipped",
			zap.String("event_id", event.ID),
			zap.String("product_id", event.ProductID),
			zap.Int64("version", event.Version),
		)
		return nil
	}

	c.logger.Info("stock event",
		zap.String("event_id", event.ID),
		zap.String("product_id", event.ProductID),
		zap.String("operation", string(event.Operation)),
		zap.Int("quantity", event.Quantity),
		zap.Int("on_hand", event.OnHand),
		zap.Int("reserved", event.Reserved),
		zap.Int("available", event.Available),
		zap.Int64("version", event.Version),
	)

	if event.Available <= c.threshold {
		c.logger.Warn("low stock",
			zap.String("product_id", event.ProductID),
			zap.Int("available", event.Available),
			zap.Int("threshold", c.threshold),
		)
	}
	return nil
}

func (c *EventConsumer) Close() error {
	return c.reader.Close()
}

// DedupKey identifies an event by the record version it produced.
func DedupKey(event domain.StockEvent) string {
	return fmt.Sprintf("stock-event:%s:%d", event.ProductID, event.Version)
}
