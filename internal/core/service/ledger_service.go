package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const DefaultMaxRetries = 10

var outcomes = map[domain.Operation]domain.Outcome{
	domain.OperationReserve: domain.OutcomeReserved,
	domain.OperationRelease: domain.OutcomeReleased,
	domain.OperationCommit:  domain.OutcomeCommitted,
}

// LedgerService owns every StockRecord. All mutations go through a
// read, compute, compare-and-swap cycle on the record version and are
// retried a bounded number of times when another writer wins the race.
type LedgerService struct {
	repo       port.StockRepository
	sink       port.EventSink
	logger     *zap.Logger
	tracer     trace.Tracer
	maxRetries int
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

type Option func(*LedgerService)

func WithMaxRetries(n int) Option {
	return func(s *LedgerService) { s.maxRetries = n }
}

func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *LedgerService) { s.newBackOff = newBackOff }
}

func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *LedgerService) { s.tracer = tracer }
}

// NewLedgerService creates a ledger on top of repo. sink may be nil, in which
// case no events are emitted.
func NewLedgerService(repo port.StockRepository, sink port.EventSink, logger *zap.Logger, opts ...Option) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &LedgerService{
		repo:       repo,
		sink:       sink,
		logger:     logger,
		tracer:     otel.Tracer("stock-ledger/ledger"),
		maxRetries: DefaultMaxRetries,
		newBackOff: defaultBackOff,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 20 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

// CreateStock stocks a new product with onHand units and nothing reserved.
func (s *LedgerService) CreateStock(ctx context.Context, productID string, onHand int) (domain.StockRecord, error) {
	record, err := domain.NewStockRecord(productID, onHand, s.now())
	if err != nil {
		return domain.StockRecord{}, err
	}

	if err := s.repo.CreateStock(ctx, record); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.StockRecord{}, fmt.Errorf("%w: %s", domain.ErrAlreadyExists, productID)
		}
		return domain.StockRecord{}, fmt.Errorf("create stock: %w", err)
	}

	s.logger.Info("stock created",
		zap.String("product_id", productID),
		zap.Int("on_hand", onHand),
	)
	return record, nil
}

// Snapshot returns the current authoritative record for productID.
func (s *LedgerService) Snapshot(ctx context.Context, productID string) (domain.StockRecord, error) {
	if productID == "" {
		return domain.StockRecord{}, fmt.Errorf("%w: empty product id", domain.ErrInvalidArgument)
	}

	record, err := s.repo.GetStock(ctx, productID)
	if err != nil {
		return domain.StockRecord{}, fmt.Errorf("get stock: %w", err)
	}
	if record == nil {
		return domain.StockRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, productID)
	}
	return *record, nil
}

func (s *LedgerService) Reserve(ctx context.Context, productID string, qty int) (domain.Result, error) {
	return s.mutate(ctx, domain.OperationReserve, productID, qty, func(current domain.StockRecord, now time.Time) (domain.StockRecord, int, error) {
		next, err := current.Reserve(qty, now)
		return next, qty, err
	})
}

// Release never fails on over-release: the result reports how many units
// were actually returned, which is zero once nothing is reserved.
func (s *LedgerService) Release(ctx context.Context, productID string, qty int) (domain.Result, error) {
	return s.mutate(ctx, domain.OperationRelease, productID, qty, func(current domain.StockRecord, now time.Time) (domain.StockRecord, int, error) {
		next, released := current.Release(qty, now)
		return next, released, nil
	})
}

func (s *LedgerService) Commit(ctx context.Context, productID string, qty int) (domain.Result, error) {
	return s.mutate(ctx, domain.OperationCommit, productID, qty, func(current domain.StockRecord, now time.Time) (domain.StockRecord, int, error) {
		next, err := current.Commit(qty, now)
		return next, qty, err
	})
}

type transition func(current domain.StockRecord, now time.Time) (next domain.StockRecord, applied int, err error)

func (s *LedgerService) mutate(ctx context.Context, op domain.Operation, productID string, qty int, apply transition) (domain.Result, error) {
	if productID == "" {
		return domain.Result{}, fmt.Errorf("%w: empty product id", domain.ErrInvalidArgument)
	}
	if qty <= 0 {
		return domain.Result{}, fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrInvalidArgument, qty)
	}

	ctx, span := s.tracer.Start(ctx, "ledger."+string(op), trace.WithAttributes(
		attribute.String("product_id", productID),
		attribute.Int("quantity", qty),
	))
	defer span.End()

	var (
		attempts int
		next     domain.StockRecord
		applied  int
		changed  bool
	)

	attempt := func() error {
		attempts++

		current, err := s.repo.GetStock(ctx, productID)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("get stock: %w", err))
		}
		if current == nil {
			return backoff.Permanent(fmt.Errorf("%w: %s", domain.ErrNotFound, productID))
		}

		next, applied, err = apply(*current, s.now())
		if err != nil {
			return backoff.Permanent(err)
		}

		changed = next.Version != current.Version
		if !changed {
			return nil
		}
		if err := next.Validate(); err != nil {
			return backoff.Permanent(err)
		}

		if err := s.repo.UpdateStock(ctx, next, current.Version); err != nil {
			if errors.Is(err, domain.ErrOptimisticLock) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("update stock: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxRetries)), ctx)
	err := backoff.Retry(attempt, policy)
	span.SetAttributes(attribute.Int("attempts", attempts))

	if err != nil {
		if errors.Is(err, domain.ErrOptimisticLock) {
			err = fmt.Errorf("%w: %s after %d attempts", domain.ErrContention, productID, attempts)
		}
		s.logFailure(op, productID, qty, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(domain.OutcomeOf(err)))
		return domain.Result{}, err
	}

	if changed {
		s.emit(ctx, op, applied, next)
	}

	s.logger.Info("stock "+string(op),
		zap.String("product_id", productID),
		zap.Int("requested", qty),
		zap.Int("applied", applied),
		zap.Int("available", next.Available()),
		zap.Int64("version", next.Version),
		zap.Int("attempts", attempts),
	)
	span.SetStatus(codes.Ok, "")
	return domain.NewResult(outcomes[op], qty, applied, next), nil
}

func (s *LedgerService) emit(ctx context.Context, op domain.Operation, applied int, record domain.StockRecord) {
	if s.sink == nil {
		return
	}

	// Delivery is detached from the caller once the mutation is durable.
	event := domain.NewStockEvent(op, applied, record)
	if err := s.sink.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("failed to publish stock event",
			zap.Error(err),
			zap.String("event_id", event.ID),
			zap.String("product_id", event.ProductID),
			zap.Int64("version", event.Version),
		)
	}
}

func (s *LedgerService) logFailure(op domain.Operation, productID string, qty int, err error) {
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.String("product_id", productID),
		zap.Int("quantity", qty),
		zap.Error(err),
	}

	switch domain.OutcomeOf(err) {
	case domain.OutcomeInsufficientStock, domain.OutcomeNotFound, domain.OutcomeInvalidArgument:
		s.logger.Info("stock operation rejected", fields...)
	case domain.OutcomeContention:
		s.logger.Warn("stock operation gave up under contention", fields...)
	case domain.OutcomeOverCommit:
		s.logger.Error("commit exceeds reservation", fields...)
	default:
		s.logger.Error("stock operation failed", fields...)
	}
}
