package eventsink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

var ErrDispatcherClosed = errors.New("event dispatcher closed")

const (
	defaultAttemptTimeout = 10 * time.Second
	defaultDrainTimeout   = 30 * time.Second
	maxDeliveryInterval   = 5 * time.Second
)

// Dispatcher decouples event emission from delivery. Events are queued and
// delivered to the downstream sink by a pool of workers. A failed delivery
// is retried with capped backoff until it succeeds or the dispatcher is
// closed, and a full queue makes Publish wait instead of dropping the event.
// Delivery is at-least-once and unordered across workers.
type Dispatcher struct {
	sink    port.EventSink
	logger  *zap.Logger
	queue   chan domain.StockEvent
	workers int

	attemptTimeout time.Duration
	drainTimeout   time.Duration
	newBackOff     func() backoff.BackOff

	// closing unblocks publishers waiting for room; retryCtx is cancelled
	// once the drain timeout of Close expires.
	closing     chan struct{}
	closingOnce sync.Once
	retryCtx    context.Context
	stopRetry   context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

// WithAttemptTimeout bounds a single delivery attempt.
func WithAttemptTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.attemptTimeout = d }
}

// WithDrainTimeout bounds how long Close keeps retrying undelivered events.
func WithDrainTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.drainTimeout = d }
}

func WithDeliveryBackOff(newBackOff func() backoff.BackOff) DispatcherOption {
	return func(disp *Dispatcher) { disp.newBackOff = newBackOff }
}

func defaultDeliveryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxDeliveryInterval
	b.MaxElapsedTime = 0
	return b
}

func NewDispatcher(sink port.EventSink, logger *zap.Logger, queueSize, workers int, opts ...DispatcherOption) *Dispatcher {
	retryCtx, stopRetry := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:           sink,
		logger:         logger,
		queue:          make(chan domain.StockEvent, queueSize),
		workers:        workers,
		attemptTimeout: defaultAttemptTimeout,
		drainTimeout:   defaultDrainTimeout,
		newBackOff:     defaultDeliveryBackOff,
		closing:        make(chan struct{}),
		retryCtx:       retryCtx,
		stopRetry:      stopRetry,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	d.logger.Info("event dispatcher started", zap.Int("workers", d.workers))
}

// Publish enqueues event, waiting for room in the queue while the
// downstream sink catches up.
func (d *Dispatcher) Publish(ctx context.Context, event domain.StockEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- event:
		return nil
	default:
	}

	d.logger.Warn("event queue full, waiting for delivery",
		zap.String("event_id", event.ID),
		zap.String("product_id", event.ProductID),
	)

	select {
	case d.queue <- event:
		return nil
	case <-d.closing:
		return ErrDispatcherClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
// Retries continue for at most the drain timeout; events still undelivered
// after that are logged as dropped.
func (d *Dispatcher) Close() {
	d.closingOnce.Do(func() { close(d.closing) })

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	drain := time.AfterFunc(d.drainTimeout, d.stopRetry)
	d.wg.Wait()
	drain.Stop()
	d.stopRetry()

	d.logger.Info("event dispatcher stopped")
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		d.deliver(id, event)
	}
}

func (d *Dispatcher) deliver(id int, event domain.StockEvent) {
	policy := backoff.WithContext(d.newBackOff(), d.retryCtx)
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("retrying stock event delivery",
			zap.Int("worker", id),
			zap.String("event_id", event.ID),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), d.attemptTimeout)
		defer cancel()
		return d.sink.Publish(ctx, event)
	}, policy, notify)
	if err != nil {
		d.logger.Error("CRITICAL: stock event dropped at shutdown",
			zap.Int("worker", id),
			zap.String("event_id", event.ID),
			zap.String("product_id", event.ProductID),
			zap.Int64("version", event.Version),
			zap.Error(err),
		)
	}
}
