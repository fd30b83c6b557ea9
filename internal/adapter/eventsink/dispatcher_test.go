package eventsink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

// Mock EventSink
type mockSink struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	delivered []domain.StockEvent
}

func (m *mockSink) Publish(ctx context.Context, event domain.StockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls <= m.failFirst {
		return errors.New("broker unavailable")
	}
	m.delivered = append(m.delivered, event)
	return nil
}

func (m *mockSink) snapshot() (int, []domain.StockEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]domain.StockEvent(nil), m.delivered...)
}

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func testEvent(version int64) domain.StockEvent {
	rec := domain.StockRecord{ProductID: "item-1", OnHand: 10, Reserved: 1, Version: version}
	return domain.NewStockEvent(domain.OperationReserve, 1, rec)
}

func TestDispatcher_DeliversAllEvents(t *testing.T) {
	sink := &mockSink{}
	d := NewDispatcher(sink, zaptest.NewLogger(t), 100, 3, WithDeliveryBackOff(fastBackOff))
	d.Start()

	for i := int64(1); i <= 20; i++ {
		if err := d.Publish(context.Background(), testEvent(i)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}
	d.Close()

	_, delivered := sink.snapshot()
	if len(delivered) != 20 {
		t.Errorf("expected 20 delivered events, got %d", len(delivered))
	}
}

func TestDispatcher_RetriesFailedDelivery(t *testing.T) {
	sink := &mockSink{failFirst: 2}
	d := NewDispatcher(sink, zaptest.NewLogger(t), 10, 1, WithDeliveryBackOff(fastBackOff))
	d.Start()

	if err := d.Publish(context.Background(), testEvent(2)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	d.Close()

	calls, delivered := sink.snapshot()
	if calls != 3 {
		t.Errorf("expected 3 delivery attempts, got %d", calls)
	}
	if len(delivered) != 1 || delivered[0].Version != 2 {
		t.Errorf("expected event version 2 delivered, got %+v", delivered)
	}
}

func TestDispatcher_KeepsRetryingUntilDelivered(t *testing.T) {
	// More failures than any fixed retry budget would allow
	sink := &mockSink{failFirst: 50}
	d := NewDispatcher(sink, zaptest.NewLogger(t), 10, 1, WithDeliveryBackOff(fastBackOff))
	d.Start()

	d.Publish(context.Background(), testEvent(2))
	d.Close()

	calls, delivered := sink.snapshot()
	if calls != 51 {
		t.Errorf("expected 51 delivery attempts, got %d", calls)
	}
	if len(delivered) != 1 {
		t.Errorf("expected the event to be delivered, got %d", len(delivered))
	}
}

func TestDispatcher_CloseGivesUpAfterDrainTimeout(t *testing.T) {
	sink := &mockSink{failFirst: 1 << 30}
	d := NewDispatcher(sink, zaptest.NewLogger(t), 10, 1,
		WithDeliveryBackOff(fastBackOff),
		WithDrainTimeout(20*time.Millisecond),
	)
	d.Start()

	d.Publish(context.Background(), testEvent(2))

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the drain timeout")
	}

	calls, delivered := sink.snapshot()
	if calls == 0 {
		t.Error("expected at least one delivery attempt")
	}
	if len(delivered) != 0 {
		t.Errorf("expected no delivered events, got %d", len(delivered))
	}
}

func TestDispatcher_PublishAfterClose(t *testing.T) {
	d := NewDispatcher(&mockSink{}, zaptest.NewLogger(t), 10, 1)
	d.Start()
	d.Close()

	err := d.Publish(context.Background(), testEvent(2))
	if !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("expected ErrDispatcherClosed, got: %v", err)
	}

	// Close is idempotent
	d.Close()
}

func TestDispatcher_PublishWaitsForRoom(t *testing.T) {
	// No workers started, so the queue never drains
	d := NewDispatcher(&mockSink{}, zaptest.NewLogger(t), 1, 0)

	if err := d.Publish(context.Background(), testEvent(2)); err != nil {
		t.Fatalf("first publish failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.Publish(ctx, testEvent(3)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected publish to wait until deadline, got: %v", err)
	}

	blocked := make(chan error, 1)
	go func() { blocked <- d.Publish(context.Background(), testEvent(4)) }()

	select {
	case err := <-blocked:
		t.Fatalf("publish returned before close: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()

	select {
	case err := <-blocked:
		if !errors.Is(err, ErrDispatcherClosed) {
			t.Errorf("expected ErrDispatcherClosed, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked publish was not released by Close")
	}
	<-closed
}

// flakySink is unavailable for its first outage calls, then recovers.
type flakySink struct {
	mu        sync.Mutex
	outage    int
	calls     int
	delivered []domain.StockEvent
}

func (f *flakySink) Publish(ctx context.Context, event domain.StockEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls <= f.outage {
		return errors.New("broker unavailable")
	}
	f.delivered = append(f.delivered, event)
	return nil
}

func TestDispatcher_LedgerEventsSurviveSinkOutage(t *testing.T) {
	ctx := context.Background()
	sink := &flakySink{outage: 20}
	d := NewDispatcher(sink, zaptest.NewLogger(t), 10, 1, WithDeliveryBackOff(fastBackOff))
	d.Start()

	ledger := service.NewLedgerService(storage.NewMemoryAdapter(), d, zaptest.NewLogger(t))
	if _, err := ledger.CreateStock(ctx, "item-1", 10); err != nil {
		t.Fatalf("create stock: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := ledger.Reserve(ctx, "item-1", 1); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.delivered) != 3 {
		t.Fatalf("expected 3 delivered events, got %d", len(sink.delivered))
	}

	versions := make(map[int64]bool)
	for _, e := range sink.delivered {
		versions[e.Version] = true
	}
	for v := int64(2); v <= 4; v++ {
		if !versions[v] {
			t.Errorf("missing event for version %d", v)
		}
	}
}
