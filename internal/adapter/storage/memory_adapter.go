package storage

import (
	"context"
	"sync"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type MemoryAdapter struct {
	mu      sync.RWMutex
	records map[string]domain.StockRecord
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{records: make(map[string]domain.StockRecord)}
}

func (m *MemoryAdapter) CreateStock(ctx context.Context, record domain.StockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.ProductID]; ok {
		return domain.ErrAlreadyExists
	}
	m.records[record.ProductID] = record
	return nil
}

func (m *MemoryAdapter) GetStock(ctx context.Context, productID string) (*domain.StockRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[productID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (m *MemoryAdapter) UpdateStock(ctx context.Context, record domain.StockRecord, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.records[record.ProductID]
	if !ok || current.Version != expectedVersion {
		return domain.ErrOptimisticLock
	}
	m.records[record.ProductID] = record
	return nil
}
