package domain

import (
	"fmt"
	"time"
)

type StockRecord struct {
	ProductID string
	OnHand    int
	Reserved  int
	Version   int64 // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewStockRecord(productID string, onHand int, now time.Time) (StockRecord, error) {
	if productID == "" {
		return StockRecord{}, fmt.Errorf("%w: empty product id", ErrInvalidArgument)
	}
	if onHand < 0 {
		return StockRecord{}, fmt.Errorf("%w: on hand must not be negative, got %d", ErrInvalidArgument, onHand)
	}

	return StockRecord{
		ProductID: productID,
		OnHand:    onHand,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s StockRecord) Available() int {
	return s.OnHand - s.Reserved
}

// Validate reports the first broken invariant of the record, if any.
func (s StockRecord) Validate() error {
	switch {
	case s.Reserved < 0:
		return fmt.Errorf("%w: reserved %d is negative", ErrInvariantViolation, s.Reserved)
	case s.Reserved > s.OnHand:
		return fmt.Errorf("%w: reserved %d exceeds on hand %d", ErrInvariantViolation, s.Reserved, s.OnHand)
	case s.Version < 1:
		return fmt.Errorf("%w: version %d", ErrInvariantViolation, s.Version)
	}
	return nil
}

// Reserve moves qty units from available to reserved.
func (s StockRecord) Reserve(qty int, now time.Time) (StockRecord, error) {
	if available := s.Available(); available < qty {
		return s, &InsufficientStockError{ProductID: s.ProductID, Requested: qty, Available: available}
	}

	next := s
	next.Reserved += qty
	return next.bump(now), nil
}

// Release returns up to qty reserved units to availability and reports how
// many were actually released. Releasing nothing leaves the record as is.
func (s StockRecord) Release(qty int, now time.Time) (StockRecord, int) {
	released := min(qty, s.Reserved)
	if released == 0 {
		return s, 0
	}

	next := s
	next.Reserved -= released
	return next.bump(now), released
}

// Commit deducts qty reserved units from on hand stock.
func (s StockRecord) Commit(qty int, now time.Time) (StockRecord, error) {
	if s.Reserved < qty {
		return s, &OverCommitError{ProductID: s.ProductID, Requested: qty, Reserved: s.Reserved}
	}

	next := s
	next.OnHand -= qty
	next.Reserved -= qty
	return next.bump(now), nil
}

func (s StockRecord) bump(now time.Time) StockRecord {
	s.Version++
	s.UpdatedAt = now
	return s
}
