package domain

import (
	"time"

	"github.com/google/uuid"
)

type Operation string

const (
	OperationReserve Operation = "reserve"
	OperationRelease Operation = "release"
	OperationCommit  Operation = "commit"
)

// StockEvent is emitted once per successful mutation. Consumers must
// tolerate duplicates; ProductID plus Version identifies the mutation.
type StockEvent struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	Operation  Operation `json:"operation"`
	Quantity   int       `json:"quantity"`
	OnHand     int       `json:"on_hand"`
	Reserved   int       `json:"reserved"`
	Available  int       `json:"available"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewStockEvent(op Operation, quantity int, record StockRecord) StockEvent {
	return StockEvent{
		ID:         uuid.New().String(),
		ProductID:  record.ProductID,
		Operation:  op,
		Quantity:   quantity,
		OnHand:     record.OnHand,
		Reserved:   record.Reserved,
		Available:  record.Available(),
		Version:    record.Version,
		OccurredAt: record.UpdatedAt,
	}
}
