package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("stock record not found")
	ErrAlreadyExists      = errors.New("stock record already exists")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrOverCommit         = errors.New("commit exceeds reserved quantity")
	ErrContention         = errors.New("stock record contention")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOptimisticLock     = errors.New("optimistic lock conflict")
	ErrInvariantViolation = errors.New("stock invariant violated")
)

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Shortfall is the number of units the request exceeds availability by.
func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

type OverCommitError struct {
	ProductID string
	Requested int
	Reserved  int
}

func (e *OverCommitError) Error() string {
	return fmt.Sprintf("over commit for %s: requested %d, reserved %d", e.ProductID, e.Requested, e.Reserved)
}

func (e *OverCommitError) Unwrap() error { return ErrOverCommit }
