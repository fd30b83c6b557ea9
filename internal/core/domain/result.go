package domain

import "errors"

type Outcome string

const (
	OutcomeReserved          Outcome = "reserved"
	OutcomeReleased          Outcome = "released"
	OutcomeCommitted         Outcome = "committed"
	OutcomeInsufficientStock Outcome = "insufficient_stock"
	OutcomeOverCommit        Outcome = "over_commit"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeContention        Outcome = "contention"
	OutcomeInvalidArgument   Outcome = "invalid_argument"
	OutcomeAlreadyExists     Outcome = "already_exists"
	OutcomeInternal          Outcome = "internal"
)

// Result describes a successful ledger mutation. Quantity is what was
// applied, which for a release may be less than Requested.
type Result struct {
	Outcome   Outcome
	ProductID string
	Requested int
	Quantity  int
	OnHand    int
	Reserved  int
	Available int
	Version   int64
}

func NewResult(outcome Outcome, requested, applied int, record StockRecord) Result {
	return Result{
		Outcome:   outcome,
		ProductID: record.ProductID,
		Requested: requested,
		Quantity:  applied,
		OnHand:    record.OnHand,
		Reserved:  record.Reserved,
		Available: record.Available(),
		Version:   record.Version,
	}
}

// OutcomeOf classifies a ledger error for transports.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.Is(err, ErrOverCommit):
		return OutcomeOverCommit
	case errors.Is(err, ErrContention):
		return OutcomeContention
	case errors.Is(err, ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, ErrAlreadyExists):
		return OutcomeAlreadyExists
	default:
		return OutcomeInternal
	}
}
