package port

import "context"

type IdempotencyStore interface {
	// MarkProcessed records key, returns false if it was already recorded
	MarkProcessed(ctx context.Context, key string) (bool, error)
}
