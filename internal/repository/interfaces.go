package repository

import (
	"context"
	"time"
)

// StateLedger records issued OAuth state values so each can be redeemed once.
type StateLedger interface {
	// Remember stores state for ttl.
	Remember(ctx context.Context, state string, ttl time.Duration) error
	// Consume deletes state and reports whether it was still outstanding.
	Consume(ctx context.Context, state string) (bool, error)
}
