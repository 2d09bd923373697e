// pool.go - Bounded worker pool for proof generation.
//
// Groth16 proving is CPU-bound and can take seconds; the pool caps the
// number of concurrent provers and converts queue-wait deadline expiry
// into a typed Timeout error.

package hybrid

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout reports that a request waited past its deadline for a prover
// slot.
var ErrTimeout = errors.New("hybrid: timed out waiting for a prover slot")

// Pool bounds concurrent proof generation.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a pool with the given number of slots (minimum 1).
func NewPool(slots int64) *Pool {
	if slots < 1 {
		slots = 1
	}
	return &Pool{sem: semaphore.NewWeighted(slots)}
}

// Do runs fn in a pool slot, honoring the context while queued.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrTimeout
		}
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
