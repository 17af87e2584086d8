package idalloc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/rollcall/internal/common"
)

// ErrPolicyMismatch is returned when a caller asks for a prefix or padding
// that differs from the one the namespace counter was created with.
var ErrPolicyMismatch = errors.New("counter policy mismatch")

// Store is the read and administrative surface every counter backend has.
type Store interface {
	// Load returns the counter of namespace or common.ErrorNotFound.
	Load(ctx context.Context, namespace string) (Counter, error)

	// Seed creates the namespace counter at lastIssued, or raises an existing
	// counter to lastIssued. Lowering a counter is refused with
	// common.ErrInvalidArgument; a different policy with ErrPolicyMismatch.
	Seed(ctx context.Context, namespace string, policy Policy, lastIssued int64) (Counter, error)
}

// AtomicStore advances a counter in one indivisible operation.
type AtomicStore interface {
	Store

	// Increment adds one to the namespace counter, creating it with policy
	// when absent, and returns the post-increment state. It returns
	// ErrPolicyMismatch without incrementing when the recorded policy differs.
	Increment(ctx context.Context, namespace string, policy Policy) (Counter, error)
}

// TxStore supports optimistic read-modify-write of a counter.
type TxStore interface {
	Store

	// CompareAndSwap sets the counter to next only if it still equals
	// expected. An expected LastIssued of 0 for a counter that does not exist
	// yet creates it. It returns common.ErrConflict when another writer won.
	CompareAndSwap(ctx context.Context, expected Counter, next int64) error
}

// load treats a missing counter as a fresh one created with p.
func load(ctx context.Context, s Store, namespace string, p Policy) (Counter, error) {
	c, err := s.Load(ctx, namespace)
	if errors.Is(err, common.ErrorNotFound) {
		return Counter{Namespace: namespace, Prefix: p.Prefix, PadWidth: p.PadWidth}, nil
	}
	return c, err
}
