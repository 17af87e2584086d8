package idalloc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Strategy names accepted by configuration.
const (
	StrategyAtomic        = "atomic"
	StrategyTransactional = "transactional"
)

const (
	DefaultMaxAttempts = 5
	DefaultBackoff     = 2 * time.Millisecond
)

// Allocator issues identifiers. It is safe for concurrent use; all shared
// state lives in the injected store.
type Allocator struct {
	store    Store
	advance  func(ctx context.Context, namespace string, p Policy) (Counter, error)
	strategy string

	padWidths       map[string]int
	defaultPadWidth int
	maxAttempts     int
	backoff         time.Duration
	logger          logging.Logger
}

// Option customizes an Allocator.
type Option func(*Allocator)

// WithPadWidth fixes the zero-padding width used when namespace is created.
func WithPadWidth(namespace string, width int) Option {
	return func(a *Allocator) { a.padWidths[namespace] = width }
}

// WithDefaultPadWidth sets the padding for namespaces without their own.
func WithDefaultPadWidth(width int) Option {
	return func(a *Allocator) { a.defaultPadWidth = width }
}

// WithMaxAttempts caps transactional attempts per allocation.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between transactional attempts. The actual
// delay is jittered by up to the same amount.
func WithBackoff(d time.Duration) Option {
	return func(a *Allocator) {
		if d > 0 {
			a.backoff = d
		}
	}
}

func WithLogger(l logging.Logger) Option {
	return func(a *Allocator) { a.logger = l }
}

func newAllocator(store Store, strategy string, opts []Option) *Allocator {
	a := &Allocator{
		store:       store,
		strategy:    strategy,
		padWidths:   map[string]int{},
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("module", "idalloc", "strategy", strategy)
	return a
}

// NewAtomic returns an Allocator that advances counters with a single
// atomic increment per allocation.
func NewAtomic(store AtomicStore, opts ...Option) *Allocator {
	a := newAllocator(store, StrategyAtomic, opts)
	a.advance = store.Increment
	return a
}

// NewTransactional returns an Allocator that advances counters with
// load + compare-and-swap, retrying conflicts up to the configured number of
// attempts before failing with common.ErrAllocationConflict.
func NewTransactional(store TxStore, opts ...Option) *Allocator {
	a := newAllocator(store, StrategyTransactional, opts)
	a.advance = func(ctx context.Context, namespace string, p Policy) (Counter, error) {
		return a.compareAndSwap(ctx, store, namespace, p)
	}
	return a
}

// New picks the strategy by name. The store must support it.
func New(strategy string, store Store, opts ...Option) (*Allocator, error) {
	switch strategy {
	case StrategyAtomic, "":
		s, ok := store.(AtomicStore)
		if !ok {
			return nil, fmt.Errorf("counter store %T does not support atomic increments", store)
		}
		return NewAtomic(s, opts...), nil
	case StrategyTransactional:
		s, ok := store.(TxStore)
		if !ok {
			return nil, fmt.Errorf("counter store %T does not support compare-and-swap", store)
		}
		return NewTransactional(s, opts...), nil
	default:
		return nil, fmt.Errorf("unknown allocation strategy %q", strategy)
	}
}

// Strategy returns the name of the strategy in use.
func (a *Allocator) Strategy() string { return a.strategy }

func (a *Allocator) policy(namespace, prefix string) (Policy, error) {
	if namespace == "" {
		return Policy{}, fmt.Errorf("%w: namespace is required", common.ErrInvalidArgument)
	}
	width, ok := a.padWidths[namespace]
	if !ok {
		width = a.defaultPadWidth
	}
	p := Policy{Prefix: prefix, PadWidth: width}
	return p, p.validate()
}

// Allocate issues the next identifier of namespace, rendered with prefix.
// The first allocation in a new namespace yields number 1.
func (a *Allocator) Allocate(ctx context.Context, namespace, prefix string) (Identifier, error) {
	p, err := a.policy(namespace, prefix)
	if err != nil {
		return Identifier{}, err
	}

	c, err := a.advance(ctx, namespace, p)
	if err != nil {
		return Identifier{}, a.classify(ctx, namespace, err)
	}

	id := issued(c)
	a.logger.Debug(ctx, "identifier allocated", "namespace", namespace, "id", id.Value)
	return id, nil
}

// Peek returns the current counter without advancing it.
func (a *Allocator) Peek(ctx context.Context, namespace string) (Counter, error) {
	c, err := a.store.Load(ctx, namespace)
	if err != nil {
		return Counter{}, a.classify(ctx, namespace, err)
	}
	return c, nil
}

// Seed moves a namespace counter to lastIssued so that the next allocation
// yields lastIssued+1. It is meant for importing sequences from an older
// system and never lowers a counter.
func (a *Allocator) Seed(ctx context.Context, namespace, prefix string, lastIssued int64) (Counter, error) {
	p, err := a.policy(namespace, prefix)
	if err != nil {
		return Counter{}, err
	}
	if lastIssued < 0 {
		return Counter{}, fmt.Errorf("%w: last issued must not be negative", common.ErrInvalidArgument)
	}
	c, err := a.store.Seed(ctx, namespace, p, lastIssued)
	if err != nil {
		return Counter{}, a.classify(ctx, namespace, err)
	}
	a.logger.Info(ctx, "counter seeded", "namespace", namespace, "last_issued", c.LastIssued)
	return c, nil
}

func (a *Allocator) compareAndSwap(ctx context.Context, store TxStore, namespace string, p Policy) (Counter, error) {
	var (
		out      Counter
		attempts int
	)

	b := retry.WithMaxRetries(uint64(a.maxAttempts-1), retry.WithJitter(a.backoff, retry.NewConstant(a.backoff)))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++

		cur, err := load(ctx, store, namespace, p)
		if err != nil {
			return err
		}
		if !cur.Matches(p) {
			return ErrPolicyMismatch
		}

		next := cur.LastIssued + 1
		if err := store.CompareAndSwap(ctx, cur, next); err != nil {
			if errors.Is(err, common.ErrConflict) {
				a.logger.Debug(ctx, "counter conflict, retrying", "namespace", namespace, "attempt", attempts)
				return retry.RetryableError(err)
			}
			return err
		}

		out = cur
		out.LastIssued = next
		return nil
	})
	if errors.Is(err, common.ErrConflict) {
		return Counter{}, fmt.Errorf("%w: namespace %q after %d attempts", common.ErrAllocationConflict, namespace, attempts)
	}
	return out, err
}

// classify maps store errors onto the allocator error kinds. Anything that
// is not a known condition means the store could not serve the request.
func (a *Allocator) classify(ctx context.Context, namespace string, err error) error {
	switch {
	case errors.Is(err, common.ErrAllocationConflict),
		errors.Is(err, common.ErrInvalidArgument),
		errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrStoreUnavailable):
		return err
	case errors.Is(err, ErrPolicyMismatch):
		return fmt.Errorf("%w: namespace %q: %w", common.ErrInvalidArgument, namespace, err)
	case errors.Is(err, common.ErrConflict):
		return fmt.Errorf("%w: namespace %q: %w", common.ErrAllocationConflict, namespace, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	a.logger.Error(ctx, "counter store failure", "namespace", namespace, "error", err)
	return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
}
