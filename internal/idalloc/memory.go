package idalloc

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/rollcall/internal/common"
)

// MemoryStore keeps counters in process memory. It implements both
// AtomicStore and TxStore and is meant for tests and single-process runs.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]Counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: map[string]Counter{}}
}

func (m *MemoryStore) Load(_ context.Context, namespace string) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[namespace]
	if !ok {
		return Counter{}, common.ErrorNotFound
	}
	return c, nil
}

func (m *MemoryStore) Increment(_ context.Context, namespace string, policy Policy) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[namespace]
	if !ok {
		c = Counter{Namespace: namespace, Prefix: policy.Prefix, PadWidth: policy.PadWidth}
	} else if !c.Matches(policy) {
		return Counter{}, ErrPolicyMismatch
	}
	c.LastIssued++
	m.counters[namespace] = c
	return c, nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, expected Counter, next int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[expected.Namespace]
	switch {
	case !ok && expected.LastIssued != 0:
		return common.ErrConflict
	case !ok:
		c = Counter{Namespace: expected.Namespace, Prefix: expected.Prefix, PadWidth: expected.PadWidth}
	case c.LastIssued != expected.LastIssued:
		return common.ErrConflict
	case !c.Matches(expected.Policy()):
		return ErrPolicyMismatch
	}
	c.LastIssued = next
	m.counters[expected.Namespace] = c
	return nil
}

func (m *MemoryStore) Seed(_ context.Context, namespace string, policy Policy, lastIssued int64) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[namespace]
	if ok {
		if !c.Matches(policy) {
			return Counter{}, ErrPolicyMismatch
		}
		if lastIssued < c.LastIssued {
			return Counter{}, fmt.Errorf("%w: counter %q is already at %d", common.ErrInvalidArgument, namespace, c.LastIssued)
		}
	} else {
		c = Counter{Namespace: namespace, Prefix: policy.Prefix, PadWidth: policy.PadWidth}
	}
	c.LastIssued = lastIssued
	m.counters[namespace] = c
	return c, nil
}
