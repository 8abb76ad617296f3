package service

import (
	"context"
	"sync"
)

// MemoryTxRunner serializes adjudications against the in-memory stores. It
// gives mutual exclusion, not rollback; only the Postgres runner can undo a
// half-applied approval.
type MemoryTxRunner struct {
	mu sync.Mutex
}

func NewMemoryTxRunner() *MemoryTxRunner {
	return &MemoryTxRunner{}
}

func (r *MemoryTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}
