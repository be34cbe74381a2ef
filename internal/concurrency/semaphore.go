// Package concurrency provides the bounded concurrency primitives shared
// by the scorer's parallel-scoring fan-out and the batch-embedding
// fan-out: a FIFO-fair weighted semaphore and a database connection pool.
package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore wraps golang.org/x/sync/semaphore.Weighted with the narrower
// acquire(1)/release() contract the selector and embedder need. The
// underlying implementation already serves waiters in FIFO order.
type Semaphore struct {
	weighted *semaphore.Weighted
	width    int64
}

// NewSemaphore creates a semaphore with the given width (maximum
// concurrent holders). A width <= 0 is treated as unbounded (1<<20).
func NewSemaphore(width int) *Semaphore {
	if width <= 0 {
		width = 1 << 20
	}
	return &Semaphore{
		weighted: semaphore.NewWeighted(int64(width)),
		width:    int64(width),
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.weighted.Acquire(ctx, 1)
}

// TryAcquire attempts to acquire a slot without blocking.
func (s *Semaphore) TryAcquire() bool {
	return s.weighted.TryAcquire(1)
}

// Release returns a slot to the semaphore.
func (s *Semaphore) Release() {
	s.weighted.Release(1)
}

// Width returns the configured concurrency width.
func (s *Semaphore) Width() int {
	return int(s.width)
}

// Do runs fn while holding one slot, blocking to acquire it first.
func (s *Semaphore) Do(ctx context.Context, fn func() error) error {
	if err := s.Acquire(ctx); err != nil {
		return err
	}
	defer s.Release()
	return fn()
}
