// Package pool bounds how many status updates may be outstanding against
// the remote order source at once.
package pool

import "context"

// Pool is a counting semaphore.
type Pool struct {
	sem chan struct{}
}

// New creates a pool with at least one slot
// and at most 128 slots.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	if size > 128 {
		size = 128
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Acquire reserves one slot, blocking until one is free or ctx is done.
// It returns ctx.Err() if acquisition is aborted.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a previously acquired slot.
func (p *Pool) Release() {
	<-p.sem
}

// InUse reports how many slots are held.
func (p *Pool) InUse() int { return len(p.sem) }

// Size reports the slot count.
func (p *Pool) Size() int { return cap(p.sem) }
