package codec

import (
	"context"
	"runtime"
)

// Pool bounds the number of engine invocations in flight.
type Pool struct {
	slots chan struct{}
}

// NewPool returns a pool with n slots; n <= 0 means one per CPU.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Release() { <-p.slots }

func (p *Pool) Size() int { return cap(p.slots) }

func (p *Pool) InUse() int { return len(p.slots) }
