package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// fixed is a bounded worker pool: capacity concurrent Get()s may be
// outstanding at once, enforced by a weighted semaphore rather than by the
// buffering tricks a plain channel cache would need. Get blocks until a
// slot is free; Put releases the slot a matching Get acquired.
type fixed struct {
	sem   *semaphore.Weighted
	cache chan interface{}
	newFn func() interface{}
}

// NewFixed returns a Pool that never hands out more than capacity workers
// concurrently.
func NewFixed(capacity uint, newFn func() interface{}) Pool {
	return &fixed{
		sem:   semaphore.NewWeighted(int64(capacity)),
		cache: make(chan interface{}, capacity),
		newFn: newFn,
	}
}

func (p *fixed) Get() interface{} {
	// Acquire never fails with a background context; it only blocks.
	_ = p.sem.Acquire(context.Background(), 1)

	select {
	case el := <-p.cache:
		return el
	default:
		return p.newFn()
	}
}

func (p *fixed) Put(el interface{}) {
	select {
	case p.cache <- el:
	default:
	}
	p.sem.Release(1)
}
