package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds how many calls run at once using a weighted semaphore.
// The page fetcher shares one Pool so a burst of cache misses cannot open
// an unbounded number of upstream connections.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent calls.
// A limit below 1 is clamped to 1.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn and releases the slot. It blocks while all
// slots are busy and returns ctx.Err() if ctx ends first. A nil Pool runs
// fn directly.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
