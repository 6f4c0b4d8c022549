// Package batch provides a bounded-concurrency runner for per-item remote
// operations. Item failures are isolated: one failing item never aborts or
// skips the rest of the batch.
package batch

import (
	"context"
	"sync"
)

// ItemError records the failure of a single item.
type ItemError[T any] struct {
	Item T
	Err  error
}

// Runner executes a unit-of-work over a list of items with at most Limit
// invocations in flight at once. Completion order is unspecified.
type Runner[T any] struct {
	// Limit is the concurrency ceiling. Values <= 0 are treated as 1.
	// A limit greater than the item count behaves as unlimited concurrency.
	Limit int

	// Continue, when non-nil, is consulted before each dispatch. Returning
	// false stops scheduling new items; work already in flight runs to
	// completion. This is cooperative, not preemptive.
	Continue func() bool
}

// Run attempts fn for every item exactly once (duplicates are each processed
// independently) and returns the failures in no particular order. It returns
// only after every dispatched item has either succeeded or failed. An empty
// item list completes immediately.
func (r *Runner[T]) Run(ctx context.Context, items []T, fn func(context.Context, T) error) []ItemError[T] {
	if len(items) == 0 {
		return nil
	}

	limit := r.Limit
	if limit <= 0 {
		limit = 1
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []ItemError[T]
	)
	sem := make(chan struct{}, limit)

	for _, item := range items {
		if r.Continue != nil && !r.Continue() {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				failed = append(failed, ItemError[T]{Item: item, Err: err})
				mu.Unlock()
			}
		}(item)
	}

	wg.Wait()
	return failed
}
