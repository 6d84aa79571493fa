package utils

import (
	"context"
	"sync"
)

// ParallelForEach runs fn over every item, at most workers at a time, and
// returns one error slot per item in input order. Cancelling the context
// stops unstarted items; their slots stay nil.
func ParallelForEach[T any](ctx context.Context, items []T, workers int, fn func(context.Context, T) error) []error {
	if workers < 1 {
		workers = 1
	}

	errs := make([]error, len(items))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return errs
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[idx] = fn(ctx, items[idx])
		}(i)
	}

	wg.Wait()
	return errs
}

// FirstError returns the first non-nil error, or nil.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// CollectErrors filters out the nil slots.
func CollectErrors(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
