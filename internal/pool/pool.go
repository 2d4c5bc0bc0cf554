// Package pool runs a function over contiguous batches of a slice on a fixed
// number of goroutines. Results come back concatenated in batch order, so a
// caller that needs deterministic output gets it regardless of scheduling.
package pool

import (
	"context"
	"runtime"
	"sync"
)

// Map splits items into at most workers contiguous batches, runs fn on each
// batch concurrently and returns the concatenated results in batch order.
// fn must not touch shared state. A non-positive workers count means one
// batch per CPU. If ctx is canceled, batches not yet started are skipped and
// the context error is returned.
func Map[I, O any](ctx context.Context, workers int, items []I, fn func(batch []I) []O) ([]O, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batches := split(items, workers)
	results := make([][]O, len(batches))
	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []I) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			results[i] = fn(batch)
		}(i, batch)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var n int
	for _, r := range results {
		n += len(r)
	}
	out := make([]O, 0, n)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// split cuts items into at most n contiguous batches of near-equal size.
func split[I any](items []I, n int) [][]I {
	if n > len(items) {
		n = len(items)
	}
	batches := make([][]I, 0, n)
	size := (len(items) + n - 1) / n
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
