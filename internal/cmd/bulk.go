package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the default number of concurrent workers
const DefaultConcurrency = 5

// BulkResult is the outcome of one job operation.
type BulkResult struct {
	ID      int    `json:"id"`
	Success bool   `json:"success"`
	Error   error  `json:"-"`
	Message string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// runBulkOperation runs operation for every id with bounded parallelism.
// Results come back in the order of ids; ids skipped after cancellation are
// reported as failures with the context error.
func runBulkOperation[T any](
	ctx context.Context,
	ids []int,
	concurrency int64,
	progress bool,
	errOut io.Writer,
	operation func(ctx context.Context, id int) (T, error),
) []BulkResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if errOut == nil {
		errOut = io.Discard
	}

	sem := semaphore.NewWeighted(concurrency)
	results := make([]BulkResult, len(ids))
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = BulkResult{ID: id}
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i].Error = err
				results[i].Message = err.Error()
				return nil
			}
			defer sem.Release(1)

			data, err := operation(gctx, id)
			if err != nil {
				results[i].Error = err
				results[i].Message = err.Error()
			} else {
				results[i].Success = true
				results[i].Data = data
			}

			if progress {
				mu.Lock()
				done++
				_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d", done, len(ids))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if progress && len(ids) > 0 {
		_, _ = fmt.Fprintln(errOut)
	}
	return results
}

// countResults returns success and failure counts from bulk results
func countResults(results []BulkResult) (success, failure int) {
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failure++
		}
	}
	return
}
