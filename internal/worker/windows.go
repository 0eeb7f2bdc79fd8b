// Package worker runs batches of items in fixed concurrency windows:
// up to P items in flight, a barrier between windows, no inter-batch
// pipelining. This bounds memory and keeps progress batch-granular.
package worker

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Progress is invoked after each window barrier with the number of
// items completed so far and the total. May be nil.
type Progress func(done, total int)

// Windows processes items in windows of at most size. Item errors are
// counted, not fatal; the run aborts only on context cancellation. The
// returned count is the number of items whose fn returned an error.
func Windows[T any](ctx context.Context, size int, items []T, fn func(context.Context, T) error, progress Progress) (int, error) {
	if size <= 0 {
		size = 1
	}
	var errCount atomic.Int64

	for start := 0; start < len(items); start += size {
		if err := ctx.Err(); err != nil {
			return int(errCount.Load()), err
		}
		end := start + size
		if end > len(items) {
			end = len(items)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, item := range items[start:end] {
			item := item
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := fn(gctx, item); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					errCount.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return int(errCount.Load()), err
		}
		if progress != nil {
			progress(end, len(items))
		}
	}
	return int(errCount.Load()), nil
}
