package scraper

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// workerPool admits independent tasks with a fixed concurrency bound.
// Admission follows submission order even though completion order does not;
// callers that need determinism sort aggregated results afterwards.
type workerPool struct {
	limit int
}

func newWorkerPool(limit int) *workerPool {
	if limit <= 0 {
		limit = 1
	}
	return &workerPool{limit: limit}
}

// run executes task for indexes 0..n-1 and returns once every admitted task
// has finished. Cancellation stops new admissions; in-flight tasks drain.
func (p *workerPool) run(ctx context.Context, n int, task func(ctx context.Context, i int)) {
	g := new(errgroup.Group)
	g.SetLimit(p.limit)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			task(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}
