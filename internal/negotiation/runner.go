package negotiation

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll negotiates every job concurrently, at most limit at a time. Results
// are returned in job order regardless of completion order.
func (n *Negotiator) RunAll(ctx context.Context, month int, jobs []Job, limit int) ([]*Session, error) {
	sessions := make([]*Session, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			sessions[i] = n.Run(gctx, month, job)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sessions, ctx.Err()
}
