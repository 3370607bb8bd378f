package downloader

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/ligustah/shardfetch/internal/metrics"
)

// Gate admits at most threadCount concurrent fetches.
type Gate struct {
	sem     *semaphore.Weighted
	fetcher Fetcher
	retries int
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// NewGate creates a gate around fetcher.
func NewGate(fetcher Fetcher, threadCount, retries int, m *metrics.Metrics) *Gate {
	if threadCount <= 0 {
		threadCount = 1
	}
	return &Gate{
		sem:     semaphore.NewWeighted(int64(threadCount)),
		fetcher: fetcher,
		retries: retries,
		metrics: m,
	}
}

// Go blocks until a slot is free, then fetches job in a new goroutine.
// The outcome is passed to emit before the slot is released. Go returns
// an error, without running the job, only if ctx is done while waiting.
func (g *Gate) Go(ctx context.Context, job Job, emit func(Outcome)) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	g.wg.Add(1)
	g.metrics.FetchStarted()
	go func() {
		defer g.wg.Done()
		defer g.sem.Release(1)
		defer g.metrics.FetchFinished()

		emit(g.fetch(ctx, job))
	}()
	return nil
}

// Wait blocks until every admitted fetch has emitted its outcome.
func (g *Gate) Wait() {
	g.wg.Wait()
}

func (g *Gate) fetch(ctx context.Context, job Job) (out Outcome) {
	out.Key = job.Key
	defer func() {
		if r := recover(); r != nil {
			out.Payload = nil
			out.Err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()

	p, err := g.fetcher.FetchWithRetry(ctx, job.URL, g.retries)
	switch {
	case err != nil:
		if p != nil {
			p.Close()
		}
		out.Err = err
	case p == nil:
		out.Err = errNoPayload
	default:
		g.metrics.AddFetchedBytes(p.Len())
		out.Payload = p
	}
	return out
}
