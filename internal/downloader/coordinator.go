package downloader

import (
	"context"

	"github.com/ligustah/shardfetch/internal/metrics"
)

// Coordinator fans fetches out through a Gate and feeds their outcomes
// to one consumer.
type Coordinator struct {
	fetcher     Fetcher
	threadCount int
	retries     int
	metrics     *metrics.Metrics
}

// NewCoordinator creates a coordinator.
func NewCoordinator(fetcher Fetcher, threadCount, retries int, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		fetcher:     fetcher,
		threadCount: threadCount,
		retries:     retries,
		metrics:     m,
	}
}

// Run fetches every job and calls consume once per job, on the calling
// goroutine, in completion order. It returns after the sentinel has been
// consumed and every outcome acknowledged.
//
// If ctx is cancelled, jobs not yet admitted by the gate are reported as
// failures carrying the context error.
func (c *Coordinator) Run(ctx context.Context, jobs []Job, consume func(Outcome)) {
	q := NewQueue(len(jobs) + 1)
	gate := NewGate(c.fetcher, c.threadCount, c.retries, c.metrics)

	producersDone := make(chan struct{})
	go func() {
		defer close(producersDone)
		for i, job := range jobs {
			if err := gate.Go(ctx, job, q.Put); err != nil {
				for _, rest := range jobs[i:] {
					q.Put(Outcome{Key: rest.Key, Err: err})
				}
				break
			}
		}
		gate.Wait()
		q.Put(endOfStream())
	}()

	for {
		o := q.Get()
		if o.isEndOfStream() {
			q.Done()
			break
		}
		func() {
			defer q.Done()
			consume(o)
		}()
	}

	q.Join()
	<-producersDone
}
