package downloader

import "sync"

// Queue hands outcomes from the fetch goroutines to the single consumer.
//
// The buffer holds every outcome a shard can produce plus the sentinel,
// so Put never blocks. Join returns once every item put has been
// acknowledged with Done.
type Queue struct {
	ch      chan Outcome
	pending sync.WaitGroup
}

// NewQueue returns a queue for up to capacity items.
func NewQueue(capacity int) *Queue {
	return &Queue{ch: make(chan Outcome, capacity)}
}

// Put enqueues o.
func (q *Queue) Put(o Outcome) {
	q.pending.Add(1)
	q.ch <- o
}

// Get dequeues the next outcome in arrival order.
func (q *Queue) Get() Outcome {
	return <-q.ch
}

// Done acknowledges that one dequeued item was fully processed.
func (q *Queue) Done() {
	q.pending.Done()
}

// Join waits until every item put so far has been acknowledged.
func (q *Queue) Join() {
	q.pending.Wait()
}
