// Package queue implements the bounded frame hand-off between the transport
// service goroutine and frame consumers.
package queue

import (
	"context"
	"sync/atomic"
	"time"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/metrics"
)

// DefaultCapacity is the number of frames the queue holds.
const DefaultCapacity = 10

// DefaultSendTimeout bounds how long the producer waits on a full queue.
const DefaultSendTimeout = 100 * time.Millisecond

// Stats is a snapshot of queue counters.
type Stats struct {
	Sent     uint64
	Received uint64
	Dropped  uint64
	Depth    int
	Capacity int
}

// Queue is a fixed-capacity FIFO of frames. TrySend never blocks longer
// than its timeout; a full queue drops the frame and counts it.
type Queue struct {
	ch chan core.Frame

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a queue holding at most capacity frames.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan core.Frame, capacity)}
}

// TrySend enqueues f, waiting up to timeout for space. It returns
// core.ErrQueueFull when the frame was not accepted.
func (q *Queue) TrySend(f core.Frame, timeout time.Duration) error {
	select {
	case q.ch <- f:
		q.accepted()
		return nil
	default:
	}

	if timeout <= 0 {
		q.dropped.Add(1)
		return core.ErrQueueFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.ch <- f:
		q.accepted()
		return nil
	case <-timer.C:
		q.dropped.Add(1)
		return core.ErrQueueFull
	}
}

func (q *Queue) accepted() {
	q.sent.Add(1)
	metrics.QueueDepth.Set(float64(len(q.ch)))
}

// Receive blocks until a frame is available or ctx is done.
func (q *Queue) Receive(ctx context.Context) (core.Frame, error) {
	select {
	case f := <-q.ch:
		q.received.Add(1)
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return f, nil
	case <-ctx.Done():
		return core.Frame{}, ctx.Err()
	}
}

// TryReceive returns the next frame without blocking.
func (q *Queue) TryReceive() (core.Frame, bool) {
	select {
	case f := <-q.ch:
		q.received.Add(1)
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return f, true
	default:
		return core.Frame{}, false
	}
}

// Len returns the number of queued frames.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Sent:     q.sent.Load(),
		Received: q.received.Load(),
		Dropped:  q.dropped.Load(),
		Depth:    len(q.ch),
		Capacity: cap(q.ch),
	}
}
