// Package dispatch hands completed frames to the network stack and to the
// frame queue.
package dispatch

import (
	"sync/atomic"
	"time"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/log"
	"firestige.xyz/t1sbridge/internal/metrics"
	"firestige.xyz/t1sbridge/internal/queue"
)

// Injector is the network stack's frame input. Input copies data into the
// stack's own buffer before returning.
type Injector interface {
	Input(data []byte) error
}

// Enqueuer accepts frames for the inspection consumer.
type Enqueuer interface {
	TrySend(f core.Frame, timeout time.Duration) error
}

// Stats is a snapshot of dispatch counters.
type Stats struct {
	Delivered     uint64
	StackAccepted uint64
	StackRejected uint64
	QueueAccepted uint64
	QueueDropped  uint64
}

// Dispatcher fans a completed frame out to its two sinks. The sinks are
// independent: a failure on one never prevents delivery to the other.
type Dispatcher struct {
	stack       Injector
	queue       Enqueuer
	sendTimeout time.Duration
	logger      log.Logger

	delivered     atomic.Uint64
	stackAccepted atomic.Uint64
	stackRejected atomic.Uint64
	queueAccepted atomic.Uint64
	queueDropped  atomic.Uint64
}

// New creates a dispatcher. stack or q may be nil to disable that sink.
func New(stack Injector, q Enqueuer, sendTimeout time.Duration, logger log.Logger) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = queue.DefaultSendTimeout
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Dispatcher{
		stack:       stack,
		queue:       q,
		sendTimeout: sendTimeout,
		logger:      logger.WithField("module", "dispatch"),
	}
}

// Deliver implements reassembly.Sink.
func (d *Dispatcher) Deliver(f core.Frame) {
	d.delivered.Add(1)

	if d.stack != nil {
		if err := d.stack.Input(f.Data); err != nil {
			d.stackRejected.Add(1)
			metrics.StackInputTotal.WithLabelValues("rejected").Inc()
			metrics.FrameDropsTotal.WithLabelValues(f.Instance, metrics.ReasonStackInput).Inc()
			d.logger.WithError(err).Warnf("network stack rejected %d byte frame", f.Len())
		} else {
			d.stackAccepted.Add(1)
			metrics.StackInputTotal.WithLabelValues("accepted").Inc()
		}
	}

	if d.queue != nil {
		if err := d.queue.TrySend(f, d.sendTimeout); err != nil {
			d.queueDropped.Add(1)
			metrics.FrameDropsTotal.WithLabelValues(f.Instance, metrics.ReasonQueueFull).Inc()
			d.logger.Warn("RX queue is full, dropping frame")
		} else {
			d.queueAccepted.Add(1)
		}
	}
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered:     d.delivered.Load(),
		StackAccepted: d.stackAccepted.Load(),
		StackRejected: d.stackRejected.Load(),
		QueueAccepted: d.queueAccepted.Load(),
		QueueDropped:  d.queueDropped.Load(),
	}
}
