package agent

import (
	"time"

	"firestige.xyz/t1sbridge/internal/dispatch"
	"firestige.xyz/t1sbridge/internal/inspect"
	"firestige.xyz/t1sbridge/internal/netif"
	"firestige.xyz/t1sbridge/internal/pipeline"
	"firestige.xyz/t1sbridge/internal/queue"
	"firestige.xyz/t1sbridge/internal/reassembly"
)

// Stats aggregates the counters of every component.
type Stats struct {
	Pipeline   pipeline.Stats
	Reassembly reassembly.Stats
	Dispatch   dispatch.Stats
	Queue      queue.Stats
	Stack      netif.Stats
	Inspect    inspect.Stats
	Forwarded  uint64
}

// Stats returns a snapshot of all component counters.
func (a *Agent) Stats() Stats {
	s := Stats{
		Pipeline:   a.pipeline.Stats(),
		Reassembly: a.reassembler.Stats(),
		Dispatch:   a.dispatcher.Stats(),
		Queue:      a.queue.Stats(),
		Inspect:    a.consumer.Stats(),
	}
	if a.stack != nil {
		s.Stack = a.stack.Stats()
	}
	if a.forwarder != nil {
		s.Forwarded = a.forwarder.Forwarded()
	}
	return s
}

func (a *Agent) statusLoop(interval time.Duration) {
	defer a.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.reportStatus()
		case <-a.ctx.Done():
			return
		}
	}
}

// reportStatus logs one line of link state, like the periodic sync report
// of a MAC-PHY driver.
func (a *Agent) reportStatus() {
	s := a.Stats()
	a.logger.Infof("status: rx frames=%d slices=%d dropped=%d, queue %d/%d dropped=%d, stack delivered=%d rejected=%d, inspected=%d captured=%d",
		s.Reassembly.Frames, s.Reassembly.Slices, s.Reassembly.Dropped(),
		s.Queue.Depth, s.Queue.Capacity, s.Queue.Dropped,
		s.Stack.Delivered, s.Dispatch.StackRejected,
		s.Inspect.Frames, s.Inspect.CaptureRecords)
}
