package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-pipeline counters.
type Metrics struct {
	Instance   string
	PipelineID int

	Received     atomic.Uint64
	Fed          atomic.Uint64
	Skipped      atomic.Uint64
	SourceErrors atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics(instance string, pipelineID int) *Metrics {
	return &Metrics{
		Instance:   instance,
		PipelineID: pipelineID,
	}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Received.Store(0)
	m.Fed.Store(0)
	m.Skipped.Store(0)
	m.SourceErrors.Store(0)
}
