// Package pipeline drives one emulated 10BASE-T1S link: frames from a
// source plugin are cut into transport slices and handed to the receive
// handler on a single service goroutine.
package pipeline

import (
	"context"
	"sync"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/log"
	"firestige.xyz/t1sbridge/internal/transport"
	"firestige.xyz/t1sbridge/pkg/plugin"
)

// DefaultBufferSize is the raw frame channel capacity between the source
// and the service goroutine.
const DefaultBufferSize = 64

// Pipeline owns one source and the service goroutine that feeds the
// transport handler. All handler callbacks run on that goroutine.
type Pipeline struct {
	id       int
	instance string
	source   plugin.Source
	chunker  *transport.Chunker
	metrics  *Metrics
	logger   log.Logger

	// Runtime state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	// Channel for backpressure control
	rawFrameChan chan core.RawFrame
}

// Config contains pipeline configuration.
type Config struct {
	ID         int
	Instance   string
	Source     plugin.Source
	Handler    transport.Handler
	Chunker    transport.ChunkerConfig
	BufferSize int // Raw frame channel buffer size
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pipeline{
		id:           cfg.ID,
		instance:     cfg.Instance,
		source:       cfg.Source,
		chunker:      transport.NewChunker(cfg.Chunker, cfg.Handler),
		metrics:      NewMetrics(cfg.Instance, cfg.ID),
		logger:       log.GetLogger().WithField("instance", cfg.Instance),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		rawFrameChan: make(chan core.RawFrame, cfg.BufferSize),
	}
}

// Start starts the source and the service goroutine.
func (p *Pipeline) Start() error {
	p.logger.Infof("pipeline starting: source=%s", p.source.Name())

	if err := p.source.Start(p.ctx); err != nil {
		return err
	}

	p.wg.Add(2)
	go p.captureLoop()
	go p.serviceLoop()

	return nil
}

// Stop stops the pipeline and waits for its goroutines.
func (p *Pipeline) Stop() error {
	p.logger.Info("pipeline stopping")

	p.cancel()
	p.wg.Wait()

	if err := p.source.Stop(context.Background()); err != nil {
		p.logger.WithError(err).Warn("source stop failed")
	}

	p.logger.Info("pipeline stopped")
	return nil
}

// Done is closed once the service goroutine has exited, either because
// the source is exhausted or because the pipeline was stopped.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// captureLoop runs the source until it returns.
func (p *Pipeline) captureLoop() {
	defer p.wg.Done()

	if err := p.source.Capture(p.ctx, p.rawFrameChan); err != nil {
		if p.ctx.Err() == nil {
			p.metrics.SourceErrors.Add(1)
			p.logger.WithError(err).Error("capture failed")
		}
	}

	// Close channel when capture ends
	close(p.rawFrameChan)
}

// serviceLoop plays the role of the driver's service task.
func (p *Pipeline) serviceLoop() {
	defer p.wg.Done()
	defer close(p.done)

	for {
		select {
		case <-p.ctx.Done():
			return

		case raw, ok := <-p.rawFrameChan:
			if !ok {
				p.logger.Debug("source exhausted")
				return
			}
			p.feed(raw)
		}
	}
}

func (p *Pipeline) feed(raw core.RawFrame) {
	p.metrics.Received.Add(1)
	if len(raw.Data) == 0 {
		p.metrics.Skipped.Add(1)
		return
	}
	p.chunker.Feed(raw.Data, raw.Timestamp)
	p.metrics.Fed.Add(1)
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	_, slices := p.chunker.Stats()
	return Stats{
		Received:     p.metrics.Received.Load(),
		Fed:          p.metrics.Fed.Load(),
		Skipped:      p.metrics.Skipped.Load(),
		Slices:       slices,
		SourceErrors: p.metrics.SourceErrors.Load(),
		Source:       p.source.Stats(),
	}
}

// Stats represents pipeline statistics.
type Stats struct {
	Received     uint64
	Fed          uint64
	Skipped      uint64
	Slices       uint64
	SourceErrors uint64
	Source       plugin.SourceStats
}
