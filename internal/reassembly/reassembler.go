// Package reassembly rebuilds Ethernet frames from transport slices.
package reassembly

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/log"
	"firestige.xyz/t1sbridge/internal/metrics"
	"firestige.xyz/t1sbridge/internal/transport"
)

// Mode selects how the end of a frame is detected.
type Mode string

const (
	// ModeExplicit completes frames on OnFrameComplete.
	ModeExplicit Mode = "explicit"
	// ModeInferred completes frames once the expected length is reached.
	ModeInferred Mode = "inferred"
)

const (
	etherTypeIPv4 = 0x0800
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// Sink receives completed frames. Deliver runs on the transport's service
// goroutine and must not block for long.
type Sink interface {
	Deliver(f core.Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f core.Frame)

func (fn SinkFunc) Deliver(f core.Frame) { fn(f) }

// Config configures one reassembler.
type Config struct {
	Instance string
	MTU      int
	Mode     Mode
}

// Stats is a snapshot of reassembly counters.
type Stats struct {
	Slices          uint64
	Frames          uint64
	Overflow        uint64
	OutOfSequence   uint64
	Stale           uint64
	Invalid         uint64
	DriverErrors    uint64
	LengthMismatch  uint64
	Orphan          uint64
	DiscardedSlices uint64
}

// Dropped returns the number of frames that never reached the sink.
func (s Stats) Dropped() uint64 {
	return s.Stale + s.Invalid + s.DriverErrors + s.LengthMismatch
}

type counters struct {
	slices          atomic.Uint64
	frames          atomic.Uint64
	overflow        atomic.Uint64
	outOfSequence   atomic.Uint64
	stale           atomic.Uint64
	invalid         atomic.Uint64
	driverErrors    atomic.Uint64
	lengthMismatch  atomic.Uint64
	orphan          atomic.Uint64
	discardedSlices atomic.Uint64
}

// Reassembler accumulates slices of one transport instance into frames.
//
// OnSlice and OnFrameComplete must be called from a single goroutine.
// Stats may be called concurrently.
type Reassembler struct {
	cfg    Config
	sink   Sink
	logger log.Logger
	now    func() time.Time

	buf      []byte
	acc      int
	open     bool
	invalid  bool
	expected int
	hint     int

	stats counters

	slicesMetric prometheus.Counter
	framesMetric prometheus.Counter
	sizeMetric   prometheus.Observer
}

var _ transport.Handler = (*Reassembler)(nil)
var _ transport.LengthHinter = (*Reassembler)(nil)

// New creates a reassembler delivering completed frames to sink.
func New(cfg Config, sink Sink, logger log.Logger) *Reassembler {
	if cfg.MTU <= 0 {
		cfg.MTU = core.DefaultMTU
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeExplicit
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Reassembler{
		cfg:          cfg,
		sink:         sink,
		logger:       logger.WithField("module", "reassembly").WithField("instance", cfg.Instance),
		now:          time.Now,
		buf:          make([]byte, cfg.MTU),
		slicesMetric: metrics.SlicesTotal.WithLabelValues(cfg.Instance),
		framesMetric: metrics.FramesTotal.WithLabelValues(cfg.Instance),
		sizeMetric:   metrics.FrameSizeBytes.WithLabelValues(cfg.Instance),
	}
}

// ExpectLength announces the total length of the next frame. It is used
// in inferred mode instead of peeking the IPv4 header.
func (r *Reassembler) ExpectLength(n int) {
	r.hint = n
}

// OnSlice implements transport.Handler.
func (r *Reassembler) OnSlice(data []byte, offset int) {
	r.stats.slices.Add(1)
	r.slicesMetric.Inc()
	if r.logger.IsDebugEnabled() {
		r.logger.Debugf("slice received: offset=%d, length=%d", offset, len(data))
	}

	if offset == 0 {
		switch {
		case r.open && r.invalid:
			r.drop(&r.stats.invalid, metrics.ReasonInvalid)
			r.logger.Warnf("invalid frame discarded after %d bytes", r.acc)
		case r.open && r.acc > 0:
			r.drop(&r.stats.stale, metrics.ReasonStale)
			r.logger.Warnf("discarding stale partial frame of %d bytes", r.acc)
		}
		r.reset()
		r.open = true
		r.expected = r.hint
		r.hint = 0
	} else if !r.open {
		r.stats.outOfSequence.Add(1)
		r.stats.discardedSlices.Add(1)
		r.logger.Warnf("slice at offset %d without frame start, discarded", offset)
		return
	}

	if r.invalid {
		r.stats.discardedSlices.Add(1)
		return
	}

	if offset != r.acc {
		r.invalid = true
		r.stats.outOfSequence.Add(1)
		r.logger.Warnf("slice offset %d does not follow %d accumulated bytes", offset, r.acc)
		return
	}

	if r.acc+len(data) > len(r.buf) {
		r.invalid = true
		r.stats.overflow.Add(1)
		r.logger.Warnf("slice overflow: %d + %d bytes exceeds mtu %d", r.acc, len(data), len(r.buf))
		return
	}

	copy(r.buf[r.acc:], data)
	r.acc += len(data)

	if r.cfg.Mode != ModeInferred {
		return
	}
	if r.expected == 0 {
		r.expected = peekFrameLength(r.buf[:r.acc])
	}
	if r.expected > 0 && offset+len(data) >= r.expected {
		r.complete(r.acc, r.now())
	}
}

// OnFrameComplete implements transport.Handler.
func (r *Reassembler) OnFrameComplete(success bool, length int, ts time.Time) {
	if !r.open {
		r.stats.orphan.Add(1)
		metrics.FrameDropsTotal.WithLabelValues(r.cfg.Instance, metrics.ReasonOrphan).Inc()
		r.logger.Warnf("frame completion without a frame in progress (success=%t, length=%d)", success, length)
		return
	}

	if !success {
		r.drop(&r.stats.driverErrors, metrics.ReasonDriverError)
		r.logger.Warnf("driver reported receive error, discarding %d bytes", r.acc)
		r.reset()
		return
	}

	if length <= 0 {
		length = r.acc
	}
	if !r.invalid && length > r.acc {
		r.drop(&r.stats.lengthMismatch, metrics.ReasonLengthMismatch)
		r.logger.Warnf("frame length %d exceeds %d accumulated bytes, discarded", length, r.acc)
		r.reset()
		return
	}

	r.complete(length, ts)
}

// complete dispatches the first n accumulated bytes and closes the frame.
func (r *Reassembler) complete(n int, ts time.Time) {
	defer r.reset()

	if r.invalid {
		r.drop(&r.stats.invalid, metrics.ReasonInvalid)
		r.logger.Warnf("invalid frame discarded after %d bytes", r.acc)
		return
	}

	f, err := core.NewFrame(r.buf[:n], len(r.buf), ts, r.cfg.Instance)
	if err != nil {
		r.drop(&r.stats.invalid, metrics.ReasonInvalid)
		r.logger.WithError(err).Warn("frame rejected")
		return
	}

	r.stats.frames.Add(1)
	r.framesMetric.Inc()
	r.sizeMetric.Observe(float64(n))
	if r.logger.IsTraceEnabled() {
		r.logger.Tracef("frame complete, %d bytes", n)
	}
	r.sink.Deliver(f)
}

func (r *Reassembler) drop(c *atomic.Uint64, reason string) {
	c.Add(1)
	metrics.FrameDropsTotal.WithLabelValues(r.cfg.Instance, reason).Inc()
}

func (r *Reassembler) reset() {
	r.acc = 0
	r.open = false
	r.invalid = false
	r.expected = 0
}

// Pending returns the number of bytes accumulated for the open frame.
func (r *Reassembler) Pending() int {
	if !r.open {
		return 0
	}
	return r.acc
}

// Stats returns a snapshot of the counters.
func (r *Reassembler) Stats() Stats {
	return Stats{
		Slices:          r.stats.slices.Load(),
		Frames:          r.stats.frames.Load(),
		Overflow:        r.stats.overflow.Load(),
		OutOfSequence:   r.stats.outOfSequence.Load(),
		Stale:           r.stats.stale.Load(),
		Invalid:         r.stats.invalid.Load(),
		DriverErrors:    r.stats.driverErrors.Load(),
		LengthMismatch:  r.stats.lengthMismatch.Load(),
		Orphan:          r.stats.orphan.Load(),
		DiscardedSlices: r.stats.discardedSlices.Load(),
	}
}

// peekFrameLength derives the frame length from the IPv4 total length
// field, raised to the Ethernet minimum to cover padding. It returns 0
// while not enough bytes are present or when the frame does not carry IPv4.
func peekFrameLength(b []byte) int {
	const ethLen = 14
	if len(b) < ethLen {
		return 0
	}
	etherType := binary.BigEndian.Uint16(b[12:14])
	off := ethLen
	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(b) < off+4 {
			return 0
		}
		etherType = binary.BigEndian.Uint16(b[off+2 : off+4])
		off += 4
	}
	if etherType != etherTypeIPv4 || len(b) < off+4 {
		return 0
	}
	return max(off+int(binary.BigEndian.Uint16(b[off+2:off+4])), core.MinEthernetFrame)
}
