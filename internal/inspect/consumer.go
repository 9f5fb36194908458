// Package inspect implements the diagnostic consumer of the frame queue.
// It logs a hex and ASCII rendering of each frame and its UDP payload and
// records the frame to the capture file and the frame mirror.
package inspect

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/patrickmn/go-cache"

	"firestige.xyz/t1sbridge/internal/capture"
	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/core/decoder"
	"firestige.xyz/t1sbridge/internal/log"
	"firestige.xyz/t1sbridge/internal/metrics"
)

// State is the consumer lifecycle state.
type State int32

const (
	StateStartup State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStartup:
		return "startup"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	DefaultMaxDumpBytes = 256
	DefaultWarnWindow   = 10 * time.Second

	drainTimeout = 2 * time.Second
)

// FrameSource is the consumer side of the frame queue.
type FrameSource interface {
	Receive(ctx context.Context) (core.Frame, error)
	TryReceive() (core.Frame, bool)
}

// Publisher mirrors frames to a remote collector.
type Publisher interface {
	Publish(ctx context.Context, f core.Frame) error
	Close() error
}

// Config configures the consumer.
type Config struct {
	HexDump      bool
	MaxDumpBytes int
	MTU          int
	LayerSummary bool
	// WarnWindow suppresses repeated extraction warnings for the same
	// reason and source station. Zero logs every failure.
	WarnWindow time.Duration
	// Capture enables the pcap sink when non-nil.
	Capture *capture.Config
}

// Stats is a snapshot of consumer counters.
type Stats struct {
	Frames         uint64
	PayloadOK      uint64
	PayloadFailed  uint64
	Suppressed     uint64
	CaptureRecords uint64
	CaptureErrors  uint64
	MirrorErrors   uint64
}

// Consumer drains the frame queue.
type Consumer struct {
	cfg    Config
	src    FrameSource
	mirror Publisher
	logger log.Logger

	state   atomic.Int32
	session atomic.Pointer[capture.Session]
	warned  *cache.Cache

	frames        atomic.Uint64
	payloadOK     atomic.Uint64
	payloadFailed atomic.Uint64
	suppressed    atomic.Uint64
	captureErrors atomic.Uint64
	mirrorErrors  atomic.Uint64
}

// NewConsumer creates a consumer reading from src. mirror may be nil.
func NewConsumer(cfg Config, src FrameSource, mirror Publisher, logger log.Logger) *Consumer {
	if cfg.MTU <= 0 {
		cfg.MTU = core.DefaultMTU
	}
	if cfg.MaxDumpBytes <= 0 || cfg.MaxDumpBytes > cfg.MTU {
		cfg.MaxDumpBytes = min(DefaultMaxDumpBytes, cfg.MTU)
	}
	if logger == nil {
		logger = log.GetLogger()
	}

	c := &Consumer{
		cfg:    cfg,
		src:    src,
		mirror: mirror,
		logger: logger.WithField("module", "inspect"),
	}
	if cfg.WarnWindow > 0 {
		c.warned = cache.New(cfg.WarnWindow, 2*cfg.WarnWindow)
	}
	return c
}

// State returns the lifecycle state.
func (c *Consumer) State() State { return State(c.state.Load()) }

// Start opens the capture session. A failure disables capture for the
// rest of the run and is not returned as an error.
func (c *Consumer) Start() {
	if c.State() != StateStartup {
		return
	}

	if c.cfg.Capture != nil {
		s, err := capture.Open(*c.cfg.Capture)
		if err != nil {
			c.logger.WithError(err).Errorf("capture disabled, cannot open %s", c.cfg.Capture.Path)
		} else {
			c.session.Store(s)
			c.logger.Infof("capturing frames to %s (%s endian)", c.cfg.Capture.Path, s.ByteOrder())
		}
	}

	c.state.Store(int32(StateRunning))
}

// CaptureEnabled reports whether frames are being written to a capture file.
func (c *Consumer) CaptureEnabled() bool { return c.session.Load() != nil }

// Run consumes frames until ctx is done, then drains what is already
// queued and closes the sinks.
func (c *Consumer) Run(ctx context.Context) error {
	c.Start()
	defer c.shutdown()

	for {
		f, err := c.src.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.drain()
				return nil
			}
			return err
		}
		c.handle(ctx, f)
	}
}

func (c *Consumer) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	n := 0
	for {
		f, ok := c.src.TryReceive()
		if !ok {
			break
		}
		c.handle(ctx, f)
		n++
	}
	if n > 0 {
		c.logger.Infof("drained %d queued frames", n)
	}
}

func (c *Consumer) shutdown() {
	c.state.Store(int32(StateStopped))
	if session := c.session.Load(); session != nil {
		if err := session.Close(); err != nil {
			c.logger.WithError(err).Warn("close capture file")
		}
		st := session.Stats()
		c.logger.Infof("capture closed, %d records, %d errors", st.Records, st.Errors)
	}
	if c.mirror != nil {
		if err := c.mirror.Close(); err != nil {
			c.logger.WithError(err).Warn("close frame mirror")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, f core.Frame) {
	c.frames.Add(1)
	c.logger.Infof("Received frame: length=%d", f.Len())

	if c.cfg.HexDump {
		c.logger.Infof("frame hex: %s", renderHex(f.Data, c.cfg.MaxDumpBytes))
		c.logger.Infof("frame ascii: %s", renderASCII(f.Data, c.cfg.MaxDumpBytes))
	}
	if c.cfg.LayerSummary && c.logger.IsDebugEnabled() {
		c.logger.Debugf("frame layers: %s", layerSummary(f.Data))
	}

	payload, err := decoder.ExtractPayload(f.Data)
	if err != nil {
		c.payloadFailed.Add(1)
		metrics.PayloadExtractTotal.WithLabelValues("failed").Inc()
		c.warnExtract(f, err)
	} else {
		c.payloadOK.Add(1)
		metrics.PayloadExtractTotal.WithLabelValues("ok").Inc()
		c.logger.Infof("payload (%d bytes) hex: %s", len(payload), renderHex(payload, c.cfg.MaxDumpBytes))
		c.logger.Infof("payload ascii: %s", renderASCII(payload, c.cfg.MaxDumpBytes))
	}

	if session := c.session.Load(); session != nil {
		if err := session.Append(f.Timestamp, f.Data); err != nil {
			c.captureErrors.Add(1)
			c.logger.WithError(err).Warn("capture record skipped")
		}
	}

	if c.mirror != nil {
		if err := c.mirror.Publish(ctx, f); err != nil {
			c.mirrorErrors.Add(1)
			metrics.MirrorErrorsTotal.Inc()
			c.logger.WithError(err).Warn("frame mirror publish failed")
		}
	}
}

func (c *Consumer) warnExtract(f core.Frame, err error) {
	if c.warned != nil {
		key := err.Error()
		if len(f.Data) >= 12 {
			key += "|" + net.HardwareAddr(f.Data[6:12]).String()
		}
		if c.warned.Add(key, 0, cache.DefaultExpiration) != nil {
			c.suppressed.Add(1)
			_, _ = c.warned.IncrementInt(key, 1)
			return
		}
	}
	c.logger.WithError(err).Warnf("no udp payload in %d byte frame", f.Len())
}

// layerSummary names the layers gopacket recognises, e.g.
// "Ethernet/IPv4/UDP/Payload".
func layerSummary(data []byte) string {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	ls := pkt.Layers()
	names := make([]string, 0, len(ls))
	for _, l := range ls {
		names = append(names, l.LayerType().String())
	}
	if el := pkt.ErrorLayer(); el != nil {
		names = append(names, "error("+el.Error().Error()+")")
	}
	return strings.Join(names, "/")
}

// Stats returns a snapshot of the counters.
func (c *Consumer) Stats() Stats {
	s := Stats{
		Frames:        c.frames.Load(),
		PayloadOK:     c.payloadOK.Load(),
		PayloadFailed: c.payloadFailed.Load(),
		Suppressed:    c.suppressed.Load(),
		CaptureErrors: c.captureErrors.Load(),
		MirrorErrors:  c.mirrorErrors.Load(),
	}
	if session := c.session.Load(); session != nil {
		s.CaptureRecords = session.Stats().Records
	}
	return s
}
