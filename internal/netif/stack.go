// Package netif is the network stack side of the bridge. It accepts whole
// Ethernet frames from dispatch into a bounded buffer pool and delivers the
// UDP datagrams addressed to this node to an Endpoint.
package netif

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/log"
	"firestige.xyz/t1sbridge/internal/metrics"
)

// DefaultBuffers is the number of frame buffers in the input pool.
const DefaultBuffers = 16

// Datagram is a UDP datagram received by the stack. Payload is only valid
// for the duration of HandleDatagram.
type Datagram struct {
	Src       netip.AddrPort
	Dst       netip.AddrPort
	Payload   []byte
	Timestamp time.Time
}

// Endpoint consumes datagrams accepted by the stack.
type Endpoint interface {
	HandleDatagram(d Datagram) error
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(d Datagram) error

func (fn EndpointFunc) HandleDatagram(d Datagram) error { return fn(d) }

// Config configures the stack.
type Config struct {
	// Prefix is the local address with its subnet, e.g. 192.168.1.30/24.
	// The subnet is used to accept directed broadcasts.
	Prefix netip.Prefix
	// Ports restricts delivery to these destination ports. Empty accepts all.
	Ports []uint16
	// MAC is the node's hardware address. When set and Promiscuous is
	// false, unicast frames for other stations are dropped.
	MAC         net.HardwareAddr
	Promiscuous bool
	Buffers     int
	MTU         int
}

// Stats is a snapshot of stack counters.
type Stats struct {
	Accepted       uint64
	NoBuffer       uint64
	Delivered      uint64
	NotUDP         uint64
	NotForUs       uint64
	OtherStation   uint64
	DecodeErrors   uint64
	EndpointErrors uint64
	FreeBuffers    int
}

type pbuf struct {
	data []byte
	n    int
	ts   time.Time
}

// Stack owns a fixed pool of frame buffers. Input copies a frame into a
// free buffer without blocking; Run drains and processes them.
type Stack struct {
	cfg      Config
	endpoint Endpoint
	logger   log.Logger

	free  chan *pbuf
	ready chan *pbuf

	closed atomic.Bool

	eth     layers.Ethernet
	dot1q   layers.Dot1Q
	ip4     layers.IPv4
	udp     layers.UDP
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType

	accepted       atomic.Uint64
	noBuffer       atomic.Uint64
	delivered      atomic.Uint64
	notUDP         atomic.Uint64
	notForUs       atomic.Uint64
	otherStation   atomic.Uint64
	decodeErrors   atomic.Uint64
	endpointErrors atomic.Uint64
}

// NewStack creates a stack delivering to endpoint.
func NewStack(cfg Config, endpoint Endpoint, logger log.Logger) *Stack {
	if cfg.Buffers <= 0 {
		cfg.Buffers = DefaultBuffers
	}
	if cfg.MTU <= 0 {
		cfg.MTU = core.DefaultMTU
	}
	if logger == nil {
		logger = log.GetLogger()
	}

	s := &Stack{
		cfg:      cfg,
		endpoint: endpoint,
		logger:   logger.WithField("module", "netif"),
		free:     make(chan *pbuf, cfg.Buffers),
		ready:    make(chan *pbuf, cfg.Buffers),
		decoded:  make([]gopacket.LayerType, 0, 4),
	}
	for i := 0; i < cfg.Buffers; i++ {
		s.free <- &pbuf{data: make([]byte, cfg.MTU)}
	}

	s.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &s.eth, &s.dot1q, &s.ip4, &s.udp)
	s.parser.IgnoreUnsupported = true
	return s
}

// Input implements dispatch.Injector. It copies data and never blocks.
func (s *Stack) Input(data []byte) error {
	if s.closed.Load() {
		return core.ErrStackClosed
	}
	if len(data) > s.cfg.MTU {
		return core.ErrFrameTooLarge
	}

	var p *pbuf
	select {
	case p = <-s.free:
	default:
		s.noBuffer.Add(1)
		return core.ErrNoBuffer
	}

	p.n = copy(p.data, data)
	p.ts = time.Now()
	s.accepted.Add(1)
	// ready has room for every pooled buffer
	s.ready <- p
	return nil
}

// Run processes queued frames until ctx is done, then finishes the frames
// already accepted.
func (s *Stack) Run(ctx context.Context) error {
	s.logger.Infof("network stack started, local %s, %d buffers", s.cfg.Prefix, s.cfg.Buffers)

	for {
		select {
		case <-ctx.Done():
			s.closed.Store(true)
			s.drain()
			s.logger.Info("network stack stopped")
			return nil
		case p := <-s.ready:
			s.process(p)
			s.free <- p
		}
	}
}

// drain processes frames accepted before the stack was closed.
func (s *Stack) drain() {
	for {
		select {
		case p := <-s.ready:
			s.process(p)
			s.free <- p
		default:
			return
		}
	}
}

func (s *Stack) process(p *pbuf) {
	if err := s.parser.DecodeLayers(p.data[:p.n], &s.decoded); err != nil {
		s.decodeErrors.Add(1)
		metrics.StackDatagramsTotal.WithLabelValues("decode_error").Inc()
		if s.logger.IsDebugEnabled() {
			s.logger.WithError(err).Debug("frame decode failed")
		}
		return
	}

	if !s.acceptsMAC(s.eth.DstMAC) {
		s.otherStation.Add(1)
		metrics.StackDatagramsTotal.WithLabelValues("other_station").Inc()
		return
	}

	var haveIP, haveUDP bool
	for _, lt := range s.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			haveIP = true
		case layers.LayerTypeUDP:
			haveUDP = true
		}
	}
	if !haveIP || !haveUDP {
		s.notUDP.Add(1)
		metrics.StackDatagramsTotal.WithLabelValues("not_udp").Inc()
		return
	}

	src, _ := netip.AddrFromSlice(s.ip4.SrcIP.To4())
	dst, _ := netip.AddrFromSlice(s.ip4.DstIP.To4())
	if !s.acceptsAddr(dst) || !s.acceptsPort(uint16(s.udp.DstPort)) {
		s.notForUs.Add(1)
		metrics.StackDatagramsTotal.WithLabelValues("not_for_us").Inc()
		return
	}

	if s.endpoint == nil {
		s.delivered.Add(1)
		return
	}
	err := s.endpoint.HandleDatagram(Datagram{
		Src:       netip.AddrPortFrom(src, uint16(s.udp.SrcPort)),
		Dst:       netip.AddrPortFrom(dst, uint16(s.udp.DstPort)),
		Payload:   s.udp.Payload,
		Timestamp: p.ts,
	})
	if err != nil {
		s.endpointErrors.Add(1)
		metrics.StackDatagramsTotal.WithLabelValues("endpoint_error").Inc()
		s.logger.WithError(err).Warnf("endpoint rejected datagram from %s", src)
		return
	}
	s.delivered.Add(1)
	metrics.StackDatagramsTotal.WithLabelValues("delivered").Inc()
}

func (s *Stack) acceptsMAC(dst net.HardwareAddr) bool {
	if s.cfg.Promiscuous || len(s.cfg.MAC) == 0 || len(dst) == 0 {
		return true
	}
	// group bit covers broadcast and multicast
	return dst[0]&0x01 != 0 || bytes.Equal(dst, s.cfg.MAC)
}

func (s *Stack) acceptsAddr(dst netip.Addr) bool {
	if dst == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return true
	}
	if !s.cfg.Prefix.IsValid() {
		return true
	}
	if dst == s.cfg.Prefix.Addr() {
		return true
	}
	return s.cfg.Prefix.Bits() < 31 && dst == directedBroadcast(s.cfg.Prefix)
}

func (s *Stack) acceptsPort(port uint16) bool {
	if len(s.cfg.Ports) == 0 {
		return true
	}
	for _, p := range s.cfg.Ports {
		if p == port {
			return true
		}
	}
	return false
}

func directedBroadcast(p netip.Prefix) netip.Addr {
	a := p.Masked().Addr().As4()
	host := uint32(1)<<(32-p.Bits()) - 1
	a[0] |= byte(host >> 24)
	a[1] |= byte(host >> 16)
	a[2] |= byte(host >> 8)
	a[3] |= byte(host)
	return netip.AddrFrom4(a)
}

// Stats returns a snapshot of the counters.
func (s *Stack) Stats() Stats {
	return Stats{
		Accepted:       s.accepted.Load(),
		NoBuffer:       s.noBuffer.Load(),
		Delivered:      s.delivered.Load(),
		NotUDP:         s.notUDP.Load(),
		NotForUs:       s.notForUs.Load(),
		OtherStation:   s.otherStation.Load(),
		DecodeErrors:   s.decodeErrors.Load(),
		EndpointErrors: s.endpointErrors.Load(),
		FreeBuffers:    len(s.free),
	}
}
