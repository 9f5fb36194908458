// Package beacon implements a source that periodically emits a UDP
// broadcast frame, the way a 10BASE-T1S node announces itself on a
// multidrop segment.
package beacon

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/log"
	"firestige.xyz/t1sbridge/pkg/plugin"
)

const (
	pluginName = "beacon"

	defaultInterval = 10 * time.Second
	defaultSrcMAC   = "00:04:a3:34:50:56"
	defaultDstMAC   = "ff:ff:ff:ff:ff:ff"
	defaultSrcIP    = "192.168.1.10"
	defaultDstIP    = "192.168.1.255"
	defaultPort     = 1234
	defaultNodeID   = 1
	defaultMessage  = "Hello, here is node number: %d!"
	defaultTTL      = 64
)

// Config represents beacon-specific configuration.
type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	Count    int           `mapstructure:"count"` // 0 means unbounded
	NodeID   int           `mapstructure:"node_id"`
	Message  string        `mapstructure:"message"` // %d is replaced by node_id
	SrcMAC   string        `mapstructure:"src_mac"`
	DstMAC   string        `mapstructure:"dst_mac"`
	SrcIP    string        `mapstructure:"src_ip"`
	DstIP    string        `mapstructure:"dst_ip"`
	SrcPort  uint16        `mapstructure:"src_port"`
	DstPort  uint16        `mapstructure:"dst_port"`
}

// Source emits one beacon per interval.
type Source struct {
	config Config

	srcMAC, dstMAC net.HardwareAddr
	srcIP, dstIP   net.IP

	produced atomic.Uint64
	dropped  atomic.Uint64
	errors   atomic.Uint64
}

// New creates a new beacon source.
func New() plugin.Source {
	return &Source{}
}

// Name returns the plugin name.
func (s *Source) Name() string { return pluginName }

// Init decodes and validates options.
func (s *Source) Init(options map[string]any) error {
	s.config = Config{
		Interval: defaultInterval,
		NodeID:   defaultNodeID,
		Message:  defaultMessage,
		SrcMAC:   defaultSrcMAC,
		DstMAC:   defaultDstMAC,
		SrcIP:    defaultSrcIP,
		DstIP:    defaultDstIP,
		SrcPort:  defaultPort,
		DstPort:  defaultPort,
	}
	if err := plugin.DecodeOptions(options, &s.config); err != nil {
		return fmt.Errorf("beacon: %w", err)
	}
	if s.config.Interval <= 0 {
		return fmt.Errorf("beacon: %w: interval must be positive", core.ErrPluginInitFailed)
	}

	var err error
	if s.srcMAC, err = net.ParseMAC(s.config.SrcMAC); err != nil {
		return fmt.Errorf("beacon: %w: src_mac: %v", core.ErrPluginInitFailed, err)
	}
	if s.dstMAC, err = net.ParseMAC(s.config.DstMAC); err != nil {
		return fmt.Errorf("beacon: %w: dst_mac: %v", core.ErrPluginInitFailed, err)
	}
	if s.srcIP = net.ParseIP(s.config.SrcIP).To4(); s.srcIP == nil {
		return fmt.Errorf("beacon: %w: src_ip %q is not IPv4", core.ErrPluginInitFailed, s.config.SrcIP)
	}
	if s.dstIP = net.ParseIP(s.config.DstIP).To4(); s.dstIP == nil {
		return fmt.Errorf("beacon: %w: dst_ip %q is not IPv4", core.ErrPluginInitFailed, s.config.DstIP)
	}
	return nil
}

// Start is a no-op; work happens in Capture.
func (s *Source) Start(ctx context.Context) error { return nil }

// Stop is a no-op; Capture returns when its context is done.
func (s *Source) Stop(ctx context.Context) error { return nil }

// Capture emits the first beacon immediately, then one per interval.
func (s *Source) Capture(ctx context.Context, output chan<- core.RawFrame) error {
	logger := log.GetLogger().WithField("source", pluginName)
	logger.Infof("beacon started: every %s to %s:%d", s.config.Interval, s.dstIP, s.config.DstPort)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for seq := 0; s.config.Count == 0 || seq < s.config.Count; seq++ {
		data, err := s.Build()
		if err != nil {
			s.errors.Add(1)
			return err
		}
		select {
		case output <- core.RawFrame{Data: data, Timestamp: time.Now(), OrigLen: uint32(len(data))}:
			s.produced.Add(1)
		case <-ctx.Done():
			return nil
		}

		if s.config.Count > 0 && seq+1 == s.config.Count {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
	logger.Infof("beacon finished after %d frames", s.produced.Load())
	return nil
}

// Build serializes one beacon frame.
func (s *Source) Build() ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       s.srcMAC,
		DstMAC:       s.dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      defaultTTL,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    s.srcIP,
		DstIP:    s.dstIP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(s.config.SrcPort),
		DstPort: layers.UDPPort(s.config.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(s.message())); err != nil {
		return nil, fmt.Errorf("beacon: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Source) message() []byte {
	if strings.Contains(s.config.Message, "%d") {
		return []byte(fmt.Sprintf(s.config.Message, s.config.NodeID))
	}
	return []byte(s.config.Message)
}

// Stats returns source statistics.
func (s *Source) Stats() plugin.SourceStats {
	return plugin.SourceStats{
		FramesProduced: s.produced.Load(),
		FramesDropped:  s.dropped.Load(),
		Errors:         s.errors.Load(),
	}
}
