package netif

import (
	"fmt"
	"net"
	"sync/atomic"

	"golang.org/x/net/ipv4"

	"firestige.xyz/t1sbridge/internal/log"
)

// ForwarderConfig configures the UDP forwarder. TTL and TOS are applied to
// the outgoing socket when positive.
type ForwarderConfig struct {
	Target string
	TTL    int
	TOS    int
}

// UDPForwarder relays received datagram payloads to an upstream UDP
// consumer on the host, such as a DTLS terminator.
type UDPForwarder struct {
	conn   *ipv4.PacketConn
	raw    net.PacketConn
	target *net.UDPAddr
	logger log.Logger

	forwarded atomic.Uint64
}

// NewUDPForwarder binds a local UDP socket and forwards to cfg.Target.
func NewUDPForwarder(cfg ForwarderConfig, logger log.Logger) (*UDPForwarder, error) {
	addr, err := net.ResolveUDPAddr("udp4", cfg.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve forward address %q: %w", cfg.Target, err)
	}
	c, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("bind forwarder socket: %w", err)
	}
	if logger == nil {
		logger = log.GetLogger()
	}

	conn := ipv4.NewPacketConn(c)
	if cfg.TTL > 0 {
		if err := conn.SetTTL(cfg.TTL); err != nil {
			c.Close()
			return nil, fmt.Errorf("set forwarder ttl %d: %w", cfg.TTL, err)
		}
	}
	if cfg.TOS > 0 {
		if err := conn.SetTOS(cfg.TOS); err != nil {
			c.Close()
			return nil, fmt.Errorf("set forwarder tos %#x: %w", cfg.TOS, err)
		}
	}

	return &UDPForwarder{
		conn:   conn,
		raw:    c,
		target: addr,
		logger: logger.WithField("module", "forwarder"),
	}, nil
}

// HandleDatagram implements Endpoint.
func (f *UDPForwarder) HandleDatagram(d Datagram) error {
	if _, err := f.conn.WriteTo(d.Payload, nil, f.target); err != nil {
		return fmt.Errorf("forward datagram from %s: %w", d.Src, err)
	}
	f.forwarded.Add(1)
	if f.logger.IsTraceEnabled() {
		f.logger.Tracef("forwarded %d bytes from %s to %s", len(d.Payload), d.Src, f.target)
	}
	return nil
}

// Forwarded returns the number of datagrams relayed.
func (f *UDPForwarder) Forwarded() uint64 { return f.forwarded.Load() }

// LocalAddr returns the forwarder's bound address.
func (f *UDPForwarder) LocalAddr() net.Addr { return f.raw.LocalAddr() }

// Close releases the socket.
func (f *UDPForwarder) Close() error {
	return f.conn.Close()
}
