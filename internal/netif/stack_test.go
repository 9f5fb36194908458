package netif

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/t1sbridge/internal/core"
)

type datagramRecorder struct {
	mu   sync.Mutex
	got  []Datagram
	fail error
}

func (r *datagramRecorder) HandleDatagram(d Datagram) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.Payload = append([]byte(nil), d.Payload...)
	r.got = append(r.got, d)
	return r.fail
}

func (r *datagramRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func udpTo(t *testing.T, dst net.IP, port uint16, payload string) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x04},
		DstMAC:       net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: net.IP{192, 168, 1, 40}, DstIP: dst}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(port)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf,
		gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
		eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func runStack(t *testing.T, s *Stack) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestStackDeliversLocalDatagrams(t *testing.T) {
	rec := &datagramRecorder{}
	s := NewStack(Config{
		Prefix: netip.MustParsePrefix("192.168.1.30/24"),
		Ports:  []uint16{1234},
	}, rec, nil)
	runStack(t, s)

	require.NoError(t, s.Input(udpTo(t, net.IP{192, 168, 1, 30}, 1234, "unicast")))
	require.NoError(t, s.Input(udpTo(t, net.IP{192, 168, 1, 255}, 1234, "directed")))
	require.NoError(t, s.Input(udpTo(t, net.IP{255, 255, 255, 255}, 1234, "limited")))
	require.NoError(t, s.Input(udpTo(t, net.IP{192, 168, 1, 99}, 1234, "other host")))
	require.NoError(t, s.Input(udpTo(t, net.IP{192, 168, 1, 30}, 9999, "other port")))

	assert.Eventually(t, func() bool {
		st := s.Stats()
		return st.Delivered+st.NotForUs == 5
	}, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.got, 3)
	assert.Equal(t, "unicast", string(rec.got[0].Payload))
	assert.Equal(t, "directed", string(rec.got[1].Payload))
	assert.Equal(t, "limited", string(rec.got[2].Payload))
	assert.Equal(t, netip.MustParseAddrPort("192.168.1.40:40000"), rec.got[0].Src)
	assert.Equal(t, uint64(2), s.Stats().NotForUs)
}

func TestStackIgnoresNonUDP(t *testing.T) {
	rec := &datagramRecorder{}
	s := NewStack(Config{}, rec, nil)
	runStack(t, s)

	arp := make([]byte, 60)
	arp[12], arp[13] = 0x08, 0x06
	require.NoError(t, s.Input(arp))

	assert.Eventually(t, func() bool { return s.Stats().NotUDP == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, rec.len())
}

func TestStackInputNeverBlocks(t *testing.T) {
	s := NewStack(Config{Buffers: 2}, nil, nil)

	frame := udpTo(t, net.IP{10, 0, 0, 1}, 1, "x")
	require.NoError(t, s.Input(frame))
	require.NoError(t, s.Input(frame))
	assert.ErrorIs(t, s.Input(frame), core.ErrNoBuffer)

	st := s.Stats()
	assert.Equal(t, uint64(2), st.Accepted)
	assert.Equal(t, uint64(1), st.NoBuffer)
	assert.Equal(t, 0, st.FreeBuffers)
}

func TestStackCopiesInput(t *testing.T) {
	rec := &datagramRecorder{}
	s := NewStack(Config{}, rec, nil)

	frame := udpTo(t, net.IP{10, 0, 0, 1}, 1, "orig")
	require.NoError(t, s.Input(frame))
	copy(frame[42:], "XXXX")

	runStack(t, s)
	assert.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, "orig", string(rec.got[0].Payload))
	rec.mu.Unlock()
}

func TestStackRejectsOversizedFrame(t *testing.T) {
	s := NewStack(Config{MTU: 100}, nil, nil)
	assert.ErrorIs(t, s.Input(make([]byte, 101)), core.ErrFrameTooLarge)
}

func TestStackEndpointError(t *testing.T) {
	rec := &datagramRecorder{fail: assert.AnError}
	s := NewStack(Config{}, rec, nil)
	runStack(t, s)

	require.NoError(t, s.Input(udpTo(t, net.IP{10, 0, 0, 1}, 1, "x")))
	assert.Eventually(t, func() bool { return s.Stats().EndpointErrors == 1 }, time.Second, 5*time.Millisecond)
}

func TestDirectedBroadcast(t *testing.T) {
	assert.Equal(t, netip.MustParseAddr("192.168.1.255"), directedBroadcast(netip.MustParsePrefix("192.168.1.30/24")))
	assert.Equal(t, netip.MustParseAddr("10.255.255.255"), directedBroadcast(netip.MustParsePrefix("10.1.2.3/8")))
}

func TestUDPForwarder(t *testing.T) {
	upstream, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer upstream.Close()

	f, err := NewUDPForwarder(ForwarderConfig{Target: upstream.LocalAddr().String()}, nil)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.HandleDatagram(Datagram{
		Src:     netip.MustParseAddrPort("192.168.1.40:40000"),
		Payload: []byte("record"),
	}))

	buf := make([]byte, 64)
	require.NoError(t, upstream.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := upstream.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "record", string(buf[:n]))
	assert.Equal(t, uint64(1), f.Forwarded())
}

func TestUDPForwarderSocketOptions(t *testing.T) {
	f, err := NewUDPForwarder(ForwarderConfig{Target: "127.0.0.1:5684", TTL: 3, TOS: 0x20}, nil)
	require.NoError(t, err)
	defer f.Close()

	ttl, err := f.conn.TTL()
	require.NoError(t, err)
	assert.Equal(t, 3, ttl)

	tos, err := f.conn.TOS()
	require.NoError(t, err)
	assert.Equal(t, 0x20, tos)
}

func TestUDPForwarderBadAddress(t *testing.T) {
	_, err := NewUDPForwarder(ForwarderConfig{Target: "not-an-address"}, nil)
	assert.Error(t, err)
}

func TestStackMACFilter(t *testing.T) {
	local := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x03}
	unicastTo := func(dst net.HardwareAddr) []byte {
		f := udpTo(t, net.IP{10, 0, 0, 1}, 1, "x")
		copy(f[0:6], dst)
		return f
	}

	t.Run("filters other stations", func(t *testing.T) {
		s := NewStack(Config{MAC: local}, nil, nil)
		runStack(t, s)

		require.NoError(t, s.Input(unicastTo(local)))
		require.NoError(t, s.Input(unicastTo(net.HardwareAddr{0x02, 0, 0, 0, 0, 0x09})))
		require.NoError(t, s.Input(unicastTo(net.HardwareAddr{0x01, 0x00, 0x5E, 0, 0, 1})))

		assert.Eventually(t, func() bool {
			st := s.Stats()
			return st.Delivered == 2 && st.OtherStation == 1
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("promiscuous accepts all", func(t *testing.T) {
		s := NewStack(Config{MAC: local, Promiscuous: true}, nil, nil)
		runStack(t, s)

		require.NoError(t, s.Input(unicastTo(net.HardwareAddr{0x02, 0, 0, 0, 0, 0x09})))
		assert.Eventually(t, func() bool { return s.Stats().Delivered == 1 }, time.Second, 5*time.Millisecond)
	})
}

func TestStackDrainsOnStop(t *testing.T) {
	rec := &datagramRecorder{}
	s := NewStack(Config{Prefix: netip.MustParsePrefix("192.168.1.30/24")}, rec, nil)

	require.NoError(t, s.Input(udpTo(t, net.IP{192, 168, 1, 30}, 1234, "one")))
	require.NoError(t, s.Input(udpTo(t, net.IP{192, 168, 1, 30}, 1234, "two")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, 2, rec.len())
	assert.ErrorIs(t, s.Input(udpTo(t, net.IP{192, 168, 1, 30}, 1234, "late")), core.ErrStackClosed)
	assert.Equal(t, DefaultBuffers, s.Stats().FreeBuffers)
}
