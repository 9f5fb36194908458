package decoder

import (
	"bytes"
	"errors"
	"testing"

	"firestige.xyz/t1sbridge/internal/core"
)

func TestExtractPayloadPing(t *testing.T) {
	frame := buildUDPFrame(t, []byte("PING"), 0)

	payload, err := ExtractPayload(frame)
	if err != nil {
		t.Fatalf("ExtractPayload failed: %v", err)
	}
	if string(payload) != "PING" {
		t.Errorf("Expected payload PING, got %q", payload)
	}
}

func TestExtractPayloadZeroCopy(t *testing.T) {
	frame := buildUDPFrame(t, []byte("hello t1s"), 0)

	payload, err := ExtractPayload(frame)
	if err != nil {
		t.Fatalf("ExtractPayload failed: %v", err)
	}
	if &payload[0] != &frame[core.MinUDPFrame] {
		t.Errorf("payload does not alias the frame")
	}
	if cap(payload) != len(payload) {
		t.Errorf("Expected clipped capacity %d, got %d", len(payload), cap(payload))
	}

	allocs := testing.AllocsPerRun(100, func() {
		_, _ = ExtractPayload(frame)
	})
	if allocs != 0 {
		t.Errorf("Expected 0 allocations, got %v", allocs)
	}
}

func TestExtractPayloadFailures(t *testing.T) {
	base := buildUDPFrame(t, []byte("PING"), 0)

	mutate := func(fn func(b []byte) []byte) []byte {
		b := append([]byte(nil), base...)
		return fn(b)
	}

	tests := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"empty", nil, core.ErrPacketTooShort},
		{"41 bytes", base[:41], core.ErrPacketTooShort},
		{"arp ethertype", mutate(func(b []byte) []byte { b[12], b[13] = 0x08, 0x06; return b }), core.ErrNotIPv4},
		{"ipv6 ethertype", mutate(func(b []byte) []byte { b[12], b[13] = 0x86, 0xDD; return b }), core.ErrNotIPv4},
		{"ip version 6", mutate(func(b []byte) []byte { b[14] = 0x65; return b }), core.ErrNotIPv4},
		{"tcp protocol", mutate(func(b []byte) []byte { b[23] = 6; return b }), core.ErrNotUDP},
		{"icmp protocol", mutate(func(b []byte) []byte { b[23] = 1; return b }), core.ErrNotUDP},
		{"non-first fragment", mutate(func(b []byte) []byte { b[20], b[21] = 0x00, 0x10; return b }), core.ErrFragment},
		{"udp length 8", mutate(func(b []byte) []byte { b[38], b[39] = 0x00, 0x08; return b }), core.ErrUDPLength},
		{"udp length 0", mutate(func(b []byte) []byte { b[38], b[39] = 0x00, 0x00; return b }), core.ErrUDPLength},
		{"udp length beyond frame", mutate(func(b []byte) []byte { b[38], b[39] = 0xFF, 0xFF; return b }), core.ErrPayloadOverrun},
		{"ihl below minimum", mutate(func(b []byte) []byte { b[14] = 0x44; return b }), core.ErrPacketTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ExtractPayload(tt.frame)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if payload != nil {
				t.Errorf("Expected nil payload on failure, got %v", payload)
			}
		})
	}
}

func TestExtractPayloadVLAN(t *testing.T) {
	frame := buildUDPFrame(t, []byte("tagged"), 10)

	payload, err := ExtractPayload(frame)
	if err != nil {
		t.Fatalf("ExtractPayload failed: %v", err)
	}
	if string(payload) != "tagged" {
		t.Errorf("Expected payload tagged, got %q", payload)
	}
}

func TestExtractPayloadIPOptions(t *testing.T) {
	// IHL=6: one 4-byte option word (NOP x4) before the UDP header
	frame := []byte{
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // Dst MAC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Src MAC
		0x08, 0x00, // EtherType: IPv4
		0x46, 0x00, 0x00, 0x22, // Version/IHL, TOS, Total Length: 34
		0x00, 0x00, 0x00, 0x00, // ID, Flags/Fragment
		0x40, 0x11, 0x00, 0x00, // TTL, Protocol: UDP, Checksum
		0xC0, 0xA8, 0x01, 0x1E, // Src IP
		0xC0, 0xA8, 0x01, 0xFF, // Dst IP
		0x01, 0x01, 0x01, 0x01, // Options
		0x04, 0xD2, 0x04, 0xD2, // Src Port, Dst Port: 1234
		0x00, 0x0A, 0x00, 0x00, // Length: 10, Checksum
		0x68, 0x69, // Payload: "hi"
	}

	payload, err := ExtractPayload(frame)
	if err != nil {
		t.Fatalf("ExtractPayload failed: %v", err)
	}
	if string(payload) != "hi" {
		t.Errorf("Expected payload hi, got %q", payload)
	}

	d, err := DecodeUDP(frame)
	if err != nil {
		t.Fatalf("DecodeUDP failed: %v", err)
	}
	if d.IP.HeaderLen != 24 {
		t.Errorf("Expected header length 24, got %d", d.IP.HeaderLen)
	}
	if !bytes.Equal(d.Payload, payload) {
		t.Errorf("DecodeUDP payload %q differs from ExtractPayload %q", d.Payload, payload)
	}
}

func TestDecodeUDP(t *testing.T) {
	frame := buildUDPFrame(t, []byte("Hello, here is node 3!"), 0)

	d, err := DecodeUDP(frame)
	if err != nil {
		t.Fatalf("DecodeUDP failed: %v", err)
	}

	if d.Ethernet.SrcMAC != [6]byte(testSrcMAC) {
		t.Errorf("Expected SrcMAC %v, got %v", testSrcMAC, d.Ethernet.SrcMAC)
	}
	if d.IP.SrcIP.String() != "192.168.1.30" {
		t.Errorf("Expected SrcIP 192.168.1.30, got %v", d.IP.SrcIP)
	}
	if d.IP.Protocol != 17 {
		t.Errorf("Expected protocol 17, got %d", d.IP.Protocol)
	}
	if d.UDP.SrcPort != 1234 || d.UDP.DstPort != 1234 {
		t.Errorf("Expected ports 1234/1234, got %d/%d", d.UDP.SrcPort, d.UDP.DstPort)
	}
	if int(d.UDP.Length) != 8+len("Hello, here is node 3!") {
		t.Errorf("Unexpected UDP length %d", d.UDP.Length)
	}
	if string(d.Payload) != "Hello, here is node 3!" {
		t.Errorf("Unexpected payload %q", d.Payload)
	}
}

func TestDecodeUDPKeepsHeadersOnFailure(t *testing.T) {
	frame := buildUDPFrame(t, []byte("PING"), 0)
	frame[23] = 6

	d, err := DecodeUDP(frame)
	if !errors.Is(err, core.ErrNotUDP) {
		t.Fatalf("Expected ErrNotUDP, got %v", err)
	}
	if d.IP.Protocol != 6 {
		t.Errorf("Expected decoded IP header to be returned, got %+v", d.IP)
	}
}

func TestDecodeEthernetWithVLAN(t *testing.T) {
	frame := buildUDPFrame(t, []byte("x"), 10)

	eth, payload, err := decodeEthernet(frame)
	if err != nil {
		t.Fatalf("decodeEthernet failed: %v", err)
	}
	if eth.EtherType != etherTypeIPv4 {
		t.Errorf("Expected inner EtherType 0x0800, got 0x%04x", eth.EtherType)
	}
	if len(eth.VLANs) != 1 || eth.VLANs[0] != 10 {
		t.Errorf("Expected VLAN [10], got %v", eth.VLANs)
	}
	if len(payload) != len(frame)-ethernetHeaderLen-vlanHeaderLen {
		t.Errorf("Unexpected payload length %d", len(payload))
	}
}

func TestDecodeEthernetTruncatedVLAN(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
		0x81, 0x00, // VLAN with no tag bytes
	}
	if _, _, err := decodeEthernet(data); !errors.Is(err, core.ErrPacketTooShort) {
		t.Errorf("Expected ErrPacketTooShort, got %v", err)
	}
}

func BenchmarkExtractPayload(b *testing.B) {
	frame := buildUDPFrame(b, bytes.Repeat([]byte{'a'}, 512), 0)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ExtractPayload(frame)
	}
}
