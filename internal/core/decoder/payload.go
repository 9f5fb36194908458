package decoder

import (
	"encoding/binary"

	"firestige.xyz/t1sbridge/internal/core"
)

// Datagram is a decoded Ethernet/IPv4/UDP frame.
// Payload aliases the frame it was decoded from.
type Datagram struct {
	Ethernet core.EthernetHeader
	IP       core.IPHeader
	UDP      core.UDPHeader
	Payload  []byte
}

// DecodeUDP decodes all three headers of a UDP-over-IPv4 Ethernet frame.
func DecodeUDP(frame []byte) (Datagram, error) {
	var d Datagram
	if len(frame) < core.MinUDPFrame {
		return d, core.ErrPacketTooShort
	}

	eth, l3, err := decodeEthernet(frame)
	if err != nil {
		return d, err
	}
	d.Ethernet = eth
	if eth.EtherType != etherTypeIPv4 {
		return d, core.ErrNotIPv4
	}

	ip, l4, err := decodeIPv4(l3)
	if err != nil {
		return d, err
	}
	d.IP = ip
	if ip.Protocol != protocolUDP {
		return d, core.ErrNotUDP
	}
	if ip.FragOffset != 0 {
		return d, core.ErrFragment
	}

	udp, payload, err := decodeUDP(l4)
	d.UDP = udp
	if err != nil {
		return d, err
	}
	d.Payload = payload
	return d, nil
}

// ExtractPayload returns the UDP payload of an Ethernet/IPv4/UDP frame.
//
// The result is a sub-slice of frame with capacity equal to its length.
// It performs no allocation and has no side effects; the error names the
// reason the frame was rejected.
func ExtractPayload(frame []byte) ([]byte, error) {
	if len(frame) < core.MinUDPFrame {
		return nil, core.ErrPacketTooShort
	}

	etherType, l3, err := etherTypeOffset(frame)
	if err != nil {
		return nil, err
	}
	if etherType != etherTypeIPv4 {
		return nil, core.ErrNotIPv4
	}
	if len(frame) < l3+ipv4HeaderMinLen {
		return nil, core.ErrPacketTooShort
	}
	if frame[l3]>>4 != 4 {
		return nil, core.ErrNotIPv4
	}
	ihl := int(frame[l3]&0x0F) * 4
	if ihl < ipv4HeaderMinLen {
		return nil, core.ErrPacketTooShort
	}
	if frame[l3+9] != protocolUDP {
		return nil, core.ErrNotUDP
	}
	if binary.BigEndian.Uint16(frame[l3+6:l3+8])&fragOffsetMask != 0 {
		return nil, core.ErrFragment
	}

	l4 := l3 + ihl
	if len(frame) < l4+udpHeaderLen {
		return nil, core.ErrPacketTooShort
	}
	udpLen := int(binary.BigEndian.Uint16(frame[l4+4 : l4+6]))
	if udpLen <= udpHeaderLen {
		return nil, core.ErrUDPLength
	}
	end := l4 + udpLen
	if end > len(frame) {
		return nil, core.ErrPayloadOverrun
	}
	return frame[l4+udpHeaderLen : end : end], nil
}
