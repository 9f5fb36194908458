package decoder

import (
	"encoding/binary"

	"firestige.xyz/t1sbridge/internal/core"
)

const (
	udpHeaderLen = 8

	protocolUDP = 17
)

// decodeUDP decodes UDP header and returns the payload bounded by the
// UDP length field. The returned slice has its capacity clipped to its
// length so callers cannot grow into trailing frame bytes.
func decodeUDP(data []byte) (core.UDPHeader, []byte, error) {
	if len(data) < udpHeaderLen {
		return core.UDPHeader{}, nil, core.ErrPacketTooShort
	}

	udp := core.UDPHeader{
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
		Length:   binary.BigEndian.Uint16(data[4:6]),
		Checksum: binary.BigEndian.Uint16(data[6:8]),
	}

	if udp.Length <= udpHeaderLen {
		return udp, nil, core.ErrUDPLength
	}
	end := int(udp.Length)
	if end > len(data) {
		return udp, nil, core.ErrPayloadOverrun
	}
	return udp, data[udpHeaderLen:end:end], nil
}
