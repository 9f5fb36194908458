package decoder

import (
	"encoding/binary"
	"net/netip"

	"firestige.xyz/t1sbridge/internal/core"
)

const (
	ipv4HeaderMinLen = 20

	flagMoreFragments = 0x2000
	fragOffsetMask    = 0x1FFF
)

// decodeIPv4 decodes IPv4 header.
// Returns IPHeader and the L4 bytes, trimmed to the IPv4 total length when
// the frame carries Ethernet padding.
func decodeIPv4(data []byte) (core.IPHeader, []byte, error) {
	if len(data) < ipv4HeaderMinLen {
		return core.IPHeader{}, nil, core.ErrPacketTooShort
	}
	if data[0]>>4 != 4 {
		return core.IPHeader{}, nil, core.ErrNotIPv4
	}

	// IHL is in 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen || len(data) < headerLen {
		return core.IPHeader{}, nil, core.ErrPacketTooShort
	}

	ip := core.IPHeader{
		Version:   4,
		HeaderLen: headerLen,
		TotalLen:  binary.BigEndian.Uint16(data[2:4]),
		TTL:       data[8],
		Protocol:  data[9],
	}

	flags := binary.BigEndian.Uint16(data[6:8])
	ip.MoreFrags = flags&flagMoreFragments != 0
	ip.FragOffset = flags & fragOffsetMask

	ip.SrcIP = netip.AddrFrom4([4]byte(data[12:16]))
	ip.DstIP = netip.AddrFrom4([4]byte(data[16:20]))

	end := len(data)
	if total := int(ip.TotalLen); total >= headerLen && total < end {
		end = total
	}
	return ip, data[headerLen:end], nil
}
