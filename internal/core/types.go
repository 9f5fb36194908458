// Package core defines core types with zero external dependencies.
package core

import "net/netip"

// EthernetHeader represents L2 Ethernet frame header.
type EthernetHeader struct {
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16   // 0x0800=IPv4, 0x86DD=IPv6, 0x8100=VLAN
	VLANs     []uint16 // 0~2 VLAN IDs (QinQ scenarios have 2)
}

// IPHeader represents an L3 IPv4 header.
type IPHeader struct {
	Version    uint8
	HeaderLen  int // IHL * 4
	SrcIP      netip.Addr
	DstIP      netip.Addr
	Protocol   uint8 // TCP=6, UDP=17
	TTL        uint8
	TotalLen   uint16
	FragOffset uint16 // in 8-byte units
	MoreFrags  bool
}

// UDPHeader represents an L4 UDP header.
type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16 // header + data
	Checksum uint16
}
