// Package core defines core data structures with zero external dependencies.
package core

import "time"

const (
	// DefaultMTU is the largest frame the reassembly buffer accepts.
	DefaultMTU = 1500

	// MinEthernetFrame is the minimum Ethernet frame length without FCS.
	MinEthernetFrame = 60

	// MinUDPFrame is Ethernet(14) + IPv4(20) + UDP(8).
	MinUDPFrame = 42
)

// Frame is one fully reassembled Ethernet frame.
// Data is owned by the frame and never mutated once the frame is queued.
type Frame struct {
	Data      []byte
	Timestamp time.Time
	Instance  string // transport instance that produced the frame
}

// Len returns the frame length in bytes.
func (f Frame) Len() int { return len(f.Data) }

// NewFrame copies data into a new Frame, enforcing len(data) <= mtu.
func NewFrame(data []byte, mtu int, ts time.Time, instance string) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	if mtu > 0 && len(data) > mtu {
		return Frame{}, ErrFrameTooLarge
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Frame{Data: buf, Timestamp: ts, Instance: instance}, nil
}

// Slice is a fragment of a frame delivered by the transport.
// Data is only valid for the duration of the callback that carries it.
type Slice struct {
	Data   []byte
	Offset int
}

// RawFrame is a whole frame as read from a source, before it is cut into slices.
type RawFrame struct {
	Data      []byte    // Frame bytes, may reference a source-owned buffer
	Timestamp time.Time // Capture or generation time
	OrigLen   uint32    // Original length on the wire
}
