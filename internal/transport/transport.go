// Package transport defines the callback contract between the MAC-PHY
// transport driver and frame reassembly, and emulates the driver's chunking.
package transport

import "time"

// Handler receives the two notifications a TC6 style driver raises while
// receiving a frame. Both run in the driver's service context.
type Handler interface {
	// OnSlice delivers part of a frame. data is only valid for the call.
	OnSlice(data []byte, offset int)

	// OnFrameComplete signals end of frame. length is the total frame
	// length reported by the driver.
	OnFrameComplete(success bool, length int, ts time.Time)
}

// LengthHinter is implemented by handlers that can use the total frame
// length before the first slice arrives. Drivers that know the length up
// front call it when they do not signal completion.
type LengthHinter interface {
	ExpectLength(n int)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Slice    func(data []byte, offset int)
	Complete func(success bool, length int, ts time.Time)
}

func (h HandlerFuncs) OnSlice(data []byte, offset int) {
	if h.Slice != nil {
		h.Slice(data, offset)
	}
}

func (h HandlerFuncs) OnFrameComplete(success bool, length int, ts time.Time) {
	if h.Complete != nil {
		h.Complete(success, length, ts)
	}
}
