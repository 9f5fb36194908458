package transport

import (
	"sync/atomic"
	"time"

	"firestige.xyz/t1sbridge/internal/core"
)

const (
	// DefaultChunkSize is the TC6 chunk payload size.
	DefaultChunkSize = 64
)

// ChunkerConfig configures the chunk emulator.
type ChunkerConfig struct {
	ChunkSize int
	// EmitComplete raises OnFrameComplete after the last slice. Disable it
	// to emulate drivers that only signal slices.
	EmitComplete bool
}

// Chunker cuts whole frames into offset-tagged slices and feeds them to a
// Handler, the way the MAC-PHY driver delivers received chunks.
type Chunker struct {
	cfg     ChunkerConfig
	handler Handler

	frames atomic.Uint64
	slices atomic.Uint64
}

// NewChunker creates a chunker delivering to h.
func NewChunker(cfg ChunkerConfig, h Handler) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Chunker{cfg: cfg, handler: h}
}

// Feed delivers frame as consecutive slices. The slice passed to the
// handler aliases frame.
func (c *Chunker) Feed(frame []byte, ts time.Time) {
	c.FeedSlices(frame, ts, nil)
}

// FeedSlices delivers frame cut at the given slice sizes. A nil or empty
// sizes uses the configured chunk size. Sizes that run past the end of the
// frame are clipped.
func (c *Chunker) FeedSlices(frame []byte, ts time.Time, sizes []int) {
	c.frames.Add(1)

	if !c.cfg.EmitComplete {
		if h, ok := c.handler.(LengthHinter); ok {
			h.ExpectLength(len(frame))
		}
	}

	for _, sl := range Split(frame, c.cfg.ChunkSize, sizes) {
		c.handler.OnSlice(sl.Data, sl.Offset)
		c.slices.Add(1)
	}

	if c.cfg.EmitComplete {
		c.handler.OnFrameComplete(true, len(frame), ts)
	}
}

// Split cuts frame into consecutive slices. sizes gives the length of each
// leading slice; the rest use chunkSize. Non-positive sizes fall back to
// chunkSize and the last slice is clipped to the frame. Slice data aliases
// frame.
func Split(frame []byte, chunkSize int, sizes []int) []core.Slice {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	out := make([]core.Slice, 0, len(sizes)+len(frame)/chunkSize+1)
	offset := 0
	for i := 0; offset < len(frame); i++ {
		n := chunkSize
		if i < len(sizes) && sizes[i] > 0 {
			n = sizes[i]
		}
		end := min(offset+n, len(frame))
		out = append(out, core.Slice{Data: frame[offset:end], Offset: offset})
		offset = end
	}
	return out
}

// Fail reports a driver-side receive error for the frame in progress.
func (c *Chunker) Fail(ts time.Time) {
	c.handler.OnFrameComplete(false, 0, ts)
}

// Stats returns the number of frames fed and slices emitted.
func (c *Chunker) Stats() (frames, slices uint64) {
	return c.frames.Load(), c.slices.Load()
}
