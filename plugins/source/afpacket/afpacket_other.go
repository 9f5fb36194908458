//go:build !linux

package afpacket

import (
	"context"
	"errors"

	"firestige.xyz/t1sbridge/internal/core"
)

// Capture is only available on Linux.
func (s *Source) Capture(ctx context.Context, output chan<- core.RawFrame) error {
	s.errors.Add(1)
	return errors.New("afpacket: not supported on this platform")
}
