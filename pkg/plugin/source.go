// Package plugin defines the frame source plugin interfaces and their registry.
package plugin

import (
	"context"

	"firestige.xyz/t1sbridge/internal/core"
)

// Plugin is the lifecycle shared by all plugins. Init receives the raw
// options map from the configuration file.
type Plugin interface {
	Name() string
	Init(options map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Source produces whole Ethernet frames for the transport emulation.
// Capture blocks until ctx is done or the source is exhausted, in which
// case it returns nil.
type Source interface {
	Plugin
	Capture(ctx context.Context, output chan<- core.RawFrame) error
	Stats() SourceStats
}

// SourceStats represents source statistics.
type SourceStats struct {
	FramesProduced uint64
	FramesDropped  uint64
	Errors         uint64
}
