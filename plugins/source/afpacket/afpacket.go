// Package afpacket implements a source that reads Ethernet frames from a
// Linux interface through an AF_PACKET ring.
package afpacket

import (
	"context"
	"fmt"
	"sync/atomic"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/pkg/plugin"
)

const (
	pluginName = "afpacket"

	// Default configuration values
	defaultSnapLen   = 2048
	defaultBlockSize = 1 << 20 // 1MB
	defaultNumBlocks = 16
)

// Config represents afpacket-specific configuration.
type Config struct {
	Interface   string `mapstructure:"interface"`   // required
	SnapLen     int    `mapstructure:"snap_len"`    // optional, default 2048
	BlockSize   int    `mapstructure:"block_size"`  // optional, default 1MB
	NumBlocks   int    `mapstructure:"num_blocks"`  // optional, default 16
	Promiscuous bool   `mapstructure:"promiscuous"` // optional, default false
	IPv4Only    bool   `mapstructure:"ipv4_only"`   // attach a kernel filter for IPv4 frames
}

// Source reads frames from a network interface.
type Source struct {
	config Config

	// Statistics (atomic counters)
	framesReceived atomic.Uint64
	framesDropped  atomic.Uint64
	errors         atomic.Uint64
}

// New creates a new AF_PACKET source instance.
func New() plugin.Source {
	return &Source{}
}

// Name returns the plugin name.
func (s *Source) Name() string { return pluginName }

// Init initializes the source with configuration.
func (s *Source) Init(options map[string]any) error {
	s.config = Config{
		SnapLen:   defaultSnapLen,
		BlockSize: defaultBlockSize,
		NumBlocks: defaultNumBlocks,
	}
	if err := plugin.DecodeOptions(options, &s.config); err != nil {
		return fmt.Errorf("afpacket: %w", err)
	}
	if s.config.Interface == "" {
		return fmt.Errorf("afpacket: %w: interface is required", core.ErrPluginInitFailed)
	}
	if s.config.SnapLen < core.MinEthernetFrame {
		return fmt.Errorf("afpacket: %w: snap_len %d is below %d", core.ErrPluginInitFailed, s.config.SnapLen, core.MinEthernetFrame)
	}
	if fs := frameSize(s.config.SnapLen); s.config.BlockSize%fs != 0 {
		return fmt.Errorf("afpacket: %w: block_size %d is not a multiple of frame size %d", core.ErrPluginInitFailed, s.config.BlockSize, fs)
	}
	if s.config.NumBlocks < 1 {
		return fmt.Errorf("afpacket: %w: num_blocks must be positive", core.ErrPluginInitFailed)
	}
	return nil
}

// Start is a no-op; actual work happens in Capture.
func (s *Source) Start(ctx context.Context) error { return nil }

// Stop is a no-op. Capture owns the ring and closes it when its context
// is done.
func (s *Source) Stop(ctx context.Context) error { return nil }

// Stats returns source statistics.
func (s *Source) Stats() plugin.SourceStats {
	return plugin.SourceStats{
		FramesProduced: s.framesReceived.Load(),
		FramesDropped:  s.framesDropped.Load(),
		Errors:         s.errors.Load(),
	}
}

// frameSize rounds snapLen up to a power of two, at least 2048.
func frameSize(snapLen int) int {
	size := 2048
	for size < snapLen {
		size <<= 1
	}
	return size
}
