// Package file implements a source that replays frames from a pcap or
// pcapng capture file.
package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/log"
	"firestige.xyz/t1sbridge/pkg/plugin"
)

const pluginName = "file"

var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

// Config represents file-specific configuration.
type Config struct {
	Path     string `mapstructure:"path"`     // required
	Realtime bool   `mapstructure:"realtime"` // honor recorded inter-frame gaps
	Loop     bool   `mapstructure:"loop"`     // restart at EOF until cancelled
}

type frameReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Source replays a capture file.
type Source struct {
	config Config

	produced atomic.Uint64
	skipped  atomic.Uint64
	errors   atomic.Uint64
}

// New creates a new file source.
func New() plugin.Source {
	return &Source{}
}

// Name returns the plugin name.
func (s *Source) Name() string { return pluginName }

// Init decodes options and checks that the file exists.
func (s *Source) Init(options map[string]any) error {
	if err := plugin.DecodeOptions(options, &s.config); err != nil {
		return fmt.Errorf("file: %w", err)
	}
	if s.config.Path == "" {
		return fmt.Errorf("file: %w: path is required", core.ErrPluginInitFailed)
	}
	if _, err := os.Stat(s.config.Path); err != nil {
		return fmt.Errorf("file: %w: %v", core.ErrPluginInitFailed, err)
	}
	return nil
}

// Start is a no-op; work happens in Capture.
func (s *Source) Start(ctx context.Context) error { return nil }

// Stop is a no-op; Capture returns when its context is done.
func (s *Source) Stop(ctx context.Context) error { return nil }

// Capture replays the file into output. It returns nil at EOF unless
// looping, and nil when ctx is done.
func (s *Source) Capture(ctx context.Context, output chan<- core.RawFrame) error {
	logger := log.GetLogger().WithField("source", pluginName)
	for {
		n, err := s.replay(ctx, output)
		if err != nil {
			s.errors.Add(1)
			return err
		}
		logger.Infof("replayed %d frames from %s", n, s.config.Path)
		if !s.config.Loop || ctx.Err() != nil || n == 0 {
			return nil
		}
	}
}

func (s *Source) replay(ctx context.Context, output chan<- core.RawFrame) (int, error) {
	f, err := os.Open(s.config.Path)
	if err != nil {
		return 0, fmt.Errorf("file: open: %w", err)
	}
	defer f.Close()

	r, err := openReader(bufio.NewReader(f))
	if err != nil {
		return 0, fmt.Errorf("file: %s: %w", s.config.Path, err)
	}
	if lt := r.LinkType(); lt != layers.LinkTypeEthernet {
		return 0, fmt.Errorf("file: %s: unsupported link type %s", s.config.Path, lt)
	}

	var (
		n       int
		first   time.Time
		started time.Time
	)
	for {
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("file: read: %w", err)
		}
		if ci.CaptureLength < ci.Length {
			// a truncated record cannot be reassembled into the original frame
			s.skipped.Add(1)
			continue
		}

		if s.config.Realtime {
			if first.IsZero() {
				first, started = ci.Timestamp, time.Now()
			} else if wait := ci.Timestamp.Sub(first) - time.Since(started); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return n, nil
				}
			}
		}

		select {
		case output <- core.RawFrame{Data: data, Timestamp: ci.Timestamp, OrigLen: uint32(ci.Length)}:
			s.produced.Add(1)
			n++
		case <-ctx.Done():
			return n, nil
		}
	}
}

// openReader picks the pcapng or classic pcap reader by magic number.
func openReader(r *bufio.Reader) (frameReader, error) {
	magic, err := r.Peek(4)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(magic, pcapngMagic) {
		return pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(r)
}

// Stats returns source statistics.
func (s *Source) Stats() plugin.SourceStats {
	return plugin.SourceStats{
		FramesProduced: s.produced.Load(),
		FramesDropped:  s.skipped.Load(),
		Errors:         s.errors.Load(),
	}
}
