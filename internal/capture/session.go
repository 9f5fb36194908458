// Package capture writes reassembled frames to a classic pcap file.
package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/t1sbridge/internal/core"
	"firestige.xyz/t1sbridge/internal/metrics"
)

// ByteOrder selects the byte order of the capture file.
type ByteOrder string

const (
	LittleEndian ByteOrder = "little"
	BigEndian    ByteOrder = "big"
)

// DefaultSnaplen is the snapshot length written to the global header.
const DefaultSnaplen = 65535

// ParseByteOrder accepts "little"/"le" and "big"/"be".
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little", "le", "little-endian":
		return LittleEndian, nil
	case "big", "be", "big-endian":
		return BigEndian, nil
	default:
		return "", fmt.Errorf("unknown capture byte order %q: %w", s, core.ErrConfigInvalid)
	}
}

// Config configures a capture session.
type Config struct {
	Path      string
	ByteOrder ByteOrder
	Snaplen   uint32
}

// Stats is a snapshot of session counters.
type Stats struct {
	Records   uint64
	Truncated uint64
	Errors    uint64
	Bytes     uint64
}

// Session is one capture file. The global header is written exactly once,
// when the session is created; each Append writes one record.
type Session struct {
	mu      sync.Mutex
	w       recordWriter
	buf     *bufio.Writer
	closer  io.Closer
	snaplen uint32
	order   ByteOrder
	closed  bool
	stats   Stats
}

// Open creates (truncating) the file at cfg.Path and writes the header.
func Open(cfg Config) (*Session, error) {
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	s, err := NewSession(f, cfg)
	if err != nil {
		f.Close()
		os.Remove(cfg.Path)
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewSession writes the pcap global header to w and returns a session
// appending records to it.
func NewSession(w io.Writer, cfg Config) (*Session, error) {
	order, err := ParseByteOrder(string(cfg.ByteOrder))
	if err != nil {
		return nil, err
	}
	snaplen := cfg.Snaplen
	if snaplen == 0 {
		snaplen = DefaultSnaplen
	}

	bw := bufio.NewWriter(w)
	var rw recordWriter
	if order == BigEndian {
		rw = newOrderedWriter(bw, binary.BigEndian)
	} else {
		rw = pcapgo.NewWriter(bw)
	}

	if err := rw.WriteFileHeader(snaplen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}

	return &Session{
		w:       rw,
		buf:     bw,
		snaplen: snaplen,
		order:   order,
	}, nil
}

// Append writes one record. Frames longer than the snaplen are truncated
// in the record and keep their original length.
func (s *Session) Append(ts time.Time, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.ErrCaptureClosed
	}

	capLen := len(data)
	if uint32(capLen) > s.snaplen {
		capLen = int(s.snaplen)
		s.stats.Truncated++
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: capLen,
		Length:        len(data),
	}
	if err := s.w.WritePacket(ci, data[:capLen]); err != nil {
		s.stats.Errors++
		metrics.CaptureErrorsTotal.Inc()
		return fmt.Errorf("write capture record: %w", err)
	}
	if err := s.buf.Flush(); err != nil {
		s.stats.Errors++
		metrics.CaptureErrorsTotal.Inc()
		return fmt.Errorf("flush capture record: %w", err)
	}

	s.stats.Records++
	s.stats.Bytes += uint64(capLen)
	metrics.CaptureRecordsTotal.Inc()
	return nil
}

// ByteOrder returns the session's byte order.
func (s *Session) ByteOrder() ByteOrder { return s.order }

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close flushes and closes the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.buf.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
