package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/t1sbridge/internal/core"
)

func TestSessionByteOrders(t *testing.T) {
	tests := []struct {
		order ByteOrder
		magic []byte
	}{
		{LittleEndian, []byte{0xD4, 0xC3, 0xB2, 0xA1}},
		{BigEndian, []byte{0xA1, 0xB2, 0xC3, 0xD4}},
	}

	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC)
	frames := [][]byte{bytes.Repeat([]byte{0x11}, 60), bytes.Repeat([]byte{0x22}, 42)}

	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			var out bytes.Buffer
			s, err := NewSession(&out, Config{ByteOrder: tt.order})
			require.NoError(t, err)
			for _, f := range frames {
				require.NoError(t, s.Append(ts, f))
			}
			require.NoError(t, s.Close())

			raw := out.Bytes()
			assert.Equal(t, tt.magic, raw[0:4])

			r, err := pcapgo.NewReader(bytes.NewReader(raw))
			require.NoError(t, err)
			assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())
			assert.Equal(t, uint32(DefaultSnaplen), r.Snaplen())

			for _, want := range frames {
				data, ci, err := r.ReadPacketData()
				require.NoError(t, err)
				assert.Equal(t, want, data)
				assert.Equal(t, len(want), ci.Length)
				assert.True(t, ci.Timestamp.Equal(ts), "got %v", ci.Timestamp)
			}
			assert.Equal(t, uint64(2), s.Stats().Records)
		})
	}
}

func TestBigEndianHeaderLayout(t *testing.T) {
	var out bytes.Buffer
	_, err := NewSession(&out, Config{ByteOrder: BigEndian, Snaplen: 1500})
	require.NoError(t, err)

	hdr := out.Bytes()
	require.Len(t, hdr, 24)
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(hdr[4:6]))
	assert.Equal(t, uint16(4), binary.BigEndian.Uint16(hdr[6:8]))
	assert.Equal(t, uint32(1500), binary.BigEndian.Uint32(hdr[16:20]))
	assert.Equal(t, uint32(1), binary.BigEndian.Uint32(hdr[20:24]))
}

func TestHeaderWrittenOnce(t *testing.T) {
	var out bytes.Buffer
	s, err := NewSession(&out, Config{})
	require.NoError(t, err)
	require.NoError(t, s.Append(time.Now(), make([]byte, 10)))
	require.NoError(t, s.Append(time.Now(), make([]byte, 10)))

	assert.Equal(t, 24+2*(16+10), out.Len())
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte{0xD4, 0xC3, 0xB2, 0xA1}))
}

func TestAppendTruncatesToSnaplen(t *testing.T) {
	var out bytes.Buffer
	s, err := NewSession(&out, Config{Snaplen: 64})
	require.NoError(t, err)
	require.NoError(t, s.Append(time.Now(), make([]byte, 100)))

	r, err := pcapgo.NewReader(bytes.NewReader(out.Bytes()))
	require.NoError(t, err)
	data, ci, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Len(t, data, 64)
	assert.Equal(t, 100, ci.Length)
	assert.Equal(t, uint64(1), s.Stats().Truncated)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcap")
	s, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Append(time.Now(), []byte("frame")))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	data, _, err := r.ReadPacketData()
	require.NoError(t, err)
	assert.Equal(t, []byte("frame"), data)
}

func TestOpenFailure(t *testing.T) {
	_, err := Open(Config{Path: filepath.Join(t.TempDir(), "missing", "capture.pcap")})
	assert.Error(t, err)
}

func TestOpenRemovesFileOnHeaderFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.pcap")
	_, err := Open(Config{Path: path, ByteOrder: "middle"})
	require.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stat: %v", err)
}

func TestZeroTimestampSameForBothOrders(t *testing.T) {
	for _, order := range []ByteOrder{LittleEndian, BigEndian} {
		t.Run(string(order), func(t *testing.T) {
			var out bytes.Buffer
			s, err := NewSession(&out, Config{ByteOrder: order})
			require.NoError(t, err)

			before := time.Now().Truncate(time.Second)
			require.NoError(t, s.Append(time.Time{}, []byte("frame")))
			after := time.Now()

			r, err := pcapgo.NewReader(bytes.NewReader(out.Bytes()))
			require.NoError(t, err)
			_, ci, err := r.ReadPacketData()
			require.NoError(t, err)
			assert.False(t, ci.Timestamp.Before(before), "got %v", ci.Timestamp)
			assert.False(t, ci.Timestamp.After(after), "got %v", ci.Timestamp)
		})
	}
}

func TestAppendAfterClose(t *testing.T) {
	s, err := NewSession(&bytes.Buffer{}, Config{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Append(time.Now(), []byte{1}), core.ErrCaptureClosed)
}

type failingWriter struct {
	after int
	n     int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n >= w.after {
		return 0, errors.New("disk full")
	}
	w.n += len(p)
	return len(p), nil
}

func TestAppendWriteError(t *testing.T) {
	s, err := NewSession(&failingWriter{after: 24}, Config{})
	require.NoError(t, err)

	assert.Error(t, s.Append(time.Now(), make([]byte, 10)))
	assert.Equal(t, uint64(1), s.Stats().Errors)
	assert.Zero(t, s.Stats().Records)
}

func TestHeaderWriteError(t *testing.T) {
	_, err := NewSession(&failingWriter{after: 0}, Config{})
	assert.Error(t, err)
}

func TestParseByteOrder(t *testing.T) {
	for in, want := range map[string]ByteOrder{"": LittleEndian, "LE": LittleEndian, "big": BigEndian, "be": BigEndian} {
		got, err := ParseByteOrder(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseByteOrder("middle")
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
