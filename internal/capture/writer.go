package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

const (
	magicMicroseconds = 0xA1B2C3D4
	versionMajor      = 2
	versionMinor      = 4
)

// recordWriter is the subset of pcapgo.Writer a session needs.
type recordWriter interface {
	WriteFileHeader(snaplen uint32, linktype layers.LinkType) error
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

// orderedWriter writes classic pcap with an explicit byte order.
// pcapgo.Writer only emits little-endian files.
type orderedWriter struct {
	w     io.Writer
	order binary.ByteOrder
	buf   [16]byte
}

func newOrderedWriter(w io.Writer, order binary.ByteOrder) *orderedWriter {
	return &orderedWriter{w: w, order: order}
}

func (o *orderedWriter) WriteFileHeader(snaplen uint32, linktype layers.LinkType) error {
	var hdr [24]byte
	o.order.PutUint32(hdr[0:4], magicMicroseconds)
	o.order.PutUint16(hdr[4:6], versionMajor)
	o.order.PutUint16(hdr[6:8], versionMinor)
	// bytes 8:16 stay 0 (thiszone, sigfigs)
	o.order.PutUint32(hdr[16:20], snaplen)
	o.order.PutUint32(hdr[20:24], uint32(linktype))
	_, err := o.w.Write(hdr[:])
	return err
}

func (o *orderedWriter) WritePacket(ci gopacket.CaptureInfo, data []byte) error {
	if ci.CaptureLength != len(data) {
		return fmt.Errorf("capture length %d does not match data length %d", ci.CaptureLength, len(data))
	}
	if ci.CaptureLength > ci.Length {
		return fmt.Errorf("invalid capture info %+v: capture length > length", ci)
	}

	t := ci.Timestamp
	if t.IsZero() {
		t = time.Now()
	}
	o.order.PutUint32(o.buf[0:4], uint32(t.Unix()))
	o.order.PutUint32(o.buf[4:8], uint32(t.Nanosecond()/1000))
	o.order.PutUint32(o.buf[8:12], uint32(ci.CaptureLength))
	o.order.PutUint32(o.buf[12:16], uint32(ci.Length))
	if _, err := o.w.Write(o.buf[:]); err != nil {
		return fmt.Errorf("write record header: %w", err)
	}
	_, err := o.w.Write(data)
	return err
}
