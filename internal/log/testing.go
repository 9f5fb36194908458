package log

import (
	"bytes"
	"sync"
)

// Buffer is a concurrency-safe in-memory log sink.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewBufferLogger returns a logger at level that writes only to buf.
// Components use it in tests to assert on emitted events.
func NewBufferLogger(level string) (Logger, *Buffer) {
	buf := &Buffer{}
	l, _ := newLogrusAdapterWithOutput(&LoggerConfig{
		Level:   level,
		Pattern: "[%level] %msg %field\n",
	}, buf)
	return l, buf
}
