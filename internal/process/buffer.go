package process

import (
	"bytes"
	"sync"
)

// DefaultMaxOutputBytes caps each captured stream.
const DefaultMaxOutputBytes = 1 << 20

// BoundedBuffer is an io.Writer that keeps at most its capacity and
// silently discards the rest. Writes always report full success so a
// producer is never stalled or broken by the cap; Truncated reports
// whether anything was dropped. It is safe for concurrent use.
type BoundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	capBytes  int
	truncated bool
}

// NewBoundedBuffer creates a buffer holding at most capBytes bytes.
// A zero or negative capacity uses DefaultMaxOutputBytes.
func NewBoundedBuffer(capBytes int) *BoundedBuffer {
	if capBytes <= 0 {
		capBytes = DefaultMaxOutputBytes
	}
	return &BoundedBuffer{capBytes: capBytes}
}

// Write implements io.Writer.
func (b *BoundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.capBytes - b.buf.Len()
	switch {
	case remaining <= 0:
		if len(p) > 0 {
			b.truncated = true
		}
	case len(p) > remaining:
		b.buf.Write(p[:remaining])
		b.truncated = true
	default:
		b.buf.Write(p)
	}
	return len(p), nil
}

// WriteString appends s under the same cap.
func (b *BoundedBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

// String returns the retained contents.
func (b *BoundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Len returns the number of retained bytes.
func (b *BoundedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// Truncated reports whether any write exceeded the cap.
func (b *BoundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
