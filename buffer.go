package rangereader

import "fmt"

// Buffer is a position/limit write cursor over a fixed-capacity byte slice.
// A decorator stack writes additively into the same Buffer — each layer's
// Write call advances Position without disturbing Limit — so the caller's
// original write position is never lost partway through a chain.
//
// The zero value is not usable; construct with NewBuffer or NewBufferSize.
type Buffer struct {
	data  []byte
	pos   int
	limit int
}

// NewBuffer wraps an existing slice. Position starts at 0, Limit at
// len(data); callers that want a larger writable capacity should slice a
// bigger backing array with cap(data) > len(data) and call SetLimit.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data, pos: 0, limit: len(data)}
}

// NewBufferSize allocates a fresh buffer of exactly size bytes, positioned
// at 0 with limit == size.
func NewBufferSize(size int) *Buffer {
	return NewBuffer(make([]byte, size))
}

// Position returns the current write cursor.
func (b *Buffer) Position() int { return b.pos }

// SetPosition repositions the write cursor. Panics if newPos is out of
// [0, Limit()] — callers of this package never do this themselves; it
// exists for decorators that need to rewind before a retry.
func (b *Buffer) SetPosition(newPos int) {
	if newPos < 0 || newPos > b.limit {
		panic(fmt.Sprintf("rangereader: buffer position %d out of range [0, %d]", newPos, b.limit))
	}
	b.pos = newPos
}

// Limit returns the current writable boundary.
func (b *Buffer) Limit() int { return b.limit }

// SetLimit changes the writable boundary. Panics if newLimit is negative or
// exceeds the underlying capacity; a newLimit below Position moves Position
// down to newLimit.
func (b *Buffer) SetLimit(newLimit int) {
	if newLimit < 0 || newLimit > cap(b.data) {
		panic(fmt.Sprintf("rangereader: buffer limit %d out of range [0, %d]", newLimit, cap(b.data)))
	}
	if newLimit < b.pos {
		b.pos = newLimit
	}
	b.limit = newLimit
	b.data = b.data[:newLimit]
}

// Remaining returns the number of bytes that may still be written before
// Position reaches Limit.
func (b *Buffer) Remaining() int { return b.limit - b.pos }

// Write copies p into the buffer starting at Position, advancing Position
// by len(p). Returns InvalidArgument-flavored io.ErrShortBuffer-equivalent
// behavior by returning fewer bytes than len(p) only when Remaining() is
// insufficient — callers of Read never observe this because the template
// pipeline validates Remaining() up front.
func (b *Buffer) Write(p []byte) (int, error) {
	n := copy(b.data[b.pos:b.limit], p)
	b.pos += n
	if n < len(p) {
		return n, fmt.Errorf("rangereader: short write: buffer has %d bytes remaining, wrote %d of %d", b.limit-b.pos+n, n, len(p))
	}
	return n, nil
}

// Flip prepares the buffer for reading: Limit becomes the current
// Position, and Position resets to 0. After Flip, Bytes() returns exactly
// the bytes written so far.
func (b *Buffer) Flip() *Buffer {
	b.limit = b.pos
	b.pos = 0
	return b
}

// Bytes returns the slice from 0 to Limit. Callers must not retain it past
// the buffer's next mutation, and must never write into it: buffers
// returned from a cache are read-only snapshots shared across callers.
func (b *Buffer) Bytes() []byte { return b.data[:b.limit] }

// Cap returns the total backing capacity, independent of Limit.
func (b *Buffer) Cap() int { return cap(b.data) }

// Reset clears the buffer to an empty, freshly-writable state without
// reallocating: Position becomes 0 and Limit becomes the full capacity.
// Used by the buffer pool to hand out a buffer that looks newly allocated.
func (b *Buffer) Reset() {
	b.data = b.data[:cap(b.data)]
	b.pos = 0
	b.limit = cap(b.data)
}
