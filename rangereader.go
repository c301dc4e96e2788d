// Package rangereader defines the uniform byte-range read contract shared
// by every backend adapter and decorator in this module, plus the template
// pipeline that enforces argument validation, EOF clamping, and buffer
// bookkeeping the same way at every node in a decorator chain.
package rangereader

import "context"

// RangeReader is the uniform surface every backend adapter and decorator
// implements: read a byte range by offset, report a (possibly unknown)
// total size, and expose a stable diagnostic identity.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type RangeReader interface {
	// Read reads up to length bytes starting at offset into target,
	// beginning at target's current Position. It returns the number of
	// bytes actually read. Reads past end-of-resource return 0 with a nil
	// error rather than an error.
	//
	// On success, target.Position is advanced by the returned count and
	// target.Limit is left unchanged; target is not flipped, so callers
	// read the written bytes by calling target.Flip() themselves.
	Read(ctx context.Context, offset, length int64, target *Buffer) (int64, error)

	// ReadRange is a convenience form equivalent to allocating a
	// NewBufferSize(length), calling Read, and flipping the result.
	ReadRange(ctx context.Context, offset, length int64) (*Buffer, error)

	// Size returns the resource's total length, or false if unknown (e.g.
	// a chunked HTTP response with no Content-Length). Readers built on
	// Base memoize the result of the first probe, including a failed one:
	// later calls return the same size or the same error without probing
	// again.
	Size(ctx context.Context) (size int64, known bool, err error)

	// Identity returns a stable textual identifier for diagnostics and
	// cache-key scoping. Decorators compose their delegate's identity into
	// their own, e.g. "block-aligned[65536]:file:///data.bin".
	Identity() string

	// Close releases resources held by this reader and its delegate
	// chain. Idempotent: a second Close call is a no-op.
	Close() error
}

// ByteRange identifies a half-open span [Offset, Offset+Length) of a
// resource. It is used as a plain value wherever a range needs to be named
// without performing a read — cache keys, coalescing records, and
// diagnostics.
type ByteRange struct {
	Offset int64
	Length int64
}

// End returns the exclusive end of the range.
func (r ByteRange) End() int64 { return r.Offset + r.Length }

// ReadRange allocates a fresh, flipped buffer and reads into it. It is the
// free-function equivalent of RangeReader.ReadRange, useful for adapting a
// RangeReader that only implements the Read method (e.g. through an
// embedded *Base) without requiring every concrete type to redefine it.
func ReadRange(ctx context.Context, r RangeReader, offset, length int64) (*Buffer, error) {
	buf := NewBufferSize(int(length))
	n, err := r.Read(ctx, offset, length, buf)
	if err != nil {
		return nil, err
	}
	buf.SetLimit(int(n))
	buf.SetPosition(int(n))
	return buf.Flip(), nil
}
