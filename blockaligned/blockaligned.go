// Package blockaligned rounds read requests out to block boundaries before
// forwarding them to a delegate, and iterates over the resulting run of
// blocks to satisfy requests spanning more than one. This is the same shape
// as the source's CachedFile.fetchRange (internal/fuse/vfs/file.go), which
// rounds a requested byte range out to chunkSize boundaries before fetching,
// and airbusgeo/godal's internal/blockcache, which splits a multi-block read
// into per-block fetches and reassembles them. Wrapping a cache with this
// decorator turns arbitrary offsets into a small, bounded set of cache keys.
package blockaligned

import (
	"context"
	"fmt"

	"github.com/tileverse-go/rangereader"
	"github.com/tileverse-go/rangereader/bufferpool"
)

// Reader wraps a delegate RangeReader so every read it forwards is aligned
// to blockSize boundaries, regardless of the offsets callers actually ask
// for.
type Reader struct {
	*rangereader.Base

	delegate  rangereader.RangeReader
	blockSize int64
	pool      *bufferpool.Pool
}

// New wraps delegate so all reads through the result are satisfied by one
// or more full, blockSize-aligned reads against delegate. blockSize must be
// a positive power of two; pool supplies scratch buffers for the
// intermediate aligned blocks and may be nil, in which case each block
// scratch buffer is allocated fresh.
func New(delegate rangereader.RangeReader, blockSize int64, pool *bufferpool.Pool) (*Reader, error) {
	if blockSize <= 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("rangereader/blockaligned: block size %d must be a positive power of two", blockSize)
	}
	r := &Reader{delegate: delegate, blockSize: blockSize, pool: pool}
	r.Base = rangereader.NewBase(r)
	return r, nil
}

func (r *Reader) IdentityHook() string {
	return fmt.Sprintf("block-aligned[%d]:%s", r.blockSize, r.delegate.Identity())
}

func (r *Reader) SizeHook(ctx context.Context) (int64, bool, error) {
	return r.delegate.Size(ctx)
}

func (r *Reader) CloseHook() error {
	return r.delegate.Close()
}

// ReadUnflipped rounds [offset, offset+length) out to the containing block
// boundaries, fetches each covered block from the delegate in turn, and
// copies the overlap between each block and the original request into
// target. offset and length have already been validated and clamped to a
// known size by Base; the final block against an unknown-size delegate may
// still come back short, which this method reports faithfully.
func (r *Reader) ReadUnflipped(ctx context.Context, offset, length int64, target *rangereader.Buffer) (int64, error) {
	alignedStart := alignDown(offset, r.blockSize)
	alignedEnd := alignUp(offset+length, r.blockSize)

	var written int64
	for blockStart := alignedStart; blockStart < alignedEnd; blockStart += r.blockSize {
		blockLen := r.blockSize

		scratch := r.getScratch(int(blockLen))
		scratchBuf := rangereader.NewBuffer(scratch)
		n, err := r.delegate.Read(ctx, blockStart, blockLen, scratchBuf)
		if err != nil {
			r.putScratch(scratch)
			return written, err
		}
		block := scratch[:n]
		blockEnd := blockStart + n

		// Intersect this block with the originally requested range.
		reqStart := offset
		reqEnd := offset + length
		loStart := max64(blockStart, reqStart)
		hiEnd := min64(blockEnd, reqEnd)

		if loStart < hiEnd {
			chunk := block[loStart-blockStart : hiEnd-blockStart]
			if _, err := target.Write(chunk); err != nil {
				r.putScratch(scratch)
				return written, err
			}
			written += int64(len(chunk))
		}

		r.putScratch(scratch)

		if n < blockLen {
			// Delegate hit EOF partway through this block; nothing past
			// it can contribute further bytes.
			break
		}
	}

	return written, nil
}

// getScratch borrows from the pool's direct tier: these buffers are staged
// for exactly one delegate.Read call and copied out of immediately, the
// same zero-copy-across-I/O-calls pattern direct buffers exist for.
func (r *Reader) getScratch(size int) []byte {
	if r.pool != nil {
		return r.pool.BorrowDirect(size)
	}
	return make([]byte, size)
}

func (r *Reader) putScratch(buf []byte) {
	if r.pool != nil {
		r.pool.Return(bufferpool.Direct, buf)
	}
}

func alignDown(v, block int64) int64 { return (v / block) * block }

func alignUp(v, block int64) int64 { return ((v + block - 1) / block) * block }

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
