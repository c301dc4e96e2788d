package diskcache

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/singleflight"

	"github.com/tileverse-go/rangereader"
)

// Reader wraps a delegate RangeReader with a Cache, fetching and persisting
// one block at a time so every cache key is a whole, block-aligned range
// (matching blockaligned.Reader's contract when the two are composed in the
// canonical decorator stack). Concurrent misses for the same block are
// coalesced through singleflight, same as memcache.Reader.
type Reader struct {
	*rangereader.Base

	delegate  rangereader.RangeReader
	cache     *Cache
	blockSize int64

	group singleflight.Group
}

// NewReader wraps delegate with cache, reading and writing one blockSize
// block at a time. blockSize must be a positive power of two.
func NewReader(delegate rangereader.RangeReader, cache *Cache, blockSize int64) (*Reader, error) {
	if blockSize <= 0 || blockSize&(blockSize-1) != 0 {
		return nil, fmt.Errorf("rangereader/diskcache: block size %d must be a positive power of two", blockSize)
	}
	r := &Reader{delegate: delegate, cache: cache, blockSize: blockSize}
	r.Base = rangereader.NewBase(r)
	return r, nil
}

func (r *Reader) IdentityHook() string {
	return fmt.Sprintf("disk-cache[%d]:%s", r.blockSize, r.delegate.Identity())
}

func (r *Reader) SizeHook(ctx context.Context) (int64, bool, error) {
	return r.delegate.Size(ctx)
}

func (r *Reader) CloseHook() error {
	return r.delegate.Close()
}

// ReadUnflipped rounds [offset, offset+length) to the containing blocks,
// satisfies each block from Cache when present, and falls back to the
// delegate otherwise — persisting what it fetches for next time. A cached
// file found to be corrupt (missing or short) is treated as a miss and
// re-fetched from the delegate exactly once.
func (r *Reader) ReadUnflipped(ctx context.Context, offset, length int64, target *rangereader.Buffer) (int64, error) {
	alignedStart := (offset / r.blockSize) * r.blockSize
	alignedEnd := ((offset + length + r.blockSize - 1) / r.blockSize) * r.blockSize

	var written int64
	for blockStart := alignedStart; blockStart < alignedEnd; blockStart += r.blockSize {
		block, err := r.loadBlock(ctx, blockStart, r.blockSize)
		if err != nil {
			return written, err
		}

		blockEnd := blockStart + int64(len(block))
		loStart := max64(blockStart, offset)
		hiEnd := min64(blockEnd, offset+length)
		if loStart < hiEnd {
			n, err := target.Write(block[loStart-blockStart : hiEnd-blockStart])
			if err != nil {
				return written, err
			}
			written += int64(n)
		}

		if int64(len(block)) < r.blockSize {
			break // delegate hit EOF inside this block
		}
	}
	return written, nil
}

// loadBlock returns the full contents of one aligned block, from cache when
// possible.
func (r *Reader) loadBlock(ctx context.Context, blockStart, blockLen int64) ([]byte, error) {
	logicalKey := fmt.Sprintf("%s:%d:%d", r.delegate.Identity(), blockStart, blockLen)
	hashedKey := HashKey(logicalKey)

	if data, ok, err := r.cache.Get(hashedKey); err != nil {
		return nil, err
	} else if ok {
		return data, nil
	}

	v, err, _ := r.group.Do(hashedKey, func() (interface{}, error) {
		return r.fetchAndStore(ctx, blockStart, blockLen, hashedKey)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (r *Reader) fetchAndStore(ctx context.Context, blockStart, blockLen int64, hashedKey string) ([]byte, error) {
	var buf *rangereader.Buffer
	err := retry.Do(
		func() error {
			var err error
			buf, err = r.delegate.ReadRange(ctx, blockStart, blockLen)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.RetryIf(func(err error) bool { return rangereader.IsKind(err, rangereader.KindUnavailable) }),
	)
	if err != nil {
		return nil, err
	}

	data := buf.Bytes()
	if putErr := r.cache.Put(hashedKey, data); putErr != nil {
		// A failure to persist is not a read failure: the caller still
		// gets their data, just without it being cached for next time.
		return data, nil
	}
	return data, nil
}

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
