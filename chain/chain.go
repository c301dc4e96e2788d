// Package chain assembles the canonical decorator stack — BlockAligned
// (small) -> MemoryCache -> BlockAligned (large) -> DiskCache -> backend —
// from Options in one Build call. FromConfiguration derives the block-size
// and memory-cache Options from a provider.Configuration; it never enables
// the disk cache, which callers turn on by setting DiskEnabled and
// DiskCache themselves. It lives in its own package
// because every decorator
// package imports the root rangereader package for Base/Hook/RangeReader;
// a builder living in rangereader itself would create an import cycle.
package chain

import (
	"fmt"
	"time"

	"github.com/tileverse-go/rangereader"
	"github.com/tileverse-go/rangereader/blockaligned"
	"github.com/tileverse-go/rangereader/bufferpool"
	"github.com/tileverse-go/rangereader/diskcache"
	"github.com/tileverse-go/rangereader/memcache"
	"github.com/tileverse-go/rangereader/provider"
)

// Options parameterizes the stack. Any *Enabled flag left false collapses
// that stage out of the chain entirely.
type Options struct {
	OuterBlockSize int64 // aligns reads before the memory cache; 0 disables this stage
	InnerBlockSize int64 // aligns reads before the disk cache; 0 disables this stage

	MemoryEnabled           bool
	MemoryHotEntries        int
	MemoryColdMaxBytes      int64
	MemoryExpireAfterAccess time.Duration

	DiskEnabled   bool
	DiskCache     *diskcache.Cache // required when DiskEnabled
	DiskBlockSize int64

	Pool *bufferpool.Pool // shared scratch-buffer pool for both block-aligned stages; may be nil
}

// FromConfiguration derives Options from a provider.Configuration's
// caching.* keys, using the documented defaults. caching.blockaligned
// (default true) gates both block-alignment stages: when false, neither
// OuterBlockSize nor InnerBlockSize is set, so Build collapses both
// BlockAligned stages out of the chain regardless of caching.blocksize.
func FromConfiguration(cfg *provider.Configuration) Options {
	opts := Options{
		MemoryEnabled:      cfg.GetBool(provider.KeyCachingEnabled, true),
		MemoryHotEntries:   64,
		MemoryColdMaxBytes: 64 << 20,
	}
	if cfg.GetBool(provider.KeyCachingAligned, true) {
		blockSize := cfg.GetInt(provider.KeyCachingBlockLen, 65536)
		opts.OuterBlockSize = blockSize
		opts.InnerBlockSize = blockSize
	}
	return opts
}

// Build wraps backend with the enabled stages, in the canonical order.
func Build(backend rangereader.RangeReader, opts Options) (rangereader.RangeReader, error) {
	reader := backend

	if opts.DiskEnabled {
		if opts.DiskCache == nil {
			return nil, fmt.Errorf("rangereader/chain: DiskEnabled requires a DiskCache")
		}
		blockSize := opts.DiskBlockSize
		if blockSize == 0 {
			blockSize = opts.InnerBlockSize
		}
		diskReader, err := diskcache.NewReader(reader, opts.DiskCache, nonZero(blockSize, 1<<20))
		if err != nil {
			return nil, err
		}
		reader = diskReader
	}

	if opts.InnerBlockSize > 0 {
		aligned, err := blockaligned.New(reader, opts.InnerBlockSize, opts.Pool)
		if err != nil {
			return nil, err
		}
		reader = aligned
	}

	if opts.MemoryEnabled {
		cached, err := memcache.New(reader, memcache.Config{
			HotEntries:        nonZeroInt(opts.MemoryHotEntries, 64),
			ColdMaxBytes:      nonZero(opts.MemoryColdMaxBytes, 64<<20),
			ExpireAfterAccess: opts.MemoryExpireAfterAccess,
		})
		if err != nil {
			return nil, err
		}
		reader = cached
	}

	if opts.OuterBlockSize > 0 {
		aligned, err := blockaligned.New(reader, opts.OuterBlockSize, opts.Pool)
		if err != nil {
			return nil, err
		}
		reader = aligned
	}

	return reader, nil
}

func nonZero(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
