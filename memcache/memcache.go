// Package memcache caches read ranges in process memory ahead of a
// delegate, coalescing concurrent misses for the same range the way the
// source's CachedFile.fetchRange coalesces concurrent fetches through a
// package-level singleflight.Group (internal/fuse/vfs/file.go), and
// reporting activity the way segcache.Manager.GetStats does
// (internal/nzbfilesystem/segcache/manager.go).
//
// Entries are tiered: a small hot tier capped by entry count
// (hashicorp/golang-lru/v2) backs the fast path, and a larger cold tier
// capped by total byte weight (golang/groupcache's lru.Cache, driven
// through its OnEvicted hook since it has no native weight-based eviction)
// absorbs what the hot tier evicts. A miss in both tiers triggers exactly
// one delegate read per key, regardless of how many goroutines requested it
// concurrently.
package memcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	groupcache "github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"

	"github.com/tileverse-go/rangereader"
)

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits          int64
	Misses        int64
	HotEntries    int
	ColdEntries   int
	ColdBytes     int64
	ColdMaxBytes  int64
	CoalescedLoad int64 // number of reads that waited on another goroutine's in-flight load rather than issuing one themselves
}

type entry struct {
	data       []byte
	lastAccess time.Time
}

func (e *entry) weight() int64 { return int64(len(e.data)) }

// Config controls tier sizing and entry lifetime.
type Config struct {
	// HotEntries bounds the hot tier's entry count.
	HotEntries int
	// ColdMaxBytes bounds the cold tier's total byte weight.
	ColdMaxBytes int64
	// ExpireAfterAccess evicts an entry lazily, on its next lookup, once
	// this long has passed since it was last touched. Zero disables
	// expiry.
	ExpireAfterAccess time.Duration
}

// Reader wraps a delegate RangeReader with the two-tier cache described in
// the package doc.
type Reader struct {
	*rangereader.Base

	delegate rangereader.RangeReader
	cfg      Config

	mu   sync.Mutex
	hot  *lru.Cache[string, *entry]
	cold *groupcache.Cache

	coldBytes int64

	// suppressDemote is set while removing an expired hot entry so the
	// eviction callback drops it instead of demoting it to the cold tier.
	suppressDemote bool

	group singleflight.Group

	hits, misses, coalesced int64
}

// New wraps delegate with an in-memory cache. cfg.HotEntries and
// cfg.ColdMaxBytes must both be positive.
func New(delegate rangereader.RangeReader, cfg Config) (*Reader, error) {
	if cfg.HotEntries <= 0 {
		return nil, fmt.Errorf("rangereader/memcache: HotEntries must be positive")
	}
	if cfg.ColdMaxBytes <= 0 {
		return nil, fmt.Errorf("rangereader/memcache: ColdMaxBytes must be positive")
	}

	r := &Reader{delegate: delegate, cfg: cfg}

	cold := groupcache.New(0) // unbounded entry count; byte weight enforced manually below
	cold.OnEvicted = func(key groupcache.Key, value interface{}) {
		r.coldBytes -= value.(*entry).weight()
	}
	r.cold = cold

	hot, err := lru.NewWithEvict[string, *entry](cfg.HotEntries, func(key string, e *entry) {
		// Called synchronously from within hot.Add/Remove, always while
		// r.mu is already held. Capacity evictions demote into the cold
		// tier; explicit removal of an expired entry just drops it.
		if r.suppressDemote {
			return
		}
		r.addColdLocked(key, e)
	})
	if err != nil {
		return nil, err
	}
	r.hot = hot

	r.Base = rangereader.NewBase(r)
	return r, nil
}

func (r *Reader) IdentityHook() string {
	return fmt.Sprintf("memcache:%s", r.delegate.Identity())
}

func (r *Reader) SizeHook(ctx context.Context) (int64, bool, error) {
	return r.delegate.Size(ctx)
}

func (r *Reader) CloseHook() error {
	return r.delegate.Close()
}

func key(offset, length int64) string {
	return fmt.Sprintf("%d:%d", offset, length)
}

// addColdLocked requires r.mu to already be held by the caller.
func (r *Reader) addColdLocked(k string, e *entry) {
	r.cold.Add(k, e)
	r.coldBytes += e.weight()
	for r.coldBytes > r.cfg.ColdMaxBytes {
		r.cold.RemoveOldest()
	}
}

func (r *Reader) lookup(k string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.hot.Get(k); ok {
		return r.checkExpiry(k, e, true)
	}
	if v, ok := r.cold.Get(k); ok {
		e := v.(*entry)
		if e, ok := r.checkExpiry(k, e, false); ok {
			// Promote back to hot on a cold hit. cold.Remove's OnEvicted
			// hook already accounts for the byte-weight decrease.
			r.cold.Remove(k)
			r.hot.Add(k, e)
			return e, true
		}
		return nil, false
	}
	return nil, false
}

// checkExpiry returns (e, true) if e is still live, evicting and returning
// (nil, false) if it has aged past ExpireAfterAccess. Caller holds r.mu.
func (r *Reader) checkExpiry(k string, e *entry, inHot bool) (*entry, bool) {
	if r.cfg.ExpireAfterAccess > 0 && time.Since(e.lastAccess) > r.cfg.ExpireAfterAccess {
		if inHot {
			r.suppressDemote = true
			r.hot.Remove(k)
			r.suppressDemote = false
		} else {
			r.cold.Remove(k) // OnEvicted hook accounts for the byte-weight decrease
		}
		return nil, false
	}
	e.lastAccess = time.Now()
	return e, true
}

// ReadUnflipped satisfies the read from cache when possible, otherwise
// issues exactly one delegate read for this key even under concurrent
// callers, via singleflight.
func (r *Reader) ReadUnflipped(ctx context.Context, offset, length int64, target *rangereader.Buffer) (int64, error) {
	k := key(offset, length)

	if e, ok := r.lookup(k); ok {
		r.mu.Lock()
		r.hits++
		r.mu.Unlock()
		n, err := target.Write(e.data)
		return int64(n), err
	}

	r.mu.Lock()
	r.misses++
	r.mu.Unlock()

	loaded := false
	v, err, shared := r.group.Do(k, func() (interface{}, error) {
		loaded = true
		buf, err := r.delegate.ReadRange(ctx, offset, length)
		if err != nil {
			return nil, err
		}
		data := append([]byte(nil), buf.Bytes()...)
		e := &entry{data: data, lastAccess: time.Now()}

		r.mu.Lock()
		r.hot.Add(k, e)
		r.mu.Unlock()

		return data, nil
	})
	if shared && !loaded {
		r.mu.Lock()
		r.coalesced++
		r.mu.Unlock()
	}
	if err != nil {
		return 0, err
	}

	n, err := target.Write(v.([]byte))
	return int64(n), err
}

// Stats returns a snapshot of cache activity.
func (r *Reader) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Hits:          r.hits,
		Misses:        r.misses,
		HotEntries:    r.hot.Len(),
		ColdEntries:   r.cold.Len(),
		ColdBytes:     r.coldBytes,
		ColdMaxBytes:  r.cfg.ColdMaxBytes,
		CoalescedLoad: r.coalesced,
	}
}
