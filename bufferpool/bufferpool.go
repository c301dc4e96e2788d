// Package bufferpool provides bounded, size-classed byte-slice pools for the
// scratch buffers block-alignment and caching decorators borrow during a
// read. It generalizes the fixed-size sync.Pool the source keeps for its
// fetch path (internal/fuse/vfs/file.go's fetchBufPool) into a pool with
// multiple size classes and observable counters, since callers here request
// arbitrary aligned-block sizes rather than one fixed chunk size. It also
// keeps the source's direct/heap split: two independently capped tiers, so
// callers that care about the distinction (e.g. backend adapters reusing a
// buffer across a raw I/O call versus one only ever touched in Go) get
// independent bounds instead of competing for one shared cap.
package bufferpool

import (
	"sync"
	"sync/atomic"
)

// classSize is the granularity pool classes are rounded up to. Block sizes
// in practice are powers of two at or above this, so most requests land
// exactly on a class boundary.
const classSize = 8 * 1024

// Kind selects which tier a buffer is borrowed from or returned to. Go has
// no off-heap/direct buffer concept; both tiers are plain []byte, kept
// separate only so each gets its own cap.
type Kind int

const (
	Heap Kind = iota
	Direct
)

func (k Kind) String() string {
	if k == Direct {
		return "direct"
	}
	return "heap"
}

// Stats is a point-in-time snapshot of one tier's activity, exposed the way
// the source exposes segcache.Manager.GetStats: plain counters, safe to
// read concurrently with pool use.
type Stats struct {
	Created   int64 // buffers allocated because no pooled one was available
	Reused    int64 // buffers satisfied from a free-list
	Returned  int64 // buffers handed back via Return
	Discarded int64 // buffers dropped by Return: too small, wrong class, or the free-list was full
}

// tier is a bounded free-list pool for one Kind, partitioned further into
// size classes, each backed by a buffered-channel free-list rather than a
// sync.Pool. A buffered channel is used instead of sync.Pool so capacity is
// explicit and bounded (sync.Pool can be drained by the GC at any time,
// which would make Stats meaningless) and so Stats.Discarded can count
// overflow precisely.
type tier struct {
	max     int
	classes sync.Map // int class size -> chan []byte

	created   atomic.Int64
	reused    atomic.Int64
	returned  atomic.Int64
	discarded atomic.Int64
}

func newTier(max int) *tier {
	if max <= 0 {
		max = 32
	}
	return &tier{max: max}
}

func (t *tier) borrow(minCapacity int) []byte {
	class := classFor(minCapacity)
	if ch := t.classChan(class); ch != nil {
		select {
		case buf := <-ch:
			t.reused.Add(1)
			return buf[:minCapacity]
		default:
		}
	}
	t.created.Add(1)
	return make([]byte, minCapacity, class)
}

func (t *tier) giveBack(buf []byte, minBufferSize int) {
	class := cap(buf)
	if class == 0 || class%classSize != 0 || class < minBufferSize {
		t.discarded.Add(1)
		return
	}

	full := buf[:cap(buf)]
	for i := range full {
		full[i] = 0
	}

	ch := t.classChan(class)
	select {
	case ch <- full:
		t.returned.Add(1)
	default:
		t.discarded.Add(1)
	}
}

func (t *tier) clear() {
	t.classes.Range(func(key, value any) bool {
		t.classes.Delete(key)
		return true
	})
}

func (t *tier) classChan(class int) chan []byte {
	v, _ := t.classes.LoadOrStore(class, make(chan []byte, t.max))
	return v.(chan []byte)
}

func (t *tier) stats() Stats {
	return Stats{
		Created:   t.created.Load(),
		Reused:    t.reused.Load(),
		Returned:  t.returned.Load(),
		Discarded: t.discarded.Load(),
	}
}

func classFor(size int) int {
	if size <= 0 {
		return classSize
	}
	if size%classSize == 0 {
		return size
	}
	return ((size / classSize) + 1) * classSize
}

// Pool hands out byte slices from two independently capped tiers, Direct
// and Heap, each size-classed to an 8 KiB granularity.
type Pool struct {
	minBufferSize int
	direct        *tier
	heap          *tier
}

// New creates a Pool. maxDirectBuffers and maxHeapBuffers bound how many
// buffers each tier retains per size class; buffers returned beyond that
// bound are discarded. minBufferSize is the smallest capacity Return will
// retain — a returned buffer below this size is discarded rather than
// pooled, so the free-lists don't fill up with slices too small to be
// worth reusing.
func New(maxDirectBuffers, maxHeapBuffers, minBufferSize int) *Pool {
	return &Pool{
		minBufferSize: minBufferSize,
		direct:        newTier(maxDirectBuffers),
		heap:          newTier(maxHeapBuffers),
	}
}

// BorrowDirect returns a buffer of length minCapacity from the direct tier,
// with capacity rounded up to the next 8 KiB class boundary so it can be
// pooled. Reuses a free pooled buffer from that same size class if there is
// one; buffers pooled under a larger class are not used. Otherwise it
// allocates and counts the allocation as "created".
func (p *Pool) BorrowDirect(minCapacity int) []byte { return p.direct.borrow(minCapacity) }

// BorrowHeap is BorrowDirect for the heap tier.
func (p *Pool) BorrowHeap(minCapacity int) []byte { return p.heap.borrow(minCapacity) }

// Return hands buf back to the tier named by kind. If buf's capacity is at
// least minBufferSize, lands exactly on a class boundary, and that tier's
// free-list for the class isn't full, the buffer is cleared and retained;
// otherwise it's discarded.
func (p *Pool) Return(kind Kind, buf []byte) {
	if kind == Direct {
		p.direct.giveBack(buf, p.minBufferSize)
		return
	}
	p.heap.giveBack(buf, p.minBufferSize)
}

// Clear drops every pooled buffer from both tiers without resetting the
// activity counters, for callers shutting down a reader chain that want to
// release retained memory immediately instead of waiting on the GC.
func (p *Pool) Clear() {
	p.direct.clear()
	p.heap.clear()
}

// DirectStats returns a snapshot of the direct tier's activity.
func (p *Pool) DirectStats() Stats { return p.direct.stats() }

// HeapStats returns a snapshot of the heap tier's activity.
func (p *Pool) HeapStats() Stats { return p.heap.stats() }
