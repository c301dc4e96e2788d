package bufferpool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tileverse-go/rangereader/bufferpool"
)

func TestPool_BorrowAllocatesWhenEmpty(t *testing.T) {
	p := bufferpool.New(4, 4, 0)

	buf := p.BorrowHeap(100)
	require.Len(t, buf, 100)

	stats := p.HeapStats()
	assert.EqualValues(t, 1, stats.Created)
	assert.EqualValues(t, 0, stats.Reused)
}

func TestPool_ReturnThenBorrowReuses(t *testing.T) {
	p := bufferpool.New(4, 4, 0)

	buf := p.BorrowHeap(8 * 1024)
	p.Return(bufferpool.Heap, buf)

	second := p.BorrowHeap(8 * 1024)
	require.Len(t, second, 8*1024)

	stats := p.HeapStats()
	assert.EqualValues(t, 1, stats.Created)
	assert.EqualValues(t, 1, stats.Reused)
	assert.EqualValues(t, 1, stats.Returned)
}

func TestPool_ReturnBeyondCapacityDiscards(t *testing.T) {
	p := bufferpool.New(4, 1, 0)

	a := p.BorrowHeap(8 * 1024)
	b := p.BorrowHeap(8 * 1024)

	p.Return(bufferpool.Heap, a)
	p.Return(bufferpool.Heap, b) // free-list for this class already holds one buffer

	stats := p.HeapStats()
	assert.EqualValues(t, 1, stats.Returned)
	assert.EqualValues(t, 1, stats.Discarded)
}

func TestPool_ReturnNonClassAlignedBufferDiscards(t *testing.T) {
	p := bufferpool.New(4, 4, 0)

	odd := make([]byte, 3)
	p.Return(bufferpool.Heap, odd)

	assert.EqualValues(t, 1, p.HeapStats().Discarded)
}

func TestPool_ReturnBelowMinBufferSizeDiscards(t *testing.T) {
	p := bufferpool.New(4, 4, 16*1024)

	buf := p.BorrowHeap(8 * 1024)
	p.Return(bufferpool.Heap, buf)

	assert.EqualValues(t, 1, p.HeapStats().Discarded)
	assert.EqualValues(t, 0, p.HeapStats().Returned)
}

func TestPool_BorrowRoundsUpToClassBoundary(t *testing.T) {
	p := bufferpool.New(4, 4, 0)

	buf := p.BorrowHeap(1)
	require.Len(t, buf, 1)
	assert.Equal(t, 8*1024, cap(buf))
}

func TestPool_DirectAndHeapTiersAreIndependentlyCapped(t *testing.T) {
	p := bufferpool.New(1, 1, 0)

	p.Return(bufferpool.Direct, p.BorrowDirect(8*1024))
	p.Return(bufferpool.Heap, p.BorrowHeap(8*1024))

	assert.EqualValues(t, 1, p.DirectStats().Returned)
	assert.EqualValues(t, 1, p.HeapStats().Returned)

	// A second return to each tier overflows that tier's own cap — the two
	// tiers don't share capacity.
	p.Return(bufferpool.Direct, make([]byte, 8*1024, 8*1024))
	p.Return(bufferpool.Heap, make([]byte, 8*1024, 8*1024))

	assert.EqualValues(t, 1, p.DirectStats().Discarded)
	assert.EqualValues(t, 1, p.HeapStats().Discarded)
}

func TestPool_ReturnClearsBufferContents(t *testing.T) {
	p := bufferpool.New(4, 4, 0)

	buf := p.BorrowHeap(8 * 1024)
	for i := range buf {
		buf[i] = 0xFF
	}
	p.Return(bufferpool.Heap, buf)

	reused := p.BorrowHeap(8 * 1024)
	for _, b := range reused {
		require.EqualValues(t, 0, b)
	}
}

func TestPool_ClearDropsPooledBuffersWithoutResettingCounters(t *testing.T) {
	p := bufferpool.New(4, 4, 0)

	p.Return(bufferpool.Heap, p.BorrowHeap(8*1024))
	p.Clear()

	// The free-list is empty again, so the next borrow allocates rather
	// than reuses, but the activity counters already recorded aren't reset.
	p.BorrowHeap(8 * 1024)
	stats := p.HeapStats()
	assert.EqualValues(t, 2, stats.Created)
	assert.EqualValues(t, 0, stats.Reused)
	assert.EqualValues(t, 1, stats.Returned)
}
