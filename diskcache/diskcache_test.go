package diskcache_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tileverse-go/rangereader"
	"github.com/tileverse-go/rangereader/diskcache"
)

type countingReader struct {
	*rangereader.Base
	data  []byte
	calls atomic.Int64
}

type countingHook struct{ r *countingReader }

func newCountingReader(data []byte) *countingReader {
	r := &countingReader{data: data}
	r.Base = rangereader.NewBase(&countingHook{r: r})
	return r
}

func (h *countingHook) IdentityHook() string { return "mem://diskcache-test" }
func (h *countingHook) SizeHook(context.Context) (int64, bool, error) {
	return int64(len(h.r.data)), true, nil
}
func (h *countingHook) CloseHook() error { return nil }
func (h *countingHook) ReadUnflipped(ctx context.Context, offset, length int64, target *rangereader.Buffer) (int64, error) {
	h.r.calls.Add(1)
	n, err := target.Write(h.r.data[offset : offset+length])
	return int64(n), err
}

func newTestCache(t *testing.T) *diskcache.Cache {
	t.Helper()
	fs := afero.NewMemMapFs()
	c, err := diskcache.NewCache(diskcache.Config{
		Fs:           fs,
		CachePath:    "/cache",
		MaxSizeBytes: 1 << 20,
	})
	require.NoError(t, err)
	return c
}

func TestCache_PutThenGet(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Put("abc", []byte("hello")))

	data, ok, err := c.Get("abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)
}

func TestCache_GetMissingKeyIsMiss(t *testing.T) {
	c := newTestCache(t)

	_, ok, err := c.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := diskcache.NewCache(diskcache.Config{Fs: fs, CachePath: "/cache", MaxSizeBytes: 10})
	require.NoError(t, err)

	require.NoError(t, c.Put("a", []byte("12345")))
	require.NoError(t, c.Put("b", []byte("12345")))
	_, _, _ = c.Get("a") // touch a so it is more recently used than b
	require.NoError(t, c.Put("c", []byte("12345")))

	require.NoError(t, c.Evict())

	_, aOK, _ := c.Get("a")
	_, cOK, _ := c.Get("c")
	assert.True(t, aOK)
	assert.True(t, cOK)
}

func TestReader_CachesBlocksAcrossReads(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	delegate := newCountingReader(data)
	cache := newTestCache(t)

	r, err := diskcache.NewReader(delegate, cache, 64)
	require.NoError(t, err)

	buf, err := r.ReadRange(context.Background(), 0, 64)
	require.NoError(t, err)
	assert.Equal(t, data[:64], buf.Bytes())
	assert.EqualValues(t, 1, delegate.calls.Load())

	buf2, err := r.ReadRange(context.Background(), 0, 64)
	require.NoError(t, err)
	assert.Equal(t, data[:64], buf2.Bytes())
	assert.EqualValues(t, 1, delegate.calls.Load()) // second read served from disk cache
}

func TestReader_RejectsNonPowerOfTwoBlockSize(t *testing.T) {
	delegate := newCountingReader(make([]byte, 10))
	cache := newTestCache(t)

	_, err := diskcache.NewReader(delegate, cache, 100)
	assert.Error(t, err)
}

func TestCache_SaveAndLoadCatalogRoundTrips(t *testing.T) {
	fs := afero.NewMemMapFs()
	c, err := diskcache.NewCache(diskcache.Config{Fs: fs, CachePath: "/cache", MaxSizeBytes: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, c.Put("k1", []byte("value")))
	require.NoError(t, c.SaveCatalog())

	reopened, err := diskcache.NewCache(diskcache.Config{Fs: fs, CachePath: "/cache", MaxSizeBytes: 1 << 20})
	require.NoError(t, err)
	assert.True(t, reopened.Has("k1"))
}
