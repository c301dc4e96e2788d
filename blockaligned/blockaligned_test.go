package blockaligned_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tileverse-go/rangereader"
	"github.com/tileverse-go/rangereader/blockaligned"
	"github.com/tileverse-go/rangereader/bufferpool"
)

// memReader is a minimal in-memory RangeReader used to verify blockaligned's
// request-splitting behavior without a real backend.
type memReader struct {
	*rangereader.Base
	data  []byte
	reads []rangereader.ByteRange // records every range the aligner asked for
}

type recordingHook struct {
	r *memReader
}

func newMemReader(data []byte) *memReader {
	m := &memReader{data: data}
	m.Base = rangereader.NewBase(&recordingHook{r: m})
	return m
}

func (h *recordingHook) IdentityHook() string { return "mem://test" }

func (h *recordingHook) SizeHook(ctx context.Context) (int64, bool, error) {
	return int64(len(h.r.data)), true, nil
}

func (h *recordingHook) CloseHook() error { return nil }

func (h *recordingHook) ReadUnflipped(ctx context.Context, offset, length int64, target *rangereader.Buffer) (int64, error) {
	h.r.reads = append(h.r.reads, rangereader.ByteRange{Offset: offset, Length: length})
	n, err := target.Write(h.r.data[offset : offset+length])
	return int64(n), err
}

func TestBlockAligned_SingleBlockRead(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	delegate := newMemReader(data)

	r, err := blockaligned.New(delegate, 64, bufferpool.New(4, 4, 0))
	require.NoError(t, err)

	buf, err := r.ReadRange(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.Equal(t, data[10:30], buf.Bytes())

	require.Len(t, delegate.reads, 1)
	assert.Equal(t, int64(0), delegate.reads[0].Offset)
	assert.Equal(t, int64(64), delegate.reads[0].Length)
}

func TestBlockAligned_SpanningMultipleBlocks(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	delegate := newMemReader(data)

	r, err := blockaligned.New(delegate, 64, nil)
	require.NoError(t, err)

	buf, err := r.ReadRange(context.Background(), 50, 100)
	require.NoError(t, err)
	assert.Equal(t, data[50:150], buf.Bytes())

	require.Len(t, delegate.reads, 3) // blocks [0,64) [64,128) [128,192)
}

func TestBlockAligned_ShortFinalBlockAtEOF(t *testing.T) {
	data := make([]byte, 100)
	delegate := newMemReader(data)

	r, err := blockaligned.New(delegate, 64, nil)
	require.NoError(t, err)

	buf, err := r.ReadRange(context.Background(), 90, 50)
	require.NoError(t, err)
	assert.Len(t, buf.Bytes(), 10) // len(data)-90 == 10 bytes available
}

func TestNew_RejectsNonPowerOfTwoBlockSize(t *testing.T) {
	delegate := newMemReader(make([]byte, 10))
	_, err := blockaligned.New(delegate, 3, nil)
	assert.Error(t, err)
}
