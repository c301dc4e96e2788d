package gcs_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tileverse-go/rangereader"
	"github.com/tileverse-go/rangereader/backend/gcs"
)

type fakeObjectHandle struct {
	data       []byte
	attrsErr   error
	newErr     error
	gotOffset  int64
	gotLength  int64
}

func (f *fakeObjectHandle) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	if f.attrsErr != nil {
		return nil, f.attrsErr
	}
	return &storage.ObjectAttrs{Size: int64(len(f.data))}, nil
}

func (f *fakeObjectHandle) NewRangeReader(ctx context.Context, offset, length int64) (io.ReadCloser, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	f.gotOffset, f.gotLength = offset, length
	return io.NopCloser(bytes.NewReader(f.data[offset : offset+length])), nil
}

func TestReader_SizeFromAttrs(t *testing.T) {
	obj := &fakeObjectHandle{data: make([]byte, 77)}
	r := gcs.New(obj, "bucket", "object")

	size, known, err := r.Size(context.Background())
	require.NoError(t, err)
	assert.True(t, known)
	assert.EqualValues(t, 77, size)
}

func TestReader_ReadsRangeFromObject(t *testing.T) {
	obj := &fakeObjectHandle{data: []byte("0123456789")}
	r := gcs.New(obj, "bucket", "object")

	buf, err := r.ReadRange(context.Background(), 3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("3456"), buf.Bytes())
	assert.EqualValues(t, 3, obj.gotOffset)
	assert.EqualValues(t, 4, obj.gotLength)
}

func TestReader_ObjectNotExistIsNotFound(t *testing.T) {
	obj := &fakeObjectHandle{attrsErr: storage.ErrObjectNotExist}
	r := gcs.New(obj, "bucket", "missing")

	_, _, err := r.Size(context.Background())
	assert.True(t, rangereader.IsKind(err, rangereader.KindNotFound))
}

func TestReader_GenericErrorIsUnavailable(t *testing.T) {
	obj := &fakeObjectHandle{data: make([]byte, 10), newErr: errors.New("connection reset")}
	r := gcs.New(obj, "bucket", "object")

	_, err := r.ReadRange(context.Background(), 0, 4)
	assert.True(t, rangereader.IsKind(err, rangereader.KindUnavailable))
}
