// Package file implements the local-filesystem backend adapter, reading
// byte ranges with afero.File.ReadAt through an afero.Fs rather than the
// bare os package, so the same adapter can run against an in-memory
// filesystem under test.
package file

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/tileverse-go/rangereader"
)

// Reader reads byte ranges from a single file on an afero.Fs.
type Reader struct {
	*rangereader.Base

	fs   afero.Fs
	path string

	openOnce sync.Once
	openErr  error
	f        afero.File
}

// New opens path on fs (afero.NewOsFs() when fs is nil) lazily, on first
// read, so constructing a Reader never touches the filesystem or returns an
// I/O error itself.
func New(fs afero.Fs, path string) *Reader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	r := &Reader{fs: fs, path: path}
	r.Base = rangereader.NewBase(r)
	return r
}

func (r *Reader) IdentityHook() string {
	return "file://" + r.path
}

func (r *Reader) ensureOpen() error {
	r.openOnce.Do(func() {
		f, err := r.fs.Open(r.path)
		if err != nil {
			r.openErr = rangereader.NewError(classifyOSErr(err), "Open", r.IdentityHook(), err)
			return
		}
		r.f = f
	})
	return r.openErr
}

func (r *Reader) SizeHook(ctx context.Context) (int64, bool, error) {
	if err := r.ensureOpen(); err != nil {
		return 0, false, err
	}
	info, err := r.f.Stat()
	if err != nil {
		return 0, false, rangereader.NewError(rangereader.KindIO, "Size", r.IdentityHook(), err)
	}
	return info.Size(), true, nil
}

func (r *Reader) ReadUnflipped(ctx context.Context, offset, length int64, target *rangereader.Buffer) (int64, error) {
	if err := r.ensureOpen(); err != nil {
		return 0, err
	}

	scratch := make([]byte, length)
	n, err := r.f.ReadAt(scratch, offset)
	if err != nil && err != io.EOF {
		return 0, rangereader.NewRangeError(rangereader.KindIO, "Read", r.IdentityHook(), offset, length, err)
	}
	written, werr := target.Write(scratch[:n])
	return int64(written), werr
}

func (r *Reader) CloseHook() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}

func classifyOSErr(err error) rangereader.Kind {
	switch {
	case os.IsNotExist(err):
		return rangereader.KindNotFound
	case os.IsPermission(err):
		return rangereader.KindPermissionDenied
	default:
		return rangereader.KindIO
	}
}
