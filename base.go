package rangereader

import (
	"context"
	"errors"
	"sync"
)

// Hook is what a concrete backend or decorator implements. Base drives it
// through a fixed template — validate arguments, clamp to the resource's
// known size, and hand off the already-clamped range — so every reader in a
// chain enforces the same argument and EOF rules identically instead of
// re-deriving them at each layer. This is an abstract-base/hook-method
// split expressed as Go composition instead of inheritance.
type Hook interface {
	// ReadUnflipped performs the actual read of [offset, offset+length)
	// into target, which is guaranteed by Base to have at least length
	// bytes of Remaining(). offset and length have already been clamped
	// to a known Size when one is available; when Size is unknown the
	// hook receives the caller's length unmodified and must itself
	// report a short read at EOF by returning n < length with a nil
	// error. target is left unflipped, matching RangeReader.Read.
	ReadUnflipped(ctx context.Context, offset, length int64, target *Buffer) (int64, error)

	// SizeHook probes the delegate/backend for its total size. Called at
	// most once per Base instance; the result is memoized.
	SizeHook(ctx context.Context) (size int64, known bool, err error)

	// IdentityHook returns this reader's own identity fragment.
	// Decorators incorporate their delegate's Identity() themselves when
	// composing the string they return here.
	IdentityHook() string

	// CloseHook releases the hook's own resources (and, for decorators,
	// closes the delegate). Called at most once by Base.Close.
	CloseHook() error
}

// Base implements RangeReader by delegating to an embedded Hook, handling
// the concerns every reader needs identically: rejecting negative ranges,
// answering zero-length ranges with (0, nil) without calling the hook,
// clamping reads that run past a known end-of-resource
// down to the available byte count, memoizing Size so repeated calls don't
// re-probe the backend, and making Close idempotent.
//
// Concrete readers embed *Base and implement Hook; they do not implement
// RangeReader's methods directly.
type Base struct {
	hook Hook

	sizeOnce sync.Once
	size     int64
	sizeOK   bool
	sizeErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewBase wires a Hook into the template pipeline. Concrete constructors
// call this last, after setting up their own state, and return the
// resulting *Base embedded in their own type (or, for simple backends,
// return *Base directly aliased via a thin wrapper type).
func NewBase(hook Hook) *Base {
	return &Base{hook: hook}
}

func (b *Base) Identity() string {
	return b.hook.IdentityHook()
}

func (b *Base) Size(ctx context.Context) (int64, bool, error) {
	b.sizeOnce.Do(func() {
		b.size, b.sizeOK, b.sizeErr = b.hook.SizeHook(ctx)
	})
	return b.size, b.sizeOK, b.sizeErr
}

func (b *Base) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.hook.CloseHook()
	})
	return b.closeErr
}

func (b *Base) ReadRange(ctx context.Context, offset, length int64) (*Buffer, error) {
	return ReadRange(ctx, b, offset, length)
}

// Read validates offset/length/target.Remaining(), clamps length against a
// known Size, and delegates the clamped range to the hook. A request that
// starts at or past a known end-of-resource returns (0, nil) without
// invoking the hook: reads past EOF are not errors.
func (b *Base) Read(ctx context.Context, offset, length int64, target *Buffer) (int64, error) {
	id := b.Identity()

	if offset < 0 {
		return 0, newRangeError(KindInvalidArgument, "Read", id, offset, length, errNegativeOffset)
	}
	if length < 0 {
		return 0, newRangeError(KindInvalidArgument, "Read", id, offset, length, errNegativeLength)
	}
	if length == 0 {
		return 0, nil
	}
	if target == nil {
		return 0, newRangeError(KindInvalidArgument, "Read", id, offset, length, errNilTarget)
	}
	if int64(target.Remaining()) < length {
		return 0, newRangeError(KindInvalidArgument, "Read", id, offset, length, errShortTarget)
	}

	clamped := length
	if size, known, err := b.Size(ctx); err != nil {
		var classified *Error
		if errors.As(err, &classified) {
			return 0, err
		}
		return 0, newRangeError(KindIO, "Read", id, offset, length, err)
	} else if known {
		if offset >= size {
			return 0, nil
		}
		if remaining := size - offset; clamped > remaining {
			clamped = remaining
		}
	}

	n, err := b.hook.ReadUnflipped(ctx, offset, clamped, target)
	if err != nil {
		return n, err
	}
	return n, nil
}

var (
	errNegativeOffset = errArg("offset must be non-negative")
	errNegativeLength = errArg("length must be non-negative")
	errNilTarget      = errArg("target buffer must not be nil")
	errShortTarget    = errArg("target buffer has insufficient remaining capacity")
)

type errArg string

func (e errArg) Error() string { return string(e) }
