package rangereader

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide whether to retry, without
// depending on a concrete error type from a specific backend.
type Kind int

const (
	// KindUnspecified is never returned by this package; it exists so the
	// zero value of Kind is not mistaken for a real classification.
	KindUnspecified Kind = iota
	KindInvalidArgument
	KindNotFound
	KindPermissionDenied
	KindUnavailable
	KindCorrupt
	KindUnsupported
	KindIO
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindNotFound:
		return "NotFound"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindUnavailable:
		return "Unavailable"
	case KindCorrupt:
		return "Corrupt"
	case KindUnsupported:
		return "Unsupported"
	case KindIO:
		return "Io"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unspecified"
	}
}

// Error is the error type returned by every reader and decorator in this
// module. It carries enough context — the failing reader's identity and,
// when applicable, the range under read — to diagnose a failure anywhere
// in a decorator chain without re-wrapping at every layer.
type Error struct {
	Kind     Kind
	Identity string
	Offset   int64
	Length   int64
	HasRange bool
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.HasRange {
		return fmt.Sprintf("rangereader: %s: %s [%s, offset=%d, length=%d]: %v",
			e.Op, e.Kind, e.Identity, e.Offset, e.Length, e.Err)
	}
	return fmt.Sprintf("rangereader: %s: %s [%s]: %v", e.Op, e.Kind, e.Identity, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError constructs an *Error, wrapping err when non-nil.
func newError(kind Kind, op, identity string, err error) *Error {
	return &Error{Kind: kind, Op: op, Identity: identity, Err: err}
}

// newRangeError is newError with offset/length recorded for diagnostics.
func newRangeError(kind Kind, op, identity string, offset, length int64, err error) *Error {
	return &Error{Kind: kind, Op: op, Identity: identity, Offset: offset, Length: length, HasRange: true, Err: err}
}

// NewError is the exported form of newError, for backend adapters outside
// this package that need to classify their own failures consistently.
func NewError(kind Kind, op, identity string, err error) *Error {
	return newError(kind, op, identity, err)
}

// NewRangeError is the exported form of newRangeError.
func NewRangeError(kind Kind, op, identity string, offset, length int64, err error) *Error {
	return newRangeError(kind, op, identity, offset, length, err)
}

// IsKind reports whether the first *Error found in err's chain (err itself
// or any error it wraps) has kind k. A *Error nested beneath another *Error
// is not consulted.
func IsKind(err error, k Kind) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind == k
	}
	return false
}
