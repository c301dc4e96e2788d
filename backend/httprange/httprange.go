// Package httprange implements the HTTP(S) backend adapter: ranged GETs
// with a Range header, served through a retryablehttp.Client the way the
// soci-snapshotter pack repo builds its resilient HTTP fetch path, with
// optional request decoration through the auth package.
package httprange

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/tileverse-go/rangereader"
	"github.com/tileverse-go/rangereader/auth"
)

// rangeSupport is what the HEAD probe found out about the server's
// Accept-Ranges header. A missing header is left Unknown rather than
// treated as unsupported, since many servers omit it yet still honor a
// Range request; the GET itself still rejects a 200-with-full-body
// response for that case.
type rangeSupport int

const (
	rangeSupportUnknown rangeSupport = iota
	rangeSupportYes
	rangeSupportNo
)

// Reader reads byte ranges from an HTTP(S) resource via ranged GETs.
type Reader struct {
	*rangereader.Base

	uri    string
	client *retryablehttp.Client
	authn  auth.Authenticator

	probeOnce    sync.Once
	rangeSupport rangeSupport
}

// Option configures a Reader.
type Option func(*Reader)

// WithAuthenticator decorates every outgoing request with authn before it
// is sent.
func WithAuthenticator(authn auth.Authenticator) Option {
	return func(r *Reader) { r.authn = authn }
}

// WithConnectTimeout overrides the default 5s timeout, which is set as the
// underlying http.Client's Timeout: it bounds each whole request
// (connecting, sending, and reading the response body), not only the
// connection phase. There is no separate connect-only timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(r *Reader) { r.client.HTTPClient.Timeout = d }
}

// New creates a Reader for uri. The retryablehttp.Client it builds uses
// retryablehttp.DefaultRetryPolicy: connection failures, 429 responses, and
// 5xx responses other than 501 are retried with exponential backoff; other
// 4xx responses are not retried.
func New(uri string, opts ...Option) *Reader {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.HTTPClient.Timeout = 5 * time.Second
	client.CheckRetry = retryablehttp.DefaultRetryPolicy

	r := &Reader{uri: uri, client: client}
	for _, opt := range opts {
		opt(r)
	}
	r.Base = rangereader.NewBase(r)
	return r
}

func (r *Reader) IdentityHook() string { return r.uri }

func (r *Reader) CloseHook() error { return nil }

// SizeHook issues a single HEAD probe, caching whether the server
// advertises Accept-Ranges alongside the size, since a server without
// range support needs to be treated as Unsupported on the first actual
// ranged read rather than failing Size itself.
func (r *Reader) SizeHook(ctx context.Context) (int64, bool, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, r.uri, nil)
	if err != nil {
		return 0, false, rangereader.NewError(rangereader.KindInvalidArgument, "Size", r.uri, err)
	}
	r.authenticate(req, "Size")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, false, rangereader.NewError(rangereader.KindUnavailable, "Size", r.uri, err)
	}
	defer resp.Body.Close()

	r.probeOnce.Do(func() {
		switch resp.Header.Get("Accept-Ranges") {
		case "bytes":
			r.rangeSupport = rangeSupportYes
		case "none":
			r.rangeSupport = rangeSupportNo
		default:
			r.rangeSupport = rangeSupportUnknown
		}
	})

	if err := classifyStatus(r.uri, "Size", resp.StatusCode, 0, 0); err != nil {
		return 0, false, err
	}
	if resp.ContentLength < 0 {
		return 0, false, nil
	}
	return resp.ContentLength, true, nil
}

// authenticate decorates req with the configured Authenticator, if any. A
// bootstrap failure (e.g. the Digest challenge probe couldn't reach the
// server) doesn't abort the request: it's logged and the request goes out
// unauthenticated, so the server's own 401/403 response is what surfaces
// as PermissionDenied instead of a local probe error masking it.
func (r *Reader) authenticate(req *retryablehttp.Request, op string) {
	if r.authn == nil {
		return
	}
	if err := r.authn.Authenticate(req.Request); err != nil {
		slog.Warn("rangereader/httprange: authenticator bootstrap failed, sending request unauthenticated",
			"op", op, "uri", r.uri, "error", err)
	}
}

// ReadUnflipped issues one ranged GET covering [offset, offset+length) and
// requires a 206 response; a 200 with a full body is treated as an error,
// since it means the server silently ignored the Range header and
// returning the whole body would corrupt the caller's offset accounting.
func (r *Reader) ReadUnflipped(ctx context.Context, offset, length int64, target *rangereader.Buffer) (int64, error) {
	if r.rangeSupport == rangeSupportNo {
		return 0, rangereader.NewRangeError(rangereader.KindUnsupported, "Read", r.uri, offset, length,
			fmt.Errorf("server advertised Accept-Ranges: none"))
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, r.uri, nil)
	if err != nil {
		return 0, rangereader.NewRangeError(rangereader.KindInvalidArgument, "Read", r.uri, offset, length, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	r.authenticate(req, "Read")

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, rangereader.NewRangeError(rangereader.KindCancelled, "Read", r.uri, offset, length, ctx.Err())
		}
		return 0, rangereader.NewRangeError(rangereader.KindUnavailable, "Read", r.uri, offset, length, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return 0, rangereader.NewRangeError(rangereader.KindUnsupported, "Read", r.uri, offset, length,
			fmt.Errorf("server returned 200 OK for a ranged request, ignoring Range header"))
	}
	if err := classifyStatus(r.uri, "Read", resp.StatusCode, offset, length); err != nil {
		return 0, err
	}

	scratch := make([]byte, length)
	n, err := io.ReadFull(resp.Body, scratch)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return 0, rangereader.NewRangeError(rangereader.KindIO, "Read", r.uri, offset, length, err)
	}
	written, werr := target.Write(scratch[:n])
	return int64(written), werr
}

func classifyStatus(uri, op string, status int, offset, length int64) error {
	switch {
	case status == http.StatusPartialContent || status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return rangereader.NewRangeError(rangereader.KindPermissionDenied, op, uri, offset, length,
			fmt.Errorf("http status %d", status))
	case status == http.StatusNotFound:
		return rangereader.NewRangeError(rangereader.KindNotFound, op, uri, offset, length,
			fmt.Errorf("http status %d", status))
	case status >= 400 && status < 500:
		return rangereader.NewRangeError(rangereader.KindIO, op, uri, offset, length,
			fmt.Errorf("http status %d", status))
	case status >= 500:
		return rangereader.NewRangeError(rangereader.KindUnavailable, op, uri, offset, length,
			fmt.Errorf("http status %d", status))
	default:
		return rangereader.NewRangeError(rangereader.KindIO, op, uri, offset, length,
			fmt.Errorf("unexpected http status %d", status))
	}
}
