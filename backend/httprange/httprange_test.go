package httprange_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tileverse-go/rangereader"
	"github.com/tileverse-go/rangereader/backend/httprange"
)

// failingAuthenticator simulates a Digest-style bootstrap failure: every
// Authenticate call errors out before ever touching the request.
type failingAuthenticator struct{ calls int }

func (f *failingAuthenticator) Authenticate(req *http.Request) error {
	f.calls++
	return errAuthBootstrap
}

var errAuthBootstrap = errors.New("challenge probe unreachable")

func TestReader_ReadsPartialContent(t *testing.T) {
	data := []byte("0123456789abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodHead {
			w.Header().Set("Accept-Ranges", "bytes")
			w.Header().Set("Content-Length", "16")
			return
		}
		w.Header().Set("Content-Range", "bytes 2-5/16")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data[2:6])
	}))
	defer srv.Close()

	r := httprange.New(srv.URL)
	buf, err := r.ReadRange(context.Background(), 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), buf.Bytes())
}

func TestReader_SizeFromHeadContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Length", "100")
	}))
	defer srv.Close()

	r := httprange.New(srv.URL)
	size, known, err := r.Size(context.Background())
	require.NoError(t, err)
	assert.True(t, known)
	assert.EqualValues(t, 100, size)
}

func TestReader_FullBodyOn200IsUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodHead {
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ignored range header"))
	}))
	defer srv.Close()

	r := httprange.New(srv.URL)
	_, err := r.ReadRange(context.Background(), 0, 4)
	assert.True(t, rangereader.IsKind(err, rangereader.KindUnsupported))
}

func TestReader_404IsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := httprange.New(srv.URL)
	_, err := r.ReadRange(context.Background(), 0, 4)
	assert.True(t, rangereader.IsKind(err, rangereader.KindNotFound))
}

func TestReader_401IsPermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := httprange.New(srv.URL)
	_, err := r.ReadRange(context.Background(), 0, 4)
	assert.True(t, rangereader.IsKind(err, rangereader.KindPermissionDenied))
}

func TestReader_AcceptRangesNoneFailsReadAsUnsupported(t *testing.T) {
	var getCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodHead {
			w.Header().Set("Accept-Ranges", "none")
			w.Header().Set("Content-Length", "16")
			return
		}
		getCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := httprange.New(srv.URL)
	_, err := r.ReadRange(context.Background(), 0, 4)
	require.Error(t, err)
	assert.True(t, rangereader.IsKind(err, rangereader.KindUnsupported))
	assert.False(t, getCalled, "a server that advertised no range support should never receive the ranged GET")

	var rrErr *rangereader.Error
	require.ErrorAs(t, err, &rrErr)
	assert.Equal(t, srv.URL, rrErr.Identity)
}

func TestReader_AuthBootstrapFailureFallsThroughToUnauthenticatedRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "" {
			t.Errorf("expected no Authorization header, got %q", req.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	authn := &failingAuthenticator{}
	r := httprange.New(srv.URL, httprange.WithAuthenticator(authn))

	_, err := r.ReadRange(context.Background(), 0, 4)
	require.Error(t, err)
	assert.True(t, rangereader.IsKind(err, rangereader.KindPermissionDenied))
	assert.Positive(t, authn.calls, "authenticator should have been attempted before falling through")
}
