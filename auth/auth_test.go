package auth_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tileverse-go/rangereader/auth"
)

func TestBasicAuth_SetsAuthorizationHeader(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/data", nil)
	require.NoError(t, err)

	a := auth.BasicAuth{Username: "alice", Password: "secret"}
	require.NoError(t, a.Authenticate(req))

	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "secret", pass)
}

func TestBearerAuth_SetsAuthorizationHeader(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/data", nil)
	require.NoError(t, err)

	a := auth.BearerAuth{Token: "tok123"}
	require.NoError(t, a.Authenticate(req))

	assert.Equal(t, "Bearer tok123", req.Header.Get("Authorization"))
}

func TestAPIKeyAuth_SetsConfiguredHeader(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/data", nil)
	require.NoError(t, err)

	a := auth.APIKeyAuth{Header: "X-Api-Key", Prefix: "Key ", Key: "abc"}
	require.NoError(t, a.Authenticate(req))

	assert.Equal(t, "Key abc", req.Header.Get("X-Api-Key"))
}

func TestDigestAuth_ComputesResponseFromProbedChallenge(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/secure/data", nil)
	require.NoError(t, err)

	a := &auth.DigestAuth{
		Username: "alice",
		Password: "secret",
		Probe: func(r *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Header: http.Header{
					"Www-Authenticate": []string{`Digest realm="test", nonce="abc123", qop="auth"`},
				},
				Body: io.NopCloser(strings.NewReader("")),
			}, nil
		},
	}

	require.NoError(t, a.Authenticate(req))

	got := req.Header.Get("Authorization")
	assert.Contains(t, got, `realm="test"`)
	assert.Contains(t, got, `nonce="abc123"`)
	assert.Contains(t, got, "qop=auth")
	assert.Contains(t, got, `nc=00000001`)
}

func TestDigestAuth_ReusesCachedChallengeAcrossRequests(t *testing.T) {
	probeCalls := 0
	a := &auth.DigestAuth{
		Username: "alice",
		Password: "secret",
		Probe: func(r *http.Request) (*http.Response, error) {
			probeCalls++
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Header: http.Header{
					"Www-Authenticate": []string{`Digest realm="test", nonce="abc123"`},
				},
				Body: io.NopCloser(strings.NewReader("")),
			}, nil
		},
	}

	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, "http://example.com/secure/data", nil)
		require.NoError(t, err)
		require.NoError(t, a.Authenticate(req))
	}

	assert.Equal(t, 1, probeCalls)
}
