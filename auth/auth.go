// Package auth decorates outgoing HTTP requests with the credentials a
// range-reader backend needs, so backend/httprange and the HTTP-scheme
// providers never hardcode a single auth scheme. Authenticators are
// immutable after construction and safe for concurrent use.
package auth

import "net/http"

// Authenticator adds credentials to an outgoing request before it is sent.
// Implementations must not mutate shared state in a way visible to other
// in-flight requests beyond what is documented (DigestAuth's challenge
// cache is the one exception, and that cache is itself concurrency-safe).
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// BasicAuth applies HTTP Basic authentication.
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) Authenticate(req *http.Request) error {
	req.SetBasicAuth(a.Username, a.Password)
	return nil
}

// BearerAuth applies an `Authorization: Bearer <token>` header.
type BearerAuth struct {
	Token string
}

func (a BearerAuth) Authenticate(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// APIKeyAuth sets a single header to a caller-supplied key, optionally
// prefixed (e.g. Header: "Authorization", Prefix: "ApiKey ").
type APIKeyAuth struct {
	Header string
	Prefix string
	Key    string
}

func (a APIKeyAuth) Authenticate(req *http.Request) error {
	req.Header.Set(a.Header, a.Prefix+a.Key)
	return nil
}

// HeaderMapAuth sets an arbitrary fixed set of headers, for schemes that
// don't fit Basic/Bearer/API-key shapes.
type HeaderMapAuth struct {
	Headers map[string]string
}

func (a HeaderMapAuth) Authenticate(req *http.Request) error {
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}
	return nil
}
