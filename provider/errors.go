package provider

import "errors"

// ErrProviderNotFound is returned when a Configuration names a forced
// provider id that isn't registered.
var ErrProviderNotFound = errors.New("provider not found")

// ErrNoProvider is returned when no registered, available, enabled
// provider can process a Configuration's URI.
var ErrNoProvider = errors.New("no provider available")
