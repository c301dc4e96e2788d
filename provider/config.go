// Package provider implements the range-reader service-provider-interface:
// a Registry of Providers, each declaring the URIs it can handle, dispatched
// against a flat Configuration property set the way viper loads
// application configuration is laid out elsewhere in this kind of system.
// The stable property prefix is "io.tileverse.rangereader.".
package provider

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const keyPrefix = "io.tileverse.rangereader."

// Reserved property keys, relative to keyPrefix.
const (
	KeyURI             = "uri"
	KeyProvider        = "provider"
	KeyCachingEnabled  = "caching.enabled"
	KeyCachingAligned  = "caching.blockaligned"
	KeyCachingBlockLen = "caching.blocksize"
)

// ParamType is the declared type of a Parameter's value.
type ParamType int

const (
	ParamBoolean ParamType = iota
	ParamInteger
	ParamString
	ParamURI
)

func (t ParamType) String() string {
	switch t {
	case ParamBoolean:
		return "Boolean"
	case ParamInteger:
		return "Integer"
	case ParamURI:
		return "URI"
	default:
		return "String"
	}
}

// Parameter documents one configuration key a Provider understands, for
// introspection by Registry.Describe — there is no CLI in this module, so
// this is the only place such documentation surfaces.
type Parameter struct {
	Key         string
	Title       string
	Description string
	Type        ParamType
	Default     string
	Enum        []string
	Group       string
}

// Configuration is a resource URI plus an optional forced provider id and a
// flat map of parameter values. It round-trips through
// ToProperties/FromProperties so it can be built from any flat key=value
// source (environment, file, command-line flag parser external to this
// module). Values are kept as given, but FromProperties lower-cases
// parameter keys, so the round trip preserves only all-lower-case keys.
type Configuration struct {
	URI              string
	ForcedProviderID string
	Params           map[string]string
}

// NewConfiguration builds a Configuration for uri with no forced provider
// and an empty parameter set.
func NewConfiguration(uri string) *Configuration {
	return &Configuration{URI: uri, Params: map[string]string{}}
}

// Get returns a raw string parameter value and whether it was present.
func (c *Configuration) Get(key string) (string, bool) {
	v, ok := c.Params[key]
	return v, ok
}

// GetString returns a parameter value or def if absent.
func (c *Configuration) GetString(key, def string) string {
	if v, ok := c.Params[key]; ok {
		return v
	}
	return def
}

// GetBool parses a parameter as a boolean, returning def if absent or
// unparsable.
func (c *Configuration) GetBool(key string, def bool) bool {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetInt parses a parameter as an integer, returning def if absent or
// unparsable.
func (c *Configuration) GetInt(key string, def int64) int64 {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// ToProperties flattens the Configuration into a key=value map rooted at
// keyPrefix, suitable for writing to a .properties-style file or an
// environment.
func (c *Configuration) ToProperties() map[string]string {
	out := map[string]string{keyPrefix + KeyURI: c.URI}
	if c.ForcedProviderID != "" {
		out[keyPrefix+KeyProvider] = c.ForcedProviderID
	}
	for k, v := range c.Params {
		out[keyPrefix+k] = v
	}
	return out
}

// FromProperties parses a flat key=value map into a Configuration using
// viper: every entry is set on a fresh viper instance, then Sub scopes down
// to the stable keyPrefix the way dittofs and gcsfuse scope their own
// viper trees down to a component's settings. This lets callers load
// configuration from any source viper supports (files, env, flags)
// without this package depending on any of those sources directly.
// Unknown keys under keyPrefix pass through into Params with their values
// unchanged; viper treats keys case-insensitively and stores them
// lower-cased, so the keys in Params are lower-case.
func FromProperties(props map[string]string) (*Configuration, error) {
	v := viper.New()
	for k, val := range props {
		v.Set(k, val)
	}

	sub := v.Sub(strings.TrimSuffix(keyPrefix, "."))
	if sub == nil {
		return nil, fmt.Errorf("rangereader/provider: configuration missing required %s%s", keyPrefix, KeyURI)
	}

	cfg := &Configuration{
		URI:              sub.GetString(KeyURI),
		ForcedProviderID: sub.GetString(KeyProvider),
		Params:           map[string]string{},
	}
	if cfg.URI == "" {
		return nil, fmt.Errorf("rangereader/provider: configuration missing required %s%s", keyPrefix, KeyURI)
	}

	flatten("", sub.AllSettings(), cfg.Params)
	delete(cfg.Params, KeyURI)
	delete(cfg.Params, KeyProvider)
	return cfg, nil
}

// flatten turns viper's nested AllSettings() map back into dotted
// key=value pairs, mirroring the structure FromProperties was handed.
func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(full, val, out)
		default:
			out[full] = fmt.Sprintf("%v", val)
		}
	}
}
