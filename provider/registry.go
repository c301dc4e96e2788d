package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/tileverse-go/rangereader"
	"github.com/tileverse-go/rangereader/memcache"
)

// Provider is a backend implementation that declares which Configurations
// it can handle and knows how to build a RangeReader for one.
type Provider interface {
	ID() string
	Description() string
	IsAvailable() bool
	Parameters() []Parameter
	Order() int

	// CanProcess performs a static, I/O-free check based on the
	// Configuration's URI scheme and any known hostname patterns.
	CanProcess(cfg *Configuration) bool

	// CanProcessHeaders is consulted only when static dispatch leaves
	// more than one HTTP-scheme candidate. Implementations that never
	// need the tie-break may return false unconditionally.
	CanProcessHeaders(uri string, headers http.Header) bool

	Create(ctx context.Context, cfg *Configuration) (rangereader.RangeReader, error)
}

// Registry holds the set of known Providers and dispatches a Configuration
// to one of them: a forced provider id wins outright; otherwise the
// available, enabled providers whose CanProcess accepts the Configuration
// are the candidates, an http(s) URI with several candidates is settled by
// a HEAD probe and CanProcessHeaders in Order, and the lowest-Order
// candidate is the fallback.
type Registry struct {
	providers  []Provider
	probeClient *retryablehttp.Client
}

// NewRegistry creates an empty Registry. The probe client used for the
// HTTP can_process_headers tie-break is the same retryablehttp.Client
// shape backend/httprange uses, kept quiet (no retry logging) since a probe
// failure just means "fall back to lowest order".
func NewRegistry() *Registry {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 1
	return &Registry{probeClient: client}
}

// Register adds p to the registry. Order of registration does not matter;
// dispatch always sorts by Provider.Order.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// ProviderInfo is the introspection shape Describe returns.
type ProviderInfo struct {
	ID          string
	Description string
	Order       int
	Available   bool
	Enabled     bool
	Parameters  []Parameter
}

// Describe lists every registered provider and its declared parameters, for
// documentation purposes — this module has no CLI surface to print it, so
// callers embedding this library use Describe to build their own.
func (r *Registry) Describe() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, ProviderInfo{
			ID:          p.ID(),
			Description: p.Description(),
			Order:       p.Order(),
			Available:   p.IsAvailable(),
			Enabled:     isEnabled(p.ID()),
			Parameters:  p.Parameters(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// isEnabled checks the <provider-id>.enabled environment variable,
// case-sensitively, defaulting to true when absent or unparsable.
func isEnabled(providerID string) bool {
	v, ok := os.LookupEnv(providerID + ".enabled")
	if !ok {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Resolve runs the dispatch algorithm against cfg and builds a RangeReader
// for the winning provider, optionally wrapping it with an in-memory cache
// per the *.caching.enabled configuration key.
func (r *Registry) Resolve(ctx context.Context, cfg *Configuration) (rangereader.RangeReader, error) {
	p, err := r.resolveProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reader, err := p.Create(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("rangereader/provider: creating reader via %q: %w", p.ID(), err)
	}

	if cfg.GetBool(KeyCachingEnabled, true) {
		wrapped, err := memcache.New(reader, memcache.Config{
			HotEntries:   64,
			ColdMaxBytes: 64 << 20,
		})
		if err != nil {
			return reader, nil
		}
		return wrapped, nil
	}
	return reader, nil
}

func (r *Registry) resolveProvider(ctx context.Context, cfg *Configuration) (Provider, error) {
	if cfg.ForcedProviderID != "" {
		for _, p := range r.providers {
			if p.ID() == cfg.ForcedProviderID {
				return p, nil
			}
		}
		return nil, fmt.Errorf("rangereader/provider: %w: forced provider id %q not registered", ErrProviderNotFound, cfg.ForcedProviderID)
	}

	var candidates []Provider
	for _, p := range r.providers {
		if !p.IsAvailable() || !isEnabled(p.ID()) {
			continue
		}
		if p.CanProcess(cfg) {
			candidates = append(candidates, p)
		}
	}

	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("rangereader/provider: %w: no provider can process %q", ErrNoProvider, cfg.URI)
	case 1:
		return candidates[0], nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Order() < candidates[j].Order() })

	if isHTTPScheme(cfg.URI) {
		if headers, err := r.probeHeaders(ctx, cfg.URI); err == nil {
			for _, p := range candidates {
				if p.CanProcessHeaders(cfg.URI, headers) {
					return p, nil
				}
			}
		}
	}
	return candidates[0], nil
}

func (r *Registry) probeHeaders(ctx context.Context, uri string) (http.Header, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.probeClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return resp.Header, nil
}

func isHTTPScheme(uri string) bool {
	return len(uri) >= 5 && (uri[:5] == "http:" || (len(uri) >= 6 && uri[:6] == "https:"))
}
