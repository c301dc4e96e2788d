package diskcache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ManagerConfig controls the background maintenance Manager performs on a
// Cache. Directly mirrors segcache.ManagerConfig
// (internal/nzbfilesystem/segcache/manager.go): a cleanup/eviction tick and
// a separate, more frequent catalog-flush tick.
type ManagerConfig struct {
	CleanupInterval time.Duration
	FlushInterval   time.Duration
	Logger          *slog.Logger
}

// DefaultManagerConfig returns the same cadence segcache.Manager ships
// with: a five-minute cleanup/eviction sweep and a ten-second catalog
// flush.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CleanupInterval: 5 * time.Minute,
		FlushInterval:   10 * time.Second,
		Logger:          slog.Default(),
	}
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Manager runs a Cache's expiry sweep, size eviction, and catalog
// persistence on background tickers, so callers of Reader don't pay for
// maintenance work on the read path.
type Manager struct {
	cache  *Cache
	cfg    ManagerConfig
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager wires a Manager to cache. Call Start to begin the background
// loops and Stop to shut them down.
func NewManager(cache *Cache, cfg ManagerConfig) *Manager {
	return &Manager{cache: cache, cfg: cfg.withDefaults()}
}

// Start launches the cleanup and catalog-flush loops. It returns
// immediately; both loops run until ctx is done or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)
	go m.cleanupLoop(ctx)
	go m.catalogFlushLoop(ctx)
}

// Stop cancels both background loops and waits for them to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.cache.Cleanup(); err != nil {
				m.cfg.Logger.Error("diskcache cleanup failed", "error", err)
			}
			if err := m.cache.Evict(); err != nil {
				m.cfg.Logger.Error("diskcache eviction failed", "error", err)
			}
		}
	}
}

func (m *Manager) catalogFlushLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := m.cache.SaveCatalog(); err != nil {
				m.cfg.Logger.Error("diskcache final catalog flush failed", "error", err)
			}
			return
		case <-ticker.C:
			if err := m.cache.SaveCatalog(); err != nil {
				m.cfg.Logger.Error("diskcache catalog flush failed", "error", err)
			}
		}
	}
}
