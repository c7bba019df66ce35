package config

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Refresher re-reads thresholds on the configured interval and
// publishes an immutable snapshot. Consumers read the snapshot at
// batch boundaries; the core never writes configuration back.
type Refresher struct {
	logger  *zap.Logger
	loader  *Loader
	current atomic.Pointer[Config]
}

// NewRefresher creates a refresher seeded with an initial config
func NewRefresher(logger *zap.Logger, loader *Loader, initial *Config) *Refresher {
	r := &Refresher{logger: logger, loader: loader}
	r.current.Store(initial)
	return r
}

// Current returns the latest valid configuration snapshot
func (r *Refresher) Current() *Config {
	return r.current.Load()
}

// Run refreshes until the context is cancelled. An invalid refresh
// keeps the previous snapshot; only startup validation is fatal.
func (r *Refresher) Run(ctx context.Context) {
	interval := r.Current().RefreshInterval
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cfg, err := r.loader.Load()
			if err != nil {
				r.logger.Warn("Config refresh failed, keeping previous snapshot",
					zap.Error(err))
				continue
			}
			r.current.Store(cfg)
			r.logger.Debug("Config refreshed")
		case <-ctx.Done():
			return
		}
	}
}
