// Package integration is the internal data-entry tool for directory
// companies.
package integration

import (
	"context"
	"log/slog"

	"github.com/altss/altss/internal/events"
)

// CacheBumper invalidates the directory cache.
type CacheBumper interface {
	Bump(ctx context.Context) (int64, error)
}

// WarmupEnqueuer schedules an out-of-band cache warmup.
type WarmupEnqueuer interface {
	EnqueueDirectoryWarmup(ctx context.Context, reason string) error
}

// Change describes a committed company write.
type Change struct {
	Action    string `json:"action"`
	CompanyID string `json:"company_id"`
	ActorID   string `json:"actor_id"`
}

// Hooks propagates company writes to caches and open list screens. Every
// dependency is optional and failures are logged, never returned: the write
// has already been committed upstream.
type Hooks struct {
	cache  CacheBumper
	bus    events.Bus
	warmup WarmupEnqueuer
	logger *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(cache CacheBumper, bus events.Bus, warmup WarmupEnqueuer, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{cache: cache, bus: bus, warmup: warmup, logger: logger}
}

// AfterWrite runs once a create, update or delete succeeded.
func (h *Hooks) AfterWrite(ctx context.Context, change Change) {
	if h == nil {
		return
	}
	logger := h.logger.With(slog.String("action", change.Action), slog.String("company_id", change.CompanyID))
	if h.cache != nil {
		if version, err := h.cache.Bump(ctx); err != nil {
			logger.Warn("bump directory cache", slog.Any("error", err))
		} else {
			logger.Debug("directory cache bumped", slog.Int64("version", version))
		}
	}
	if h.bus != nil {
		evt, err := events.NewEvent(events.TopicDirectoryChanged, "", change)
		if err == nil {
			err = h.bus.Publish(ctx, evt)
		}
		if err != nil {
			logger.Warn("publish directory change", slog.Any("error", err))
		}
	}
	if h.warmup != nil {
		if err := h.warmup.EnqueueDirectoryWarmup(ctx, change.Action); err != nil {
			logger.Warn("enqueue directory warmup", slog.Any("error", err))
		}
	}
}
