package api

import (
	"context"
	"time"

	"github.com/umlforge/umlforge/internal/slogging"
)

// PresenceReaper periodically drops connection-time records for sessions
// that no longer occupy any room and have been connected longer than the
// maximum age. Normal disconnects clean up after themselves; the reaper
// only catches sessions whose teardown never ran.
type PresenceReaper struct {
	registry *PresenceRegistry
	limiter  *UpdateRateLimiter
	interval time.Duration
	maxAge   time.Duration

	now func() time.Time
}

// NewPresenceReaper creates a reaper over the given registry. The limiter
// may be nil when rate-limit state is managed elsewhere.
func NewPresenceReaper(registry *PresenceRegistry, limiter *UpdateRateLimiter, interval, maxAge time.Duration) *PresenceReaper {
	return &PresenceReaper{
		registry: registry,
		limiter:  limiter,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Start runs the reap loop until the context is cancelled
func (p *PresenceReaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slogging.Get().Debug("Presence reaper stopped")
				return
			case <-ticker.C:
				p.ReapOnce()
			}
		}
	}()
}

// ReapOnce sweeps stale sessions a single time
func (p *PresenceReaper) ReapOnce() int {
	cutoff := p.now().Add(-p.maxAge)
	stale := p.registry.OrphanedSessions(cutoff)
	for _, sessionID := range stale {
		p.registry.ForgetConnection(sessionID)
		if p.limiter != nil {
			p.limiter.Forget(sessionID)
		}
	}
	if len(stale) > 0 {
		slogging.Get().Info("Presence reaper removed %d stale sessions", len(stale))
	}
	return len(stale)
}
