package pipeline

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/ppiankov/sourcerank/internal/model"
)

// StartRefresher starts background maintenance until ctx is done: expired
// persistent cache entries are swept every cache SweepInterval, and health
// for recently processed sources is re-warmed every RefreshInterval.
func (m *Manager) StartRefresher(ctx context.Context) {
	m.cache.StartSweeper(ctx, m.cfg.Cache.SweepInterval)

	interval := m.cfg.Health.RefreshInterval
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
					m.logger.Warn().Err(err).Msg("Health refresh stopped early")
				}
			}
		}
	}()
}

// RefreshOnce re-warms the cached health of every recently seen source,
// waiting on each provider's rate budget. It returns how many sources were
// refreshed.
func (m *Manager) RefreshOnce(ctx context.Context) (int, error) {
	items := m.recent.Items()
	sources := make([]model.SourceMetadata, 0, len(items))
	for _, it := range items {
		if src, ok := it.Object.(model.SourceMetadata); ok {
			sources = append(sources, src)
		}
	}
	slices.SortFunc(sources, func(a, b model.SourceMetadata) int { return strings.Compare(a.ID, b.ID) })

	refreshed := 0
	for _, src := range sources {
		if err := m.limiter.Wait(ctx, src.Provider.ID); err != nil {
			return refreshed, err
		}
		h, err := m.healthFor(ctx, src)
		if err != nil {
			return refreshed, err
		}
		if _, err := m.predictionFor(ctx, src, h); err != nil {
			return refreshed, err
		}
		refreshed++
	}

	if refreshed > 0 {
		m.logger.Debug().Int("sources", refreshed).Msg("Refreshed cached health")
	}
	return refreshed, nil
}
