package proxypool

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowmatic/harvester/models"
)

// reportTimeout bounds each store write so a stuck backend cannot wedge the
// report worker indefinitely.
const reportTimeout = 10 * time.Second

// reportLoop drains the report queue: append the event, recompute the score
// from the recent window, persist it. Every failure is logged and swallowed;
// nothing here may surface to the fetch path.
func (m *Manager) reportLoop() {
	defer close(m.stopped)
	for {
		select {
		case event := <-m.reports:
			m.processReport(event)
		case <-m.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case event := <-m.reports:
					m.processReport(event)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) processReport(event models.ProxyUsageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := m.store.AppendUsage(ctx, event); err != nil {
		slog.Warn("failed to append proxy usage event",
			"proxy_id", event.ProxyID, "error", err)
		return
	}

	window, err := m.store.RecentUsage(ctx, event.ProxyID, m.cfg.ScoreWindow)
	if err != nil {
		slog.Warn("failed to load proxy usage window",
			"proxy_id", event.ProxyID, "error", err)
		return
	}

	score := Compute(event.ProxyID, window, time.Now())
	if err := m.store.UpsertScore(ctx, score); err != nil {
		slog.Warn("failed to persist proxy score",
			"proxy_id", event.ProxyID, "error", err)
	}
}
