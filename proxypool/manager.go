// Package proxypool selects proxies for outbound fetches using
// weighted-random selection over rolling composite scores, and folds usage
// outcomes back into those scores asynchronously.
package proxypool

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/flowmatic/harvester/config"
	"github.com/flowmatic/harvester/models"
)

// Manager is the proxy pool's selection and feedback entry point.
// It is safe for concurrent use.
type Manager struct {
	store   Store
	cfg     config.ProxyPoolConfig
	reports chan models.ProxyUsageEvent
	done    chan struct{}
	stopped chan struct{}
}

// NewManager creates a Manager and starts its background report worker.
func NewManager(store Store, cfg config.ProxyPoolConfig) *Manager {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 100
	}
	if cfg.ScoreWindow <= 0 {
		cfg.ScoreWindow = 100
	}
	if cfg.ReportQueueSize <= 0 {
		cfg.ReportQueueSize = 1024
	}

	m := &Manager{
		store:   store,
		cfg:     cfg,
		reports: make(chan models.ProxyUsageEvent, cfg.ReportQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.reportLoop()
	return m
}

// Select picks a proxy for a request. The returned record is drawn
// proportionally to composite score, so lower-scored proxies still see
// traffic and the pool keeps exploring. Returns (nil, nil) when no
// candidate matches: the caller must fall back to a direct fetch or fail.
func (m *Manager) Select(ctx context.Context, filters models.SelectionFilters) (*models.ProxyRecord, error) {
	if filters.Limit <= 0 || filters.Limit > m.cfg.MaxCandidates {
		filters.Limit = m.cfg.MaxCandidates
	}

	candidates, err := m.store.ListCandidates(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("proxypool: list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	scores, err := m.store.GetScores(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("proxypool: load scores: %w", err)
	}

	excluded := make(map[string]struct{}, len(filters.Exclude))
	for _, id := range filters.Exclude {
		excluded[id] = struct{}{}
	}

	// Join candidates with scores, defaulting to the neutral midpoint for
	// unscored proxies, and drop anything below the minimum.
	type weighted struct {
		record models.ProxyRecord
		weight float64
	}
	pool := make([]weighted, 0, len(candidates))
	var totalWeight float64
	for _, c := range candidates {
		// The store already excludes these; re-checking keeps the
		// same-request invariant independent of the backend.
		if _, skip := excluded[c.ID]; skip {
			continue
		}
		w := NeutralScore
		if s, ok := scores[c.ID]; ok {
			w = s.Composite
		}
		if w < filters.MinScore {
			continue
		}
		pool = append(pool, weighted{record: c, weight: w})
		totalWeight += w
	}
	if len(pool) == 0 || totalWeight <= 0 {
		return nil, nil
	}

	// Proportional draw: walk the pool subtracting weights until the draw
	// is exhausted. This is deliberately not top-1 selection.
	draw := rand.Float64() * totalWeight
	for _, p := range pool {
		draw -= p.weight
		if draw < 0 {
			record := p.record
			return &record, nil
		}
	}
	// Floating-point remainder lands on the last candidate.
	record := pool[len(pool)-1].record
	return &record, nil
}

// Report enqueues a usage event for asynchronous scoring. It never blocks:
// when the queue is full the event is dropped and logged, because scoring
// must not stall the fetch path.
func (m *Manager) Report(event models.ProxyUsageEvent) {
	select {
	case <-m.done:
		return
	default:
	}

	select {
	case m.reports <- event:
	default:
		slog.Warn("proxy report queue full, dropping usage event",
			"proxy_id", event.ProxyID)
	}
}

// Close stops the report worker after draining queued events.
func (m *Manager) Close() {
	close(m.done)
	<-m.stopped
}
