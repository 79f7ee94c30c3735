package proxypool

import (
	"context"

	"github.com/flowmatic/harvester/models"
)

// Store is the durable backend for proxy records, usage logs, and scores.
// The usage log is authoritative; scores are a materialized view recomputed
// from it, so interleaved writers need no coordination beyond last-write-wins.
type Store interface {
	// ListCandidates returns active proxies matching the filters, bounded
	// by filters.Limit. Excluded IDs must not appear in the result.
	ListCandidates(ctx context.Context, filters models.SelectionFilters) ([]models.ProxyRecord, error)

	// GetScores returns current scores keyed by proxy ID. Proxies with no
	// history are simply absent from the map.
	GetScores(ctx context.Context, proxyIDs []string) (map[string]models.ProxyScore, error)

	// AppendUsage appends one usage event. Events are never mutated.
	AppendUsage(ctx context.Context, event models.ProxyUsageEvent) error

	// RecentUsage returns up to limit most recent events for a proxy,
	// newest first.
	RecentUsage(ctx context.Context, proxyID string, limit int) ([]models.ProxyUsageEvent, error)

	// UpsertScore replaces the materialized score for a proxy.
	UpsertScore(ctx context.Context, score models.ProxyScore) error
}

// AdminStore covers pool administration. Deactivation is the normal removal
// path; hard deletion exists for cleanup.
type AdminStore interface {
	CreateProxy(ctx context.Context, record models.ProxyRecord) error
	GetProxy(ctx context.Context, id string) (*models.ProxyRecord, error)
	ListProxies(ctx context.Context, tenantID string) ([]models.ProxyRecord, error)
	DeactivateProxy(ctx context.Context, id string) error
	DeleteProxy(ctx context.Context, id string) error
}
