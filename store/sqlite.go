// Package store provides the SQLite-backed proxy store: durable proxy
// records, an append-only usage log, and materialized rolling scores.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowmatic/harvester/models"
)

// SQLite wraps the database connection and implements proxypool.Store and
// proxypool.AdminStore.
type SQLite struct {
	db *sql.DB
}

// Open creates the database file (and parent directory) if needed,
// initializes the schema, and returns the store. Pass ":memory:" for an
// ephemeral database.
func Open(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS proxies (
    id TEXT PRIMARY KEY,
    host TEXT NOT NULL,
    port INTEGER NOT NULL,
    username TEXT NOT NULL DEFAULT '',
    password TEXT NOT NULL DEFAULT '',
    protocol TEXT NOT NULL,
    class TEXT NOT NULL,
    country TEXT NOT NULL DEFAULT '',
    tenant_id TEXT NOT NULL DEFAULT '',
    active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,

    UNIQUE(host, port, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_proxies_active ON proxies(active);
CREATE INDEX IF NOT EXISTS idx_proxies_tenant ON proxies(tenant_id);
CREATE INDEX IF NOT EXISTS idx_proxies_class ON proxies(class);
CREATE INDEX IF NOT EXISTS idx_proxies_country ON proxies(country);

-- Append-only usage log; the authoritative record scores derive from.
CREATE TABLE IF NOT EXISTS proxy_usage_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    proxy_id TEXT NOT NULL,
    success INTEGER NOT NULL,
    status_code INTEGER NOT NULL DEFAULT 0,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    ban_reason TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    tenant_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_proxy_id ON proxy_usage_log(proxy_id, id);

-- Materialized per-proxy score; recomputed after every usage event.
CREATE TABLE IF NOT EXISTS proxy_scores (
    proxy_id TEXT PRIMARY KEY,
    success_rate REAL NOT NULL,
    ban_rate REAL NOT NULL,
    avg_latency_ms REAL NOT NULL,
    total_uses INTEGER NOT NULL,
    success_count INTEGER NOT NULL,
    fail_count INTEGER NOT NULL,
    ban_count INTEGER NOT NULL,
    composite REAL NOT NULL,
    last_used_at TIMESTAMP,
    last_scored_at TIMESTAMP NOT NULL
);`

	_, err := s.db.Exec(schema)
	return err
}

// ListCandidates returns active proxies matching the filters. Tenant-scoped
// selection includes global proxies (empty tenant_id); unscoped selection
// returns only global proxies.
func (s *SQLite) ListCandidates(ctx context.Context, filters models.SelectionFilters) ([]models.ProxyRecord, error) {
	query := `SELECT id, host, port, username, password, protocol, class, country, tenant_id, active, created_at
		FROM proxies WHERE active = 1`
	var args []any

	if filters.TenantID != "" {
		query += ` AND (tenant_id = '' OR tenant_id = ?)`
		args = append(args, filters.TenantID)
	} else {
		query += ` AND tenant_id = ''`
	}
	if filters.Country != "" {
		query += ` AND country = ?`
		args = append(args, filters.Country)
	}
	if filters.Class != "" {
		query += ` AND class = ?`
		args = append(args, filters.Class)
	}
	if len(filters.Exclude) > 0 {
		query += ` AND id NOT IN (` + placeholders(len(filters.Exclude)) + `)`
		for _, id := range filters.Exclude {
			args = append(args, id)
		}
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list candidates: %w", err)
	}
	defer rows.Close()

	return scanProxies(rows)
}

// GetScores returns materialized scores for the given proxy IDs. Proxies
// without history are absent from the result.
func (s *SQLite) GetScores(ctx context.Context, proxyIDs []string) (map[string]models.ProxyScore, error) {
	result := make(map[string]models.ProxyScore, len(proxyIDs))
	if len(proxyIDs) == 0 {
		return result, nil
	}

	query := `SELECT proxy_id, success_rate, ban_rate, avg_latency_ms,
		total_uses, success_count, fail_count, ban_count, composite,
		last_used_at, last_scored_at
		FROM proxy_scores WHERE proxy_id IN (` + placeholders(len(proxyIDs)) + `)`

	args := make([]any, len(proxyIDs))
	for i, id := range proxyIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc models.ProxyScore
		var lastUsed sql.NullTime
		if err := rows.Scan(
			&sc.ProxyID, &sc.SuccessRate, &sc.BanRate, &sc.AvgLatencyMs,
			&sc.TotalUses, &sc.SuccessCount, &sc.FailCount, &sc.BanCount,
			&sc.Composite, &lastUsed, &sc.LastScoredAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan score: %w", err)
		}
		if lastUsed.Valid {
			sc.LastUsedAt = lastUsed.Time
		}
		result[sc.ProxyID] = sc
	}
	return result, rows.Err()
}

// AppendUsage appends one usage event to the log.
func (s *SQLite) AppendUsage(ctx context.Context, event models.ProxyUsageEvent) error {
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proxy_usage_log
			(proxy_id, success, status_code, latency_ms, ban_reason, error_message, tenant_id, user_id, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ProxyID, boolToInt(event.Success), event.StatusCode, event.LatencyMs,
		event.BanReason, event.Error, event.TenantID, event.UserID, event.URL, createdAt,
	)
	if err != nil {
		return fmt.Errorf("store: append usage: %w", err)
	}
	return nil
}

// RecentUsage returns up to limit most recent events for a proxy, newest
// first. The insertion rowid orders events that share a timestamp.
func (s *SQLite) RecentUsage(ctx context.Context, proxyID string, limit int) ([]models.ProxyUsageEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT proxy_id, success, status_code, latency_ms, ban_reason, error_message, tenant_id, user_id, url, created_at
		FROM proxy_usage_log
		WHERE proxy_id = ?
		ORDER BY id DESC
		LIMIT ?`, proxyID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent usage: %w", err)
	}
	defer rows.Close()

	var events []models.ProxyUsageEvent
	for rows.Next() {
		var e models.ProxyUsageEvent
		var success int
		if err := rows.Scan(
			&e.ProxyID, &success, &e.StatusCode, &e.LatencyMs, &e.BanReason,
			&e.Error, &e.TenantID, &e.UserID, &e.URL, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan usage event: %w", err)
		}
		e.Success = success != 0
		events = append(events, e)
	}
	return events, rows.Err()
}

// UpsertScore replaces the materialized score for a proxy.
func (s *SQLite) UpsertScore(ctx context.Context, score models.ProxyScore) error {
	var lastUsed any
	if !score.LastUsedAt.IsZero() {
		lastUsed = score.LastUsedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proxy_scores
			(proxy_id, success_rate, ban_rate, avg_latency_ms, total_uses,
			 success_count, fail_count, ban_count, composite, last_used_at, last_scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(proxy_id) DO UPDATE SET
			success_rate = excluded.success_rate,
			ban_rate = excluded.ban_rate,
			avg_latency_ms = excluded.avg_latency_ms,
			total_uses = excluded.total_uses,
			success_count = excluded.success_count,
			fail_count = excluded.fail_count,
			ban_count = excluded.ban_count,
			composite = excluded.composite,
			last_used_at = excluded.last_used_at,
			last_scored_at = excluded.last_scored_at`,
		score.ProxyID, score.SuccessRate, score.BanRate, score.AvgLatencyMs,
		score.TotalUses, score.SuccessCount, score.FailCount, score.BanCount,
		score.Composite, lastUsed, score.LastScoredAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert score: %w", err)
	}
	return nil
}

func scanProxies(rows *sql.Rows) ([]models.ProxyRecord, error) {
	var proxies []models.ProxyRecord
	for rows.Next() {
		var p models.ProxyRecord
		var active int
		if err := rows.Scan(
			&p.ID, &p.Host, &p.Port, &p.Username, &p.Password, &p.Protocol,
			&p.Class, &p.Country, &p.TenantID, &active, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan proxy: %w", err)
		}
		p.Active = active != 0
		proxies = append(proxies, p)
	}
	return proxies, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
