package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowmatic/harvester/models"
)

// CreateProxy inserts a new proxy record. A missing ID is generated; a
// missing creation timestamp defaults to now.
func (s *SQLite) CreateProxy(ctx context.Context, record models.ProxyRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proxies
			(id, host, port, username, password, protocol, class, country, tenant_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Host, record.Port, record.Username, record.Password,
		record.Protocol, record.Class, record.Country, record.TenantID,
		boolToInt(record.Active), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create proxy: %w", err)
	}
	return nil
}

// GetProxy returns a proxy record by ID, or nil when absent.
func (s *SQLite) GetProxy(ctx context.Context, id string) (*models.ProxyRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, host, port, username, password, protocol, class, country, tenant_id, active, created_at
		FROM proxies WHERE id = ?`, id)

	var p models.ProxyRecord
	var active int
	err := row.Scan(
		&p.ID, &p.Host, &p.Port, &p.Username, &p.Password, &p.Protocol,
		&p.Class, &p.Country, &p.TenantID, &active, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get proxy: %w", err)
	}
	p.Active = active != 0
	return &p, nil
}

// ListProxies returns all records for a tenant, or global records when
// tenantID is empty. Inactive records are included; administration needs to
// see them.
func (s *SQLite) ListProxies(ctx context.Context, tenantID string) ([]models.ProxyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, host, port, username, password, protocol, class, country, tenant_id, active, created_at
		FROM proxies WHERE tenant_id = ? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("store: list proxies: %w", err)
	}
	defer rows.Close()

	return scanProxies(rows)
}

// DeactivateProxy marks a record inactive; the normal removal path.
func (s *SQLite) DeactivateProxy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE proxies SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: deactivate proxy: %w", err)
	}
	return requireAffected(res, id)
}

// DeleteProxy hard-deletes a record and its usage history.
func (s *SQLite) DeleteProxy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM proxies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete proxy: %w", err)
	}
	if err := requireAffected(res, id); err != nil {
		return err
	}

	// Usage history and scores go with the record.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM proxy_usage_log WHERE proxy_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete usage history: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM proxy_scores WHERE proxy_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete score: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: proxy %s not found", id)
	}
	return nil
}
