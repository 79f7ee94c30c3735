package models

import (
	"fmt"
	"net/url"
	"time"
)

// Proxy classes distinguish how the upstream address is provisioned.
// Residential and mobile proxies burn slower but cost more; the class is a
// selection filter, not a scoring input.
const (
	ProxyClassResidential = "residential"
	ProxyClassDatacenter  = "datacenter"
	ProxyClassMobile      = "mobile"
	ProxyClassISP         = "isp"
)

// ProxyRecord is a durable proxy pool entry. Records are deactivated rather
// than deleted in normal operation; hard deletion exists for administration.
type ProxyRecord struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"`

	// Protocol is the proxy scheme: http, https, socks5.
	Protocol string `json:"protocol"`

	// Class is one of the ProxyClass* values.
	Class string `json:"class"`

	// Country is an ISO 3166-1 alpha-2 geographic tag.
	Country string `json:"country,omitempty"`

	// TenantID scopes the proxy to one tenant. Empty means globally shared.
	TenantID string `json:"tenant_id,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// URL renders the record as a proxy URL, embedding credentials when present.
func (p *ProxyRecord) URL() string {
	u := url.URL{
		Scheme: p.Protocol,
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u.String()
}

// ProxyScore is a materialized view over the most recent usage events for
// one proxy. The usage log is authoritative; the score is recomputed after
// every reported event and last-write-wins is acceptable.
type ProxyScore struct {
	ProxyID string `json:"proxy_id"`

	// SuccessRate and BanRate are percentages in [0,100] over the window.
	SuccessRate float64 `json:"success_rate"`
	BanRate     float64 `json:"ban_rate"`

	// AvgLatencyMs is the mean latency over the window.
	AvgLatencyMs float64 `json:"avg_latency_ms"`

	TotalUses    int `json:"total_uses"`
	SuccessCount int `json:"success_count"`
	FailCount    int `json:"fail_count"`
	BanCount     int `json:"ban_count"`

	// Composite is the selection weight, clamped to [0,100].
	Composite float64 `json:"composite"`

	LastUsedAt   time.Time `json:"last_used_at"`
	LastScoredAt time.Time `json:"last_scored_at"`
}

// ProxyUsageEvent is one append-only record of a proxy use. Never mutated
// after creation.
type ProxyUsageEvent struct {
	ProxyID    string    `json:"proxy_id"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	BanReason  string    `json:"ban_reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Banned reports whether the event carries a ban signal.
func (e *ProxyUsageEvent) Banned() bool {
	return e.BanReason != ""
}

// SelectionFilters narrow the proxy candidate set for one selection call.
type SelectionFilters struct {
	// TenantID selects the tenant-specific pool plus global proxies.
	// Empty selects only global proxies.
	TenantID string

	// Country and Class filter on the corresponding record fields when set.
	Country string
	Class   string

	// MinScore drops candidates whose composite score is below this value.
	MinScore float64

	// Exclude lists proxy IDs to skip; used for same-request retries.
	Exclude []string

	// Limit bounds the candidate fetch. Zero means the manager default.
	Limit int
}
