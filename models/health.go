package models

// PoolStats is a snapshot of browser page utilisation.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status  string    `json:"status"`
	Uptime  string    `json:"uptime"`
	Browser PoolStats `json:"browser"`
	Version string    `json:"version"`
}
