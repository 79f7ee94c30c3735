package models

// SelectorOutcome is a per-field, per-attempt hit/miss signal forwarded to
// the selector-healing collaborator. This subsystem only produces the
// signal; it keeps no selector history.
type SelectorOutcome struct {
	URL       string `json:"url"`
	Field     string `json:"field"`
	Selector  string `json:"selector"`
	MatchType string `json:"match_type"`
	Matched   bool   `json:"matched"`
	TenantID  string `json:"tenant_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}
