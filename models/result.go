package models

// ResultMetadata describes how a scrape was performed.
type ResultMetadata struct {
	// Engine is the fetch strategy that produced the result.
	Engine Engine `json:"engine"`

	// LatencyMs is the end-to-end duration including retries.
	LatencyMs int64 `json:"latency_ms"`

	// ContentLength is the size of the fetched markup in bytes.
	ContentLength int `json:"content_length"`

	// ContentType is the response content type (lightweight engine only).
	ContentType string `json:"content_type,omitempty"`

	// StatusCode is the HTTP status of the final attempt, when known.
	StatusCode int `json:"status_code,omitempty"`

	// FinalURL is the URL the fetch landed on after redirects.
	FinalURL string `json:"final_url,omitempty"`

	// Attempts is the number of fetch attempts made.
	Attempts int `json:"attempts"`

	// ProxyID identifies the proxy used by the final attempt, if any.
	ProxyID string `json:"proxy_id,omitempty"`
}

// ScrapeResult is the outcome of one scrape request. It is transient; this
// subsystem does not persist it.
type ScrapeResult struct {
	// Success is false only for fatal failures. Per-field selector misses
	// appear as null values inside Data with Success still true.
	Success bool `json:"success"`

	// Data maps field names to extracted values: a bare scalar when one
	// extraction mode is requested and one element matched, an object when
	// several modes are requested, an ordered list on multiple matches,
	// and null on a selector miss.
	Data map[string]any `json:"data,omitempty"`

	// Content holds article-extracted main content when the request has no
	// field selectors.
	Content string `json:"content,omitempty"`

	// RawHTML is the full fetched markup, present only when requested.
	RawHTML string `json:"raw_html,omitempty"`

	// Screenshot is a PNG capture, present only when requested.
	Screenshot []byte `json:"screenshot,omitempty"`

	Metadata ResultMetadata `json:"metadata"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}
