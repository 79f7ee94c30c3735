package models

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Viewport sets the browser window dimensions for browser-engine fetches.
type Viewport struct {
	Width  int `json:"width" binding:"omitempty,min=1,max=7680"`
	Height int `json:"height" binding:"omitempty,min=1,max=4320"`
}

// ProxyFilters narrows proxy selection for a request.
type ProxyFilters struct {
	// Country restricts selection to proxies tagged with this geography.
	Country string `json:"country,omitempty"`

	// Class restricts selection to a proxy class
	// (residential, datacenter, mobile, isp).
	Class string `json:"class,omitempty" binding:"omitempty,oneof=residential datacenter mobile isp"`

	// MinScore drops candidates with a composite score below this value.
	MinScore float64 `json:"min_score,omitempty" binding:"omitempty,min=0,max=100"`
}

// ScrapeRequest is the payload for POST /api/v1/scrape. It is treated as
// immutable once dispatched to the orchestrator.
type ScrapeRequest struct {
	// URL is the target page to scrape. Required.
	URL string `json:"url" binding:"required,url"`

	// Fields maps output field names to CSS selectors. When empty, the
	// orchestrator falls back to article extraction of the main content.
	Fields map[string]string `json:"fields,omitempty"`

	// ExtractText includes the trimmed text content of matched elements.
	// Defaults to true when no other extraction flag is set.
	ExtractText bool `json:"extract_text,omitempty"`

	// ExtractHTML includes the inner HTML of matched elements.
	ExtractHTML bool `json:"extract_html,omitempty"`

	// ExtractAttrs lists attributes to read from matched elements.
	ExtractAttrs []string `json:"extract_attrs,omitempty"`

	// IncludeRawHTML returns the full fetched markup in the result.
	IncludeRawHTML bool `json:"include_raw_html,omitempty"`

	// Timeout is the maximum duration in seconds for one fetch attempt.
	// Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// Retries is the number of additional attempts after the first failure.
	// Absent means the default of 2; an explicit 0 disables retries.
	Retries *int `json:"retries,omitempty" binding:"omitempty,min=0,max=10"`

	// RetryDelayMs is the base inter-retry delay; the actual delay is
	// RetryDelayMs times the attempt number (linear backoff). Absent means
	// the default of 1000; an explicit 0 retries without pausing.
	RetryDelayMs *int `json:"retry_delay_ms,omitempty" binding:"omitempty,min=0,max=60000"`

	// Headers are custom request headers applied on top of defaults.
	Headers map[string]string `json:"headers,omitempty"`

	// UserAgent overrides the default user agent.
	UserAgent string `json:"user_agent,omitempty"`

	// Engine forces a fetch strategy, bypassing the router.
	// Allowed: "lightweight", "browser". Empty means let the router decide.
	Engine Engine `json:"engine,omitempty" binding:"omitempty,oneof=lightweight browser"`

	// WaitForSelector blocks the browser engine until the selector matches.
	WaitForSelector string `json:"wait_for_selector,omitempty"`

	// ScrollToBottom scrolls the page to trigger lazy-loaded content
	// (browser engine only).
	ScrollToBottom bool `json:"scroll_to_bottom,omitempty"`

	// Screenshot captures a PNG of the rendered page (browser engine only).
	Screenshot bool `json:"screenshot,omitempty"`

	// EvalScript is an arbitrary JS function evaluated after navigation
	// (browser engine only).
	EvalScript string `json:"eval_script,omitempty"`

	// Viewport overrides the browser window size (browser engine only).
	Viewport *Viewport `json:"viewport,omitempty"`

	// UseProxy routes the fetch through the proxy pool.
	UseProxy bool `json:"use_proxy,omitempty"`

	// ProxyFilters narrows proxy selection when UseProxy is set.
	ProxyFilters *ProxyFilters `json:"proxy_filters,omitempty"`

	// TenantID scopes proxy selection and usage logging. Empty selects
	// from the global pool.
	TenantID string `json:"tenant_id,omitempty"`

	// UserID is recorded in usage logs for attribution.
	UserID string `json:"user_id,omitempty"`
}

// Defaults applies default values to unset fields. Retries and RetryDelayMs
// are pointers so an explicit zero survives; only nil gets the default.
func (r *ScrapeRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 30
	}
	if r.Retries == nil {
		retries := 2
		r.Retries = &retries
	}
	if r.RetryDelayMs == nil {
		delay := 1000
		r.RetryDelayMs = &delay
	}
	if !r.ExtractText && !r.ExtractHTML && len(r.ExtractAttrs) == 0 {
		r.ExtractText = true
	}
}

// Validate checks constraints the binding tags cannot express: the engine
// override must be a supported value and every field selector must parse.
func (r *ScrapeRequest) Validate() error {
	if r.Engine != "" && !r.Engine.Valid() {
		return NewScrapeError(ErrCodeInvalidInput,
			fmt.Sprintf("unsupported engine %q", r.Engine), nil)
	}
	for field, sel := range r.Fields {
		if sel == "" {
			return NewScrapeError(ErrCodeInvalidInput,
				fmt.Sprintf("field %q has an empty selector", field), nil)
		}
		if _, err := cascadia.Parse(sel); err != nil {
			return NewScrapeError(ErrCodeInvalidInput,
				fmt.Sprintf("field %q has an invalid selector %q", field, sel), err)
		}
	}
	if r.WaitForSelector != "" {
		if _, err := cascadia.Parse(r.WaitForSelector); err != nil {
			return NewScrapeError(ErrCodeInvalidInput,
				fmt.Sprintf("invalid wait_for_selector %q", r.WaitForSelector), err)
		}
	}
	return nil
}
