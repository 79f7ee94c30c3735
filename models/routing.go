package models

// Engine identifies a fetch strategy.
type Engine string

const (
	// EngineLightweight issues a plain HTTP request and parses the returned
	// markup without executing embedded scripts.
	EngineLightweight Engine = "lightweight"

	// EngineBrowser loads the page in a headless browser, executing scripts
	// before extraction.
	EngineBrowser Engine = "browser"
)

// Valid reports whether the engine is one of the two supported values.
func (e Engine) Valid() bool {
	return e == EngineLightweight || e == EngineBrowser
}

// RoutingDecision is the router's verdict for a single request.
type RoutingDecision struct {
	// Engine is the chosen fetch strategy.
	Engine Engine `json:"engine"`

	// Reason is a human-readable explanation of the decision.
	Reason string `json:"reason"`

	// Confidence is in [0,1]. Explicit overrides are always 1.0.
	Confidence float64 `json:"confidence"`
}
