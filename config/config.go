package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Router    RouterConfig
	ProxyPool ProxyPoolConfig
	Fetcher   FetcherConfig
	Store     StoreConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the shared headless browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages caps concurrent pages in the shared browser.
	MaxPages int // default: 5

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// RouterConfig controls the engine router.
type RouterConfig struct {
	// ProbeTimeout bounds the pre-fetch used to inspect markup.
	ProbeTimeout time.Duration // default: 5s

	// CacheTTL is the heuristic snapshot expiry.
	CacheTTL time.Duration // default: 1h

	// CacheMaxEntries caps the in-memory heuristic cache.
	CacheMaxEntries int // default: 10000

	// AssumeBrowserOnProbeFailure flips the probe-failure fallback from
	// the cheaper lightweight engine to the browser engine.
	AssumeBrowserOnProbeFailure bool // default: false
}

// ProxyPoolConfig controls proxy selection and scoring.
type ProxyPoolConfig struct {
	// MaxCandidates bounds the candidate fetch per selection.
	MaxCandidates int // default: 100

	// ScoreWindow is the number of recent usage events a score derives from.
	ScoreWindow int // default: 100

	// ReportQueueSize is the usage-report channel capacity. Reports beyond
	// capacity are dropped rather than blocking the fetch path.
	ReportQueueSize int // default: 1024
}

// FetcherConfig controls the fetch/extract orchestrator.
type FetcherConfig struct {
	// DefaultTimeout is the per-attempt timeout.
	DefaultTimeout time.Duration // default: 30s

	// MaxTimeout caps the timeout a client may request.
	MaxTimeout time.Duration // default: 120s

	// NavigationTimeout bounds browser navigation alone.
	NavigationTimeout time.Duration // default: 15s

	// MaxBodyBytes caps fetched response bodies.
	MaxBodyBytes int64 // default: 10 MiB

	// FeedbackQueueSize is the selector-outcome channel capacity.
	FeedbackQueueSize int // default: 1024

	// Stealth enables anti-automation masking on browser pages.
	Stealth bool // default: true
}

// StoreConfig controls the SQLite proxy store.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string // default: "./data/harvester.db"
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// MetricsConfig controls Prometheus metric exposure.
type MetricsConfig struct {
	// Enabled toggles the /metrics endpoint and metric recording.
	Enabled bool // default: true

	// Namespace prefixes every metric name.
	Namespace string // default: "harvester"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("HARVESTER_HOST", "0.0.0.0"),
			Port: envIntOr("HARVESTER_PORT", 8080),
			Mode: envOr("HARVESTER_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("HARVESTER_HEADLESS", true),
			MaxPages:   envIntOr("HARVESTER_MAX_PAGES", 5),
			NoSandbox:  envBoolOr("HARVESTER_NO_SANDBOX", false),
			BrowserBin: os.Getenv("HARVESTER_BROWSER_BIN"),
		},
		Router: RouterConfig{
			ProbeTimeout:                envDurationOr("HARVESTER_PROBE_TIMEOUT", 5*time.Second),
			CacheTTL:                    envDurationOr("HARVESTER_HEURISTIC_TTL", time.Hour),
			CacheMaxEntries:             envIntOr("HARVESTER_HEURISTIC_MAX_ENTRIES", 10000),
			AssumeBrowserOnProbeFailure: envBoolOr("HARVESTER_ASSUME_BROWSER_ON_PROBE_FAILURE", false),
		},
		ProxyPool: ProxyPoolConfig{
			MaxCandidates:   envIntOr("HARVESTER_PROXY_MAX_CANDIDATES", 100),
			ScoreWindow:     envIntOr("HARVESTER_PROXY_SCORE_WINDOW", 100),
			ReportQueueSize: envIntOr("HARVESTER_PROXY_REPORT_QUEUE", 1024),
		},
		Fetcher: FetcherConfig{
			DefaultTimeout:    envDurationOr("HARVESTER_DEFAULT_TIMEOUT", 30*time.Second),
			MaxTimeout:        envDurationOr("HARVESTER_MAX_TIMEOUT", 120*time.Second),
			NavigationTimeout: envDurationOr("HARVESTER_NAV_TIMEOUT", 15*time.Second),
			MaxBodyBytes:      int64(envIntOr("HARVESTER_MAX_BODY_BYTES", 10<<20)),
			FeedbackQueueSize: envIntOr("HARVESTER_FEEDBACK_QUEUE", 1024),
			Stealth:           envBoolOr("HARVESTER_STEALTH", true),
		},
		Store: StoreConfig{
			Path: envOr("HARVESTER_DB_PATH", "./data/harvester.db"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("HARVESTER_AUTH_ENABLED", true),
			APIKeys: envSliceOr("HARVESTER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("HARVESTER_RATE_RPS", 5.0),
			Burst:             envIntOr("HARVESTER_RATE_BURST", 10),
		},
		Metrics: MetricsConfig{
			Enabled:   envBoolOr("HARVESTER_METRICS_ENABLED", true),
			Namespace: envOr("HARVESTER_METRICS_NAMESPACE", "harvester"),
		},
		Log: LogConfig{
			Level:  envOr("HARVESTER_LOG_LEVEL", "info"),
			Format: envOr("HARVESTER_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
