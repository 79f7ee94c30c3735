// Package metrics exposes fetch-path observations as Prometheus metrics.
// Recording is fire-and-forget; nothing here may fail a scrape.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowmatic/harvester/config"
	"github.com/flowmatic/harvester/models"
)

// Recorder implements fetcher.Telemetry on top of a private Prometheus
// registry, so repeated construction in tests never collides.
type Recorder struct {
	registry *prometheus.Registry

	scrapesTotal    *prometheus.CounterVec
	scrapeDuration  *prometheus.HistogramVec
	attemptsTotal   *prometheus.CounterVec
	proxySelections *prometheus.CounterVec
	proxyBans       *prometheus.CounterVec
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder(cfg config.MetricsConfig) *Recorder {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "harvester"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		scrapesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scrapes_total",
				Help:      "Total number of scrape requests by engine and outcome",
			},
			[]string{"engine", "success"},
		),
		scrapeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scrape_duration_seconds",
				Help:      "End-to-end scrape duration including retries",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"engine"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Individual fetch attempts by engine and outcome",
			},
			[]string{"engine", "outcome"},
		),
		proxySelections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_selections_total",
				Help:      "Proxy pool selections by proxy class",
			},
			[]string{"class"},
		),
		proxyBans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_bans_total",
				Help:      "Ban signals observed by proxy class",
			},
			[]string{"class"},
		),
	}
}

// ObserveScrape records one completed scrape.
func (r *Recorder) ObserveScrape(engine models.Engine, success bool, d time.Duration) {
	r.scrapesTotal.WithLabelValues(string(engine), strconv.FormatBool(success)).Inc()
	r.scrapeDuration.WithLabelValues(string(engine)).Observe(d.Seconds())
}

// ObserveAttempt records one fetch attempt.
// Outcome is one of "success", "retry", "ban", "fatal".
func (r *Recorder) ObserveAttempt(engine models.Engine, outcome string) {
	r.attemptsTotal.WithLabelValues(string(engine), outcome).Inc()
}

// ObserveProxySelection records one proxy draw.
func (r *Recorder) ObserveProxySelection(class string) {
	r.proxySelections.WithLabelValues(class).Inc()
}

// ObserveProxyBan records one ban signal.
func (r *Recorder) ObserveProxyBan(class string) {
	r.proxyBans.WithLabelValues(class).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
