// Package router decides which fetch engine a request needs: lightweight
// DOM parsing or full browser rendering. Decisions derive from cached
// per-URL heuristic snapshots; a snapshot is produced by a short bounded
// probe of the target markup.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flowmatic/harvester/config"
	"github.com/flowmatic/harvester/models"
)

const probeMaxBytes = 2 << 20 // 2 MiB is plenty for heuristic analysis

// Router classifies target URLs. It is safe for concurrent use.
type Router struct {
	cfg    config.RouterConfig
	cache  Cache // nil disables caching; every request re-probes
	client *http.Client
}

// New creates a Router. cache may be nil.
func New(cfg config.RouterConfig, cache Cache) *Router {
	return &Router{
		cfg:    cfg,
		cache:  cache,
		client: newProbeClient(),
	}
}

// Decide produces a routing decision for the request. It never returns an
// error: probe failures fall back to a low-confidence default so routing
// can never fail a scrape.
func (r *Router) Decide(ctx context.Context, req *models.ScrapeRequest) models.RoutingDecision {
	// Explicit override: no probe, no cache interaction.
	if req.Engine != "" {
		return models.RoutingDecision{
			Engine:     req.Engine,
			Reason:     fmt.Sprintf("explicit engine override (%s)", req.Engine),
			Confidence: 1.0,
		}
	}

	if r.cache != nil {
		if h, ok := r.cache.Get(req.URL); ok {
			d := r.decideFrom(h, req)
			d.Reason = "cached heuristics: " + d.Reason
			return d
		}
	}

	body, err := r.probe(ctx, req.URL, probeMaxBytes)
	if err != nil {
		slog.Debug("heuristic probe failed", "url", req.URL, "error", err)
		return r.probeFailureFallback(err)
	}

	h := Analyze(body)
	if r.cache != nil {
		r.cache.Set(req.URL, h, r.cfg.CacheTTL)
	}
	return r.decideFrom(h, req)
}

// decideFrom applies the decision policy to a heuristic snapshot.
// Rules are evaluated in priority order; first match wins.
func (r *Router) decideFrom(h PageHeuristics, req *models.ScrapeRequest) models.RoutingDecision {
	switch {
	case h.Framework != "":
		return browserDecision(
			fmt.Sprintf("front-end framework fingerprint (%s)", h.Framework), 0.9)

	case h.NeedsRendering && h.Complexity == TierComplex:
		return browserDecision("rendering signals with complex markup", 0.8)

	case h.HasInteractiveAttrs && req.WaitForSelector != "":
		return browserDecision("interactive elements and wait-for-selector requested", 0.85)

	case h.NeedsRendering && h.ScriptCount > 0:
		return browserDecision(
			fmt.Sprintf("rendering signals with %d embedded scripts", h.ScriptCount), 0.7)

	case h.Complexity == TierSimple && h.ScriptCount == 0:
		return lightweightDecision("simple static markup with no scripts", 0.9)

	default:
		return lightweightDecision("no strong rendering signal, defaulting to cheapest engine", 0.6)
	}
}

// probeFailureFallback picks the engine to use when the probe itself fails.
// The default favors the cheaper lightweight engine; deployments that treat
// unknown pages as likely needing rendering can flip the config switch.
func (r *Router) probeFailureFallback(err error) models.RoutingDecision {
	if r.cfg.AssumeBrowserOnProbeFailure {
		return models.RoutingDecision{
			Engine:     models.EngineBrowser,
			Reason:     fmt.Sprintf("probe failed (%v), assuming rendering required", err),
			Confidence: 0.5,
		}
	}
	return models.RoutingDecision{
		Engine:     models.EngineLightweight,
		Reason:     fmt.Sprintf("probe failed (%v), defaulting to lightweight engine", err),
		Confidence: 0.5,
	}
}

func browserDecision(reason string, confidence float64) models.RoutingDecision {
	return models.RoutingDecision{
		Engine:     models.EngineBrowser,
		Reason:     reason,
		Confidence: confidence,
	}
}

func lightweightDecision(reason string, confidence float64) models.RoutingDecision {
	return models.RoutingDecision{
		Engine:     models.EngineLightweight,
		Reason:     reason,
		Confidence: confidence,
	}
}
