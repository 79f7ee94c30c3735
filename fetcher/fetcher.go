// Package fetcher orchestrates scrapes end to end: route the request to an
// engine, draw a proxy, fetch with retries and ban handling, extract the
// requested fields, and feed usage and selector outcomes back asynchronously.
package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/flowmatic/harvester/config"
	"github.com/flowmatic/harvester/models"
)

// feedbackTimeout bounds each selector-outcome delivery so a slow healing
// collaborator cannot wedge the feedback worker.
const feedbackTimeout = 10 * time.Second

// EngineRouter decides which fetch strategy a request gets.
type EngineRouter interface {
	Decide(ctx context.Context, req *models.ScrapeRequest) models.RoutingDecision
}

// ProxyPool selects proxies and accepts usage reports.
type ProxyPool interface {
	Select(ctx context.Context, filters models.SelectionFilters) (*models.ProxyRecord, error)
	Report(event models.ProxyUsageEvent)
}

// PagePool hands out browser pages for the browser engine.
type PagePool interface {
	AcquirePage(ctx context.Context) (*rod.Page, func(), error)
}

// SelectorReporter receives per-field hit/miss signals. The orchestrator
// only produces the signal; selector history lives with the collaborator.
type SelectorReporter interface {
	ReportSelector(ctx context.Context, outcome models.SelectorOutcome) error
}

// Telemetry receives fetch-path observations. Implementations must not
// block; every call site treats telemetry as fire-and-forget.
type Telemetry interface {
	ObserveScrape(engine models.Engine, success bool, d time.Duration)
	ObserveAttempt(engine models.Engine, outcome string)
	ObserveProxySelection(class string)
	ObserveProxyBan(class string)
}

// Orchestrator is the scrape entry point. It is safe for concurrent use.
// Optional collaborators (proxy pool, page pool, selector reporter,
// telemetry) are wired via setters before the first Scrape call.
type Orchestrator struct {
	cfg       config.FetcherConfig
	router    EngineRouter
	proxies   ProxyPool
	pages     PagePool
	healer    SelectorReporter
	telemetry Telemetry

	outcomes chan models.SelectorOutcome
	done     chan struct{}
	stopped  chan struct{}
}

// New creates an Orchestrator and starts its feedback worker.
func New(cfg config.FetcherConfig, router EngineRouter) *Orchestrator {
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = 120 * time.Second
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.FeedbackQueueSize <= 0 {
		cfg.FeedbackQueueSize = 1024
	}

	o := &Orchestrator{
		cfg:      cfg,
		router:   router,
		outcomes: make(chan models.SelectorOutcome, cfg.FeedbackQueueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go o.feedbackLoop()
	return o
}

// SetProxyPool enables proxied fetches for requests that ask for them.
func (o *Orchestrator) SetProxyPool(p ProxyPool) { o.proxies = p }

// SetPagePool enables the browser engine. Without it, browser-routed
// requests degrade to the lightweight engine.
func (o *Orchestrator) SetPagePool(p PagePool) { o.pages = p }

// SetSelectorReporter enables asynchronous selector-outcome forwarding.
func (o *Orchestrator) SetSelectorReporter(r SelectorReporter) { o.healer = r }

// SetTelemetry enables fetch-path metric recording.
func (o *Orchestrator) SetTelemetry(t Telemetry) { o.telemetry = t }

// Close stops the feedback worker after draining queued outcomes.
func (o *Orchestrator) Close() {
	close(o.done)
	<-o.stopped
}

// fetchResult is the raw outcome of one successful fetch attempt, before
// extraction.
type fetchResult struct {
	html        string
	statusCode  int
	contentType string
	finalURL    string
	screenshot  []byte
}

// Scrape runs one request to completion. The returned error is non-nil only
// for invalid input; fetch failures come back as a result with Success false
// and a populated Error, so the API layer maps them uniformly.
func (o *Orchestrator) Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResult, error) {
	req.Defaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	timeout := time.Duration(req.Timeout) * time.Second
	if timeout > o.cfg.MaxTimeout {
		timeout = o.cfg.MaxTimeout
	}

	decision := o.router.Decide(ctx, req)
	engine := decision.Engine
	if engine == models.EngineBrowser && o.pages == nil {
		slog.Warn("browser engine unavailable, degrading to lightweight", "url", req.URL)
		engine = models.EngineLightweight
	}
	slog.Debug("engine selected",
		"url", req.URL,
		"engine", engine,
		"reason", decision.Reason,
		"confidence", decision.Confidence,
	)

	res, proxyID, attempts, ferr := o.runAttempts(ctx, req, engine, timeout)

	meta := models.ResultMetadata{
		Engine:   engine,
		Attempts: attempts,
		ProxyID:  proxyID,
	}

	if ferr != nil {
		meta.LatencyMs = time.Since(start).Milliseconds()
		o.observeScrape(engine, false, time.Since(start))
		slog.Info("scrape failed",
			"url", req.URL, "engine", engine, "attempts", attempts, "error", ferr)
		return &models.ScrapeResult{
			Success:  false,
			Error:    ferr.ToDetail(),
			Metadata: meta,
		}, nil
	}

	meta.StatusCode = res.statusCode
	meta.ContentType = res.contentType
	meta.ContentLength = len(res.html)
	meta.FinalURL = res.finalURL

	result := &models.ScrapeResult{Success: true}

	if len(req.Fields) > 0 {
		data, outcomes, err := extractFields(req, res.html)
		if err != nil {
			meta.LatencyMs = time.Since(start).Milliseconds()
			result.Success = false
			result.Error = models.NewScrapeError(
				models.ErrCodeInternal, "failed to parse fetched markup", err).ToDetail()
			result.Metadata = meta
			o.observeScrape(engine, false, time.Since(start))
			return result, nil
		}
		result.Data = data
		o.emitOutcomes(outcomes)
	} else {
		// Relative links in the article must resolve against where the
		// fetch actually landed, not the pre-redirect URL.
		result.Content = articleContent(res.finalURL, res.html)
	}

	if req.IncludeRawHTML {
		result.RawHTML = res.html
	}
	result.Screenshot = res.screenshot

	meta.LatencyMs = time.Since(start).Milliseconds()
	result.Metadata = meta
	o.observeScrape(engine, true, time.Since(start))
	slog.Info("scrape completed",
		"url", req.URL,
		"engine", engine,
		"attempts", attempts,
		"latency_ms", meta.LatencyMs,
		"content_length", meta.ContentLength,
	)
	return result, nil
}

// runAttempts drives the retry loop: up to Retries+1 attempts with linear
// backoff. A ban signal swaps the proxy for a fresh draw (excluding every
// proxy already banned this request); fatal errors stop immediately.
func (o *Orchestrator) runAttempts(ctx context.Context, req *models.ScrapeRequest, engine models.Engine, timeout time.Duration) (*fetchResult, string, int, *models.ScrapeError) {
	var proxy *models.ProxyRecord
	var excluded []string
	if req.UseProxy && o.proxies != nil {
		proxy = o.drawProxy(ctx, req, excluded)
	}

	maxAttempts := *req.Retries + 1
	var lastErr *models.ScrapeError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptStart := time.Now()
		res, ferr := o.fetchOnce(ctx, req, engine, proxy, timeout)
		latency := time.Since(attemptStart).Milliseconds()

		if ferr == nil {
			if proxy != nil {
				o.reportUsage(req, proxy, res.statusCode, latency, "", nil)
			}
			o.observeAttempt(engine, "success")
			return res, recordID(proxy), attempt, nil
		}
		lastErr = ferr

		switch {
		case ferr.Code == models.ErrCodeBanned && proxy != nil:
			// The exit address is burned for this target; never reuse it
			// within the same request.
			o.observeAttempt(engine, "ban")
			if o.telemetry != nil {
				o.telemetry.ObserveProxyBan(proxy.Class)
			}
			o.reportUsage(req, proxy, statusFromBanReason(ferr.Message), latency, ferr.Message, ferr)
			excluded = append(excluded, proxy.ID)
			slog.Warn("proxy banned by upstream, redrawing",
				"url", req.URL, "proxy_id", proxy.ID, "reason", ferr.Message)
			proxy = o.drawProxy(ctx, req, excluded)

		case isFatal(ferr):
			if proxy != nil {
				o.reportUsage(req, proxy, 0, latency, "", ferr)
			}
			o.observeAttempt(engine, "fatal")
			return nil, recordID(proxy), attempt, ferr

		default:
			if proxy != nil {
				o.reportUsage(req, proxy, 0, latency, "", ferr)
			}
			o.observeAttempt(engine, "retry")
			slog.Debug("fetch attempt failed",
				"url", req.URL, "attempt", attempt, "error", ferr)
		}

		if attempt < maxAttempts {
			if err := o.backoff(ctx, req, attempt); err != nil {
				return nil, recordID(proxy), attempt,
					models.NewScrapeError(models.ErrCodeTimeout, "canceled during retry backoff", err)
			}
		}
	}
	return nil, recordID(proxy), maxAttempts, lastErr
}

// fetchOnce performs a single attempt with its own deadline.
func (o *Orchestrator) fetchOnce(ctx context.Context, req *models.ScrapeRequest, engine models.Engine, proxy *models.ProxyRecord, timeout time.Duration) (*fetchResult, *models.ScrapeError) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if engine == models.EngineBrowser {
		return o.fetchBrowser(attemptCtx, req, proxy)
	}
	return o.fetchLightweight(attemptCtx, req, proxy)
}

// drawProxy picks a proxy matching the request's filters. Selection errors
// and empty pools degrade to a direct fetch rather than failing the scrape.
func (o *Orchestrator) drawProxy(ctx context.Context, req *models.ScrapeRequest, exclude []string) *models.ProxyRecord {
	filters := models.SelectionFilters{
		TenantID: req.TenantID,
		Exclude:  exclude,
	}
	if req.ProxyFilters != nil {
		filters.Country = req.ProxyFilters.Country
		filters.Class = req.ProxyFilters.Class
		filters.MinScore = req.ProxyFilters.MinScore
	}

	proxy, err := o.proxies.Select(ctx, filters)
	if err != nil {
		slog.Warn("proxy selection failed, fetching direct", "url", req.URL, "error", err)
		return nil
	}
	if proxy == nil {
		slog.Debug("no proxy candidate matched, fetching direct", "url", req.URL)
		return nil
	}
	if o.telemetry != nil {
		o.telemetry.ObserveProxySelection(proxy.Class)
	}
	return proxy
}

// reportUsage enqueues one usage event on the proxy pool. banReason is empty
// for non-ban outcomes; ferr is nil on success.
func (o *Orchestrator) reportUsage(req *models.ScrapeRequest, proxy *models.ProxyRecord, statusCode int, latencyMs int64, banReason string, ferr error) {
	event := models.ProxyUsageEvent{
		ProxyID:    proxy.ID,
		Success:    ferr == nil,
		StatusCode: statusCode,
		LatencyMs:  latencyMs,
		BanReason:  banReason,
		TenantID:   req.TenantID,
		UserID:     req.UserID,
		URL:        req.URL,
		CreatedAt:  time.Now(),
	}
	if ferr != nil {
		event.Error = ferr.Error()
	}
	o.proxies.Report(event)
}

// backoff sleeps the linear retry delay: base delay times the attempt number
// just completed.
func (o *Orchestrator) backoff(ctx context.Context, req *models.ScrapeRequest, attempt int) error {
	delay := time.Duration(*req.RetryDelayMs*attempt) * time.Millisecond
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emitOutcomes queues selector outcomes for the feedback worker. It never
// blocks; outcomes beyond queue capacity are dropped.
func (o *Orchestrator) emitOutcomes(outcomes []models.SelectorOutcome) {
	if o.healer == nil {
		return
	}
	for _, out := range outcomes {
		select {
		case o.outcomes <- out:
		default:
			slog.Debug("selector feedback queue full, dropping outcome",
				"url", out.URL, "field", out.Field)
		}
	}
}

// feedbackLoop forwards queued selector outcomes to the healing
// collaborator. Delivery failures are logged and swallowed.
func (o *Orchestrator) feedbackLoop() {
	defer close(o.stopped)
	for {
		select {
		case out := <-o.outcomes:
			o.forwardOutcome(out)
		case <-o.done:
			for {
				select {
				case out := <-o.outcomes:
					o.forwardOutcome(out)
				default:
					return
				}
			}
		}
	}
}

func (o *Orchestrator) forwardOutcome(out models.SelectorOutcome) {
	if o.healer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), feedbackTimeout)
	defer cancel()

	if err := o.healer.ReportSelector(ctx, out); err != nil {
		slog.Warn("selector feedback delivery failed",
			"url", out.URL, "field", out.Field, "error", err)
	}
}

func (o *Orchestrator) observeScrape(engine models.Engine, success bool, d time.Duration) {
	if o.telemetry != nil {
		o.telemetry.ObserveScrape(engine, success, d)
	}
}

func (o *Orchestrator) observeAttempt(engine models.Engine, outcome string) {
	if o.telemetry != nil {
		o.telemetry.ObserveAttempt(engine, outcome)
	}
}

// isFatal reports whether an error should stop the retry loop immediately.
// Client errors and wrong content types will not improve on retry.
func isFatal(err *models.ScrapeError) bool {
	switch err.Code {
	case models.ErrCodeClientError, models.ErrCodeContentTypeMismatch, models.ErrCodeInvalidInput:
		return true
	}
	return false
}

func recordID(p *models.ProxyRecord) string {
	if p == nil {
		return ""
	}
	return p.ID
}

// banReason renders a ban-signal status as a stable reason string.
func banReason(statusCode int) string {
	return "http_" + strconv.Itoa(statusCode)
}

// statusFromBanReason recovers the status code from a banReason string.
func statusFromBanReason(reason string) int {
	code, err := strconv.Atoi(strings.TrimPrefix(reason, "http_"))
	if err != nil {
		return 0
	}
	return code
}

// categorizeError wraps raw fetch errors into typed ScrapeErrors so the
// retry loop and the API layer can classify them.
func categorizeError(err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}
}
