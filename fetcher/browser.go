package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/flowmatic/harvester/models"
)

// maxScrollSteps caps the scroll-to-bottom loop on pages with infinite feeds.
const maxScrollSteps = 20

// fetchBrowser loads the target in a headless page, runs the request's
// browser options (wait selector, scroll, eval, screenshot), and returns the
// rendered markup.
//
// Order matters: stealth injection and the hijack router only take effect
// for navigations that happen after they are installed.
func (o *Orchestrator) fetchBrowser(ctx context.Context, req *models.ScrapeRequest, proxy *models.ProxyRecord) (*fetchResult, *models.ScrapeError) {
	page, release, err := o.pages.AcquirePage(ctx)
	if err != nil {
		var serr *models.ScrapeError
		if errors.As(err, &serr) {
			return nil, serr
		}
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to acquire browser page", err)
	}
	defer release()

	if o.cfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	if req.Viewport != nil {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             req.Viewport.Width,
			Height:            req.Viewport.Height,
			DeviceScaleFactor: 1,
		}).Call(page); err != nil {
			slog.Warn("viewport override failed", "error", err)
		}
	}

	ua := req.UserAgent
	if ua == "" {
		ua = chromeUA
	}
	if err := (proto.NetworkSetUserAgentOverride{UserAgent: ua}).Call(page); err != nil {
		slog.Warn("user agent override failed", "error", err)
	}

	if len(req.Headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(req.Headers)}.Call(page)
	}

	router := o.mountHijack(page, proxy)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	navCtx, navCancel := context.WithTimeout(ctx, o.cfg.NavigationTimeout)
	defer navCancel()
	if err := page.Context(navCtx).Navigate(req.URL); err != nil {
		return nil, categorizeError(err, "navigation to target URL failed")
	}

	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("DOM did not stabilize, proceeding with current state",
			"url", req.URL, "error", err)
	}

	if req.WaitForSelector != "" {
		if err := p.WaitElementsMoreThan(req.WaitForSelector, 0); err != nil {
			return nil, categorizeError(err,
				fmt.Sprintf("wait_for_selector %q did not match", req.WaitForSelector))
		}
	}

	if req.ScrollToBottom {
		scrollToBottom(p)
	}

	if req.EvalScript != "" {
		if _, err := p.Eval(req.EvalScript); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeNavigation, "eval_script failed", err)
		}
	}

	statusCode := navigationStatus(p)
	if serr := classifyStatus(statusCode, proxy != nil); serr != nil {
		return nil, serr
	}

	var screenshot []byte
	if req.Screenshot {
		shot, err := p.Screenshot(false, nil)
		if err != nil {
			slog.Warn("screenshot capture failed", "url", req.URL, "error", err)
		} else {
			screenshot = shot
		}
	}

	html, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to read rendered HTML")
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = req.URL
	}

	return &fetchResult{
		html:       html,
		statusCode: statusCode,
		finalURL:   finalURL,
		screenshot: screenshot,
	}, nil
}

// scrollToBottom scrolls one viewport at a time with short pauses so lazy
// loaders get a chance to fire, stopping once the page bottom is reached.
func scrollToBottom(p *rod.Page) {
	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return
	}
	viewportHeight := res.Value.Int()

	for i := 0; i < maxScrollSteps; i++ {
		if err := p.Mouse.Scroll(0, float64(viewportHeight), 0); err != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)

		atBottom, err := p.Eval(`() => window.innerHeight + window.scrollY >= document.body.scrollHeight`)
		if err == nil && atBottom.Value.Bool() {
			return
		}
	}
}

// navigationStatus reads the navigation's HTTP status from the performance
// timeline. CDP event listeners conflict with the hijack router's Fetch
// domain on recent Chromium, so this stays JS-side. Best effort; 0 when
// unavailable.
func navigationStatus(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing errors.
func evalStringOrEmpty(p *rod.Page, js string) string {
	res, err := p.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
