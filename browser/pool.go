// Package browser owns the shared headless-browser process. One long-lived
// browser is reused across fetches; pages are the per-request unit of
// isolation. A dead or disconnected browser is relaunched on the next
// acquisition, so callers never manage browser lifecycle themselves.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/flowmatic/harvester/config"
	"github.com/flowmatic/harvester/models"
)

// Pool manages the shared browser and bounds concurrent pages.
// It is safe for concurrent use.
type Pool struct {
	cfg config.BrowserConfig

	mu      sync.Mutex
	browser *rod.Browser

	slots  chan struct{}
	active atomic.Int32
	closed atomic.Bool
}

// NewPool creates a Pool. The browser launches lazily on first acquisition,
// so constructing the pool is cheap and test-friendly.
func NewPool(cfg config.BrowserConfig) *Pool {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	return &Pool{
		cfg:   cfg,
		slots: make(chan struct{}, cfg.MaxPages),
	}
}

// AcquirePage returns a fresh page in the shared browser plus a release
// function that closes the page and frees its slot. The release function
// must be called exactly once, on success or failure.
func (p *Pool) AcquirePage(ctx context.Context) (*rod.Page, func(), error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	page, err := p.newPage()
	if err != nil {
		<-p.slots
		return nil, nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash, "failed to create browser page", err)
	}

	p.active.Add(1)
	release := func() {
		if err := page.Close(); err != nil {
			slog.Warn("failed to close browser page", "error", err)
		}
		p.active.Add(-1)
		<-p.slots
	}
	return page, release, nil
}

// newPage creates a page, relaunching the browser once if the cached handle
// turns out to be dead (crashed or disconnected since last use).
func (p *Pool) newPage() (*rod.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser == nil {
		if err := p.launchLocked(); err != nil {
			return nil, err
		}
	}

	page, err := p.browser.Page(proto.TargetCreateTarget{})
	if err == nil {
		return page, nil
	}

	// Stale handle: drop it and relaunch once.
	slog.Warn("browser page creation failed, relaunching browser", "error", err)
	p.dropLocked()
	if err := p.launchLocked(); err != nil {
		return nil, err
	}
	return p.browser.Page(proto.TargetCreateTarget{})
}

// launchLocked starts a browser process and connects. Caller holds p.mu.
func (p *Pool) launchLocked() error {
	l := launcher.New().
		Headless(p.cfg.Headless).
		NoSandbox(p.cfg.NoSandbox)

	if p.cfg.BrowserBin != "" {
		l = l.Bin(p.cfg.BrowserBin)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect: %w", err)
	}

	slog.Info("browser launched", "controlURL", controlURL)
	p.browser = b
	return nil
}

// dropLocked discards the cached browser handle. Caller holds p.mu.
func (p *Pool) dropLocked() {
	if p.browser == nil {
		return
	}
	if err := p.browser.Close(); err != nil {
		slog.Debug("closing stale browser handle", "error", err)
	}
	p.browser = nil
}

// ActivePages returns the number of pages currently checked out.
func (p *Pool) ActivePages() int {
	return int(p.active.Load())
}

// MaxPages returns the concurrent page cap.
func (p *Pool) MaxPages() int {
	return p.cfg.MaxPages
}

// Close kills the browser process. Call on graceful shutdown to avoid
// zombie Chrome processes.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked()
	slog.Info("browser pool closed")
}
