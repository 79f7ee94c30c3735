package fetcher

import (
	"log/slog"
	"net/http"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/flowmatic/harvester/models"
)

// blockedResourceTypes lists resource types the browser engine never loads.
// Extraction only needs markup; images, styles, fonts and media just burn
// bandwidth (and proxy quota).
var blockedResourceTypes = map[proto.NetworkResourceType]struct{}{
	proto.NetworkResourceTypeImage:      {},
	proto.NetworkResourceTypeStylesheet: {},
	proto.NetworkResourceTypeFont:       {},
	proto.NetworkResourceTypeMedia:      {},
}

// mountHijack installs a request interceptor on the page that drops heavy
// resource types and, when a proxy is assigned, routes the remaining
// requests through it. The proxy has to be applied per page because the
// shared browser process is launched without one.
//
// Returns the running HijackRouter so the caller can defer router.Stop().
func (o *Orchestrator) mountHijack(page *rod.Page, record *models.ProxyRecord) *rod.HijackRouter {
	var client *http.Client
	if record != nil {
		c, err := newFetchClient(record)
		if err != nil {
			slog.Warn("proxy client setup failed, browser fetch goes direct",
				"proxy_id", record.ID, "error", err)
		} else {
			client = c
		}
	}

	router := page.HijackRequests()

	// Pattern "*" with an empty resource type intercepts everything; the
	// handler decides per request.
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, block := blockedResourceTypes[ctx.Request.Type()]; block {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		if client != nil {
			if err := ctx.LoadResponse(client, true); err != nil {
				ctx.Response.Fail(proto.NetworkErrorReasonConnectionFailed)
			}
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until router.Stop() is called.
	go router.Run()

	return router
}
