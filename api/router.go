// Package api wires the HTTP surface: scrape, health, proxy administration,
// and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowmatic/harvester/api/handler"
	"github.com/flowmatic/harvester/api/middleware"
	"github.com/flowmatic/harvester/config"
	"github.com/flowmatic/harvester/proxypool"
)

// Deps collects the collaborators the router exposes over HTTP. Optional
// fields may be nil; the corresponding routes degrade or disappear.
type Deps struct {
	Scraper    handler.Scraper
	ProxyAdmin proxypool.AdminStore
	Pages      handler.PageStats
	Metrics    http.Handler
	StartTime  time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so monitoring probes always work.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(deps.Pages, deps.StartTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/scrape", handler.Scrape(deps.Scraper))

	if deps.ProxyAdmin != nil {
		protected.POST("/proxies", handler.CreateProxy(deps.ProxyAdmin))
		protected.GET("/proxies", handler.ListProxies(deps.ProxyAdmin))
		protected.GET("/proxies/:id", handler.GetProxy(deps.ProxyAdmin))
		protected.POST("/proxies/:id/deactivate", handler.DeactivateProxy(deps.ProxyAdmin))
		protected.DELETE("/proxies/:id", handler.DeleteProxy(deps.ProxyAdmin))
	}

	return r
}
