// Package http wires the gin engine.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/poke08888/tiktok-ads-dashboard/internal/config"
	"github.com/poke08888/tiktok-ads-dashboard/internal/http/handler"
	httpmiddleware "github.com/poke08888/tiktok-ads-dashboard/internal/http/middleware"
	"github.com/poke08888/tiktok-ads-dashboard/internal/middleware"
)

// NewRouter wires gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, proxyHandler *handler.ProxyHandler, rateLimiter *httpmiddleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   cfg.ServiceName,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"platforms": gin.H{
				"shopee": cfg.Shopee.Enabled,
				"tiktok": cfg.TikTok.Enabled,
			},
		})
	})

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/:platform", authHandler.Begin)
		authGroup.GET("/:platform/callback", authHandler.Callback)
		authGroup.GET("/:platform/status", authHandler.Status)
		authGroup.POST("/:platform/refresh", authHandler.Refresh)
		authGroup.POST("/:platform/logout", authHandler.Logout)
	}

	r.Any("/proxy/:platform/*path", proxyHandler.Dispatch)

	return r
}
