package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xzax/axdns/internal/api/handlers"
	"github.com/xzax/axdns/internal/api/middleware"
	"github.com/xzax/axdns/internal/config"
	"github.com/xzax/axdns/internal/server"
)

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config, env *server.Env) {
	if env != nil && env.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(env.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")

	// Optional API key protection.
	if cfg != nil && cfg.API.APIKey != "" {
		api.Use(middleware.RequireAPIKey(cfg.API.APIKey))
	}

	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.GET("/config", h.GetConfig)

	api.GET("/records", h.ListRecords)
	api.POST("/records", h.CreateRecord)
	api.DELETE("/records", h.DeleteRecords)
	api.GET("/records/names", h.ListNames)
	api.GET("/records/chains", h.ListChains)
	api.POST("/records/delete", h.DeleteRecord)
	api.POST("/records/clear", h.ClearRecords)

	api.POST("/cache/flush", h.FlushCache)
	api.POST("/filter/rebuild", h.RebuildFilter)
}
