package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xzax/axdns/internal/api/models"
	"github.com/xzax/axdns/internal/config"
)

// GetConfig returns the running configuration with the API key removed.
func (h *Handler) GetConfig(c *gin.Context) {
	if h.cfg == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "config unavailable"})
		return
	}

	db := models.DatabaseConfigResponse{
		Driver:       h.cfg.Database.Driver,
		ResetOnStart: h.cfg.Database.ResetOnStart,
	}
	if db.Driver != config.DriverMemory {
		db.Path = h.cfg.Database.Path
	}

	resp := models.ConfigResponse{
		Server: models.ServerConfigResponse{
			Addresses:        h.cfg.Server.BindAddresses(),
			Workers:          h.cfg.Server.Workers.String(),
			MaxConcurrency:   h.cfg.Server.MaxConcurrency,
			EnableTCP:        h.cfg.Server.EnableTCP,
			QueryTimeout:     h.cfg.Server.QueryTimeout.String(),
			TCPIdleTimeout:   h.cfg.Server.TCPIdleTimeout.String(),
			TCPMaxConnsPerIP: h.cfg.Server.TCPMaxConnsPerIP,
		},
		Database:  db,
		Cache:     h.cfg.Cache,
		Logging:   h.cfg.Logging,
		RateLimit: h.cfg.RateLimit,
		API: models.APIConfigResponse{
			Enabled: h.cfg.API.Enabled,
			Host:    h.cfg.API.Host,
			Port:    h.cfg.API.Port,
		},
	}

	c.JSON(http.StatusOK, resp)
}
