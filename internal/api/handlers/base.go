// Package handlers implements the management API endpoint handlers.
//
// REST API Endpoints:
//
// System:
//   - GET /api/v1/health - Store reachability
//   - GET /api/v1/stats - Runtime, process, query, cache and filter statistics
//   - GET /api/v1/config - Current configuration (API key redacted)
//
// Records:
//   - GET /api/v1/records?name=&type= - List records, optionally filtered
//   - GET /api/v1/records/names - List distinct owner names
//   - GET /api/v1/records/chains?name=&type= - Alias chains for a name and type
//   - POST /api/v1/records - Insert a record
//   - POST /api/v1/records/delete - Delete one exact record
//   - DELETE /api/v1/records?name=&type= - Delete by name, type or both
//   - POST /api/v1/records/clear - Delete every record
//
// Maintenance:
//   - POST /api/v1/cache/flush - Drop cached lookups
//   - POST /api/v1/filter/rebuild - Rebuild the negative-lookup filter
//
// Authentication:
//
// When an API key is configured every /api/v1 endpoint requires the
// X-API-Key header.
package handlers

import (
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/xzax/axdns/internal/config"
	"github.com/xzax/axdns/internal/helpers"
	"github.com/xzax/axdns/internal/server"
)

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	env       *server.Env
	logger    *slog.Logger
	startTime time.Time
	proc      *process.Process
}

// New creates a Handler serving the records and statistics in env.
func New(cfg *config.Config, env *server.Env, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{
		cfg:       cfg,
		env:       env,
		logger:    logger,
		startTime: time.Now(),
	}
	if p, err := process.NewProcess(helpers.ClampIntToInt32(os.Getpid())); err == nil {
		h.proc = p
	} else {
		logger.Debug("process stats unavailable", "err", err)
	}
	return h
}
