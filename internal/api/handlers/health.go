package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xzax/axdns/internal/api/models"
)

// Health reports ok when the record store answers a ping, 503 otherwise.
func (h *Handler) Health(c *gin.Context) {
	if h.env != nil {
		if err := h.env.Health(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "record store unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats returns runtime statistics together with query, cache and filter
// counters.
func (h *Handler) Stats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(h.startTime)

	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		GoRoutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(m.Alloc) / 1024 / 1024,
		NumCPU:        runtime.NumCPU(),
		Process:       h.processStats(c),
	}

	if h.env != nil {
		if h.env.Stats != nil {
			s := h.env.Stats.Snapshot()
			resp.DNSStats = models.DNSStatsResponse{
				QueriesTotal:  s.QueriesTotal,
				QueriesUDP:    s.QueriesUDP,
				QueriesTCP:    s.QueriesTCP,
				ResponsesOK:   s.ResponsesOK,
				ResponsesFail: s.ResponsesFail,
				Truncated:     s.Truncated,
				Malformed:     s.Malformed,
				Dropped:       s.Dropped,
				AvgLatencyMs:  s.AvgLatencyMs,
			}
		}
		if h.env.Records != nil {
			cs := h.env.Records.Cache.Stats()
			resp.Cache = models.CacheStatsResponse{
				Hits:          cs.Hits,
				Misses:        cs.Misses,
				RecordEntries: cs.RecordEntries,
				ChainEntries:  cs.ChainEntries,
				Capacity:      cs.Capacity,
			}
			fs := h.env.Records.Stats()
			resp.Filter = models.FilterStatsResponse{
				Rejected:          fs.Rejected,
				Passed:            fs.Passed,
				Names:             fs.Names,
				Capacity:          fs.Capacity,
				FalsePositiveRate: fs.FalsePositiveRate,
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// processStats asks the OS about this process; nil if it cannot.
func (h *Handler) processStats(c *gin.Context) *models.ProcessStats {
	if h.proc == nil {
		return nil
	}
	ctx := c.Request.Context()
	mem, err := h.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		h.logger.Debug("process memory unavailable", "err", err)
		return nil
	}
	out := &models.ProcessStats{RSSMB: float64(mem.RSS) / 1024 / 1024}
	if cpu, err := h.proc.CPUPercentWithContext(ctx); err == nil {
		out.CPUPercent = cpu
	}
	if n, err := h.proc.NumThreadsWithContext(ctx); err == nil {
		out.Threads = n
	}
	return out
}
