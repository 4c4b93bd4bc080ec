package models

import "time"

// ServerStatsResponse contains server runtime statistics.
type ServerStatsResponse struct {
	Uptime        string              `json:"uptime"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	StartTime     time.Time           `json:"start_time"`
	GoRoutines    int                 `json:"goroutines"`
	MemoryAllocMB float64             `json:"memory_alloc_mb"`
	NumCPU        int                 `json:"num_cpu"`
	Process       *ProcessStats       `json:"process,omitempty"`
	DNSStats      DNSStatsResponse    `json:"dns"`
	Cache         CacheStatsResponse  `json:"cache"`
	Filter        FilterStatsResponse `json:"filter"`
}

// ProcessStats is what the operating system reports for this process.
type ProcessStats struct {
	RSSMB      float64 `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
}

// DNSStatsResponse contains DNS query statistics.
type DNSStatsResponse struct {
	QueriesTotal  uint64  `json:"queries_total"`
	QueriesUDP    uint64  `json:"queries_udp"`
	QueriesTCP    uint64  `json:"queries_tcp"`
	ResponsesOK   uint64  `json:"responses_ok"`
	ResponsesFail uint64  `json:"responses_servfail"`
	Truncated     uint64  `json:"truncated"`
	Malformed     uint64  `json:"malformed"`
	Dropped       uint64  `json:"dropped"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// CacheStatsResponse describes the lookup cache.
type CacheStatsResponse struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	RecordEntries int    `json:"record_entries"`
	ChainEntries  int    `json:"chain_entries"`
	Capacity      int    `json:"capacity"`
}

// FilterStatsResponse describes the negative-lookup filter.
type FilterStatsResponse struct {
	Rejected          uint64  `json:"rejected"`
	Passed            uint64  `json:"passed"`
	Names             int     `json:"names"`
	Capacity          int     `json:"capacity"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}
