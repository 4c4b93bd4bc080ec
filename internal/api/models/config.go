package models

import "github.com/xzax/axdns/internal/config"

// APIConfigResponse is a redacted version of APIConfig (no api_key exposed).
type APIConfigResponse struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// ServerConfigResponse wraps ServerConfig with workers as string and the
// resolved bind addresses.
type ServerConfigResponse struct {
	Addresses        []string `json:"addresses"`
	Workers          string   `json:"workers"`
	MaxConcurrency   int      `json:"max_concurrency"`
	EnableTCP        bool     `json:"enable_tcp"`
	QueryTimeout     string   `json:"query_timeout"`
	TCPIdleTimeout   string   `json:"tcp_idle_timeout"`
	TCPMaxConnsPerIP int      `json:"tcp_max_conns_per_ip"`
}

// DatabaseConfigResponse describes the record store without pool tuning.
type DatabaseConfigResponse struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	ResetOnStart bool   `json:"reset_on_start"`
}

// ConfigResponse is the API response for GET /config.
type ConfigResponse struct {
	Server    ServerConfigResponse   `json:"server"`
	Database  DatabaseConfigResponse `json:"database"`
	Cache     config.CacheConfig     `json:"cache"`
	Logging   config.LoggingConfig   `json:"logging"`
	RateLimit config.RateLimitConfig `json:"rate_limit"`
	API       APIConfigResponse      `json:"api"`
}
