package config

import (
	"strconv"
	"time"
)

// WorkersMode specifies how worker count is determined.
type WorkersMode int

const (
	// WorkersAuto automatically determines worker count based on available CPUs.
	WorkersAuto WorkersMode = iota
	// WorkersFixed uses a specific worker count.
	WorkersFixed
)

// WorkerSetting represents the workers configuration.
type WorkerSetting struct {
	Mode  WorkersMode
	Value int
}

// String returns the string representation of the worker setting.
func (w WorkerSetting) String() string {
	if w.Mode == WorkersAuto {
		return "auto"
	}
	return strconv.Itoa(w.Value)
}

// ServerConfig contains DNS listener settings.
type ServerConfig struct {
	Host string `yaml:"host" json:"host" env:"AXDNS_SERVER_HOST"`
	Port int    `yaml:"port" json:"port" env:"AXDNS_SERVER_PORT"`
	// Addresses overrides Host/Port with an explicit list of host:port
	// pairs; UDP and TCP are served on each.
	Addresses      []string      `yaml:"addresses" json:"addresses,omitempty" env:"AXDNS_SERVER_ADDRESSES"`
	Workers        WorkerSetting `yaml:"-" json:"-"`
	WorkersRaw     string        `yaml:"workers" json:"workers" env:"AXDNS_SERVER_WORKERS"`
	MaxConcurrency int           `yaml:"max_concurrency" json:"max_concurrency" env:"AXDNS_SERVER_MAX_CONCURRENCY"`
	EnableTCP      bool          `yaml:"enable_tcp" json:"enable_tcp" env:"AXDNS_SERVER_ENABLE_TCP"`
	QueryTimeout   time.Duration `yaml:"query_timeout" json:"query_timeout" env:"AXDNS_SERVER_QUERY_TIMEOUT"`
	// TCPIdleTimeout closes TCP connections that send nothing for this long.
	TCPIdleTimeout time.Duration `yaml:"tcp_idle_timeout" json:"tcp_idle_timeout" env:"AXDNS_SERVER_TCP_IDLE_TIMEOUT"`
	// TCPMaxConnsPerIP caps concurrent TCP connections from one source.
	TCPMaxConnsPerIP int `yaml:"tcp_max_conns_per_ip" json:"tcp_max_conns_per_ip" env:"AXDNS_SERVER_TCP_MAX_CONNS_PER_IP"`
}

// DatabaseConfig selects and tunes the record store.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "memory".
	Driver          string        `yaml:"driver" json:"driver" env:"AXDNS_DATABASE_DRIVER"`
	Path            string        `yaml:"path" json:"path" env:"AXDNS_DATABASE_PATH"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"AXDNS_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"AXDNS_DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"AXDNS_DATABASE_CONN_MAX_LIFETIME"`
	BusyTimeout     time.Duration `yaml:"busy_timeout" json:"busy_timeout" env:"AXDNS_DATABASE_BUSY_TIMEOUT"`
	// ResetOnStart clears every stored record before seeding.
	ResetOnStart bool `yaml:"reset_on_start" json:"reset_on_start" env:"AXDNS_DATABASE_RESET_ON_START"`
}

// CacheConfig sizes the lookup cache and the negative-lookup filter.
type CacheConfig struct {
	Size              int     `yaml:"size" json:"size" env:"AXDNS_CACHE_SIZE"`
	FalsePositiveRate float64 `yaml:"false_positive_rate" json:"false_positive_rate" env:"AXDNS_CACHE_FALSE_POSITIVE_RATE"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level" json:"level" env:"AXDNS_LOG_LEVEL"`
	Structured       bool              `yaml:"structured" json:"structured" env:"AXDNS_LOG_STRUCTURED"`
	StructuredFormat string            `yaml:"structured_format" json:"structured_format" env:"AXDNS_LOG_FORMAT"`
	IncludePID       bool              `yaml:"include_pid" json:"include_pid" env:"AXDNS_LOG_INCLUDE_PID"`
	ExtraFields      map[string]string `yaml:"extra_fields" json:"extra_fields,omitempty"`
}

// RateLimitConfig controls rate limiting settings.
type RateLimitConfig struct {
	// MaxIPEntries bounds the per-IP buckets; the least recently seen
	// source is evicted first (default: 65536)
	MaxIPEntries int `yaml:"max_ip_entries" json:"max_ip_entries" env:"AXDNS_RATE_LIMIT_MAX_IP_ENTRIES"`
	// MaxPrefixEntries is the maximum number of tracked prefixes (default: 16384)
	MaxPrefixEntries int `yaml:"max_prefix_entries" json:"max_prefix_entries" env:"AXDNS_RATE_LIMIT_MAX_PREFIX_ENTRIES"`
	// GlobalQPS is the server-wide queries per second limit (0 = disabled)
	GlobalQPS   float64 `yaml:"global_qps" json:"global_qps" env:"AXDNS_RATE_LIMIT_GLOBAL_QPS"`
	GlobalBurst int     `yaml:"global_burst" json:"global_burst" env:"AXDNS_RATE_LIMIT_GLOBAL_BURST"`
	// PrefixQPS is the per-prefix (/24 or /48) QPS limit (0 = disabled)
	PrefixQPS   float64 `yaml:"prefix_qps" json:"prefix_qps" env:"AXDNS_RATE_LIMIT_PREFIX_QPS"`
	PrefixBurst int     `yaml:"prefix_burst" json:"prefix_burst" env:"AXDNS_RATE_LIMIT_PREFIX_BURST"`
	// IPQPS is the per-IP QPS limit (0 = disabled)
	IPQPS   float64 `yaml:"ip_qps" json:"ip_qps" env:"AXDNS_RATE_LIMIT_IP_QPS"`
	IPBurst int     `yaml:"ip_burst" json:"ip_burst" env:"AXDNS_RATE_LIMIT_IP_BURST"`
}

// APIConfig contains management API settings.
//
// APIKey is a secret and is never returned by API endpoints.
type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"AXDNS_API_ENABLED"`
	Host    string `yaml:"host" json:"host" env:"AXDNS_API_HOST"`
	Port    int    `yaml:"port" json:"port" env:"AXDNS_API_PORT"`
	APIKey  string `yaml:"api_key" json:"-" env:"AXDNS_API_KEY"`
}

// RecordConfig is a record in presentation form, inserted at startup.
type RecordConfig struct {
	Name  string `yaml:"name" json:"name"`
	Type  string `yaml:"type" json:"type"`
	TTL   int32  `yaml:"ttl" json:"ttl"`
	Value string `yaml:"value" json:"value"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	API       APIConfig       `yaml:"api" json:"api"`
	Records   []RecordConfig  `yaml:"records" json:"records,omitempty"`

	// ZoneFiles lists master files, or directories of them, loaded after
	// Records at startup.
	ZoneFiles []string `yaml:"zone_files" json:"zone_files,omitempty" env:"AXDNS_ZONE_FILES"`
}
