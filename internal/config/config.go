// Package config provides configuration loading and validation for axdns.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then AXDNS_* environment variables. The result is validated and
// normalized before use.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/xzax/axdns/internal/bloom"
	"github.com/xzax/axdns/internal/dns"
)

// ConfigPathEnv names the environment variable consulted when no
// -config flag is given.
const ConfigPathEnv = "AXDNS_CONFIG"

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             1053,
			WorkersRaw:       "auto",
			MaxConcurrency:   1024,
			EnableTCP:        true,
			QueryTimeout:     2 * time.Second,
			TCPIdleTimeout:   30 * time.Second,
			TCPMaxConnsPerIP: 10,
		},
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "axdns.db",
			MaxOpenConns:    15,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			BusyTimeout:     5 * time.Second,
		},
		Cache: CacheConfig{
			Size:              100,
			FalsePositiveRate: bloom.DefaultFalsePositiveRate,
		},
		Logging: LoggingConfig{
			Level:            "INFO",
			StructuredFormat: "json",
		},
		RateLimit: RateLimitConfig{
			MaxIPEntries:     65536,
			MaxPrefixEntries: 16384,
			GlobalQPS:        100000,
			GlobalBurst:      100000,
			PrefixQPS:        10000,
			PrefixBurst:      20000,
			IPQPS:            3000,
			IPBurst:          6000,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}

// ResolveConfigPath returns the flag value if set, otherwise $AXDNS_CONFIG.
func ResolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(ConfigPathEnv))
}

// Load builds a validated Config from defaults, the YAML file at path (if
// non-empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates and normalizes the configuration.
func (cfg *Config) Validate() error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("server.port must be 1..65535")
	}
	for _, addr := range cfg.Server.Addresses {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("server.addresses: %q is not host:port: %w", addr, err)
		}
	}
	if cfg.Server.MaxConcurrency <= 0 {
		cfg.Server.MaxConcurrency = 1024
	}
	if cfg.Server.QueryTimeout <= 0 {
		cfg.Server.QueryTimeout = 2 * time.Second
	}
	if cfg.Server.TCPIdleTimeout <= 0 {
		cfg.Server.TCPIdleTimeout = 30 * time.Second
	}
	cfg.Server.Workers = parseWorkers(cfg.Server.WorkersRaw)

	if err := cfg.Database.validate(); err != nil {
		return err
	}

	if cfg.Cache.Size <= 0 {
		return errors.New("cache.size must be positive")
	}
	if cfg.Cache.FalsePositiveRate <= 0 {
		cfg.Cache.FalsePositiveRate = bloom.DefaultFalsePositiveRate
	}
	if cfg.Cache.FalsePositiveRate > bloom.MaxFalsePositiveRate {
		return fmt.Errorf("cache.false_positive_rate must be at most %g", bloom.MaxFalsePositiveRate)
	}

	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	// Normalize management API
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	if _, err := cfg.SeedRecords(); err != nil {
		return err
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	switch d.Driver {
	case "", DriverSQLite:
		d.Driver = DriverSQLite
		if strings.TrimSpace(d.Path) == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, d.Driver)
	}
	if d.MaxOpenConns <= 0 {
		return errors.New("database.max_open_conns must be positive")
	}
	if d.MaxIdleConns < 0 || d.MaxIdleConns > d.MaxOpenConns {
		d.MaxIdleConns = d.MaxOpenConns
	}
	if d.BusyTimeout <= 0 {
		d.BusyTimeout = 5 * time.Second
	}
	return nil
}

// BindAddresses returns every host:port the DNS listeners should bind.
func (s ServerConfig) BindAddresses() []string {
	if len(s.Addresses) > 0 {
		return s.Addresses
	}
	return []string{net.JoinHostPort(s.Host, strconv.Itoa(s.Port))}
}

// SeedRecords converts the configured records to their typed form.
func (cfg *Config) SeedRecords() ([]dns.Record, error) {
	out := make([]dns.Record, 0, len(cfg.Records))
	for i, rc := range cfg.Records {
		rt, err := dns.ParseRecordType(rc.Type)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		r, err := dns.NewRecordFromText(rc.Name, rt, rc.TTL, rc.Value)
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// parseWorkers converts the workers string to WorkerSetting.
func parseWorkers(raw string) WorkerSetting {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" || raw == "auto" {
		return WorkerSetting{Mode: WorkersAuto}
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return WorkerSetting{Mode: WorkersFixed, Value: n}
	}
	return WorkerSetting{Mode: WorkersAuto}
}
