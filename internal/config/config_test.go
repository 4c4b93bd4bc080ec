package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWorkerSettingString(t *testing.T) {
	tests := []struct {
		name string
		ws   WorkerSetting
		want string
	}{
		{"auto mode", WorkerSetting{Mode: WorkersAuto}, "auto"},
		{"fixed mode 4", WorkerSetting{Mode: WorkersFixed, Value: 4}, "4"},
		{"fixed mode 0", WorkerSetting{Mode: WorkersFixed, Value: 0}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ws.String()
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ConfigPathEnv, tt.envValue)
			got := ResolveConfigPath(tt.flag)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 1053 {
		t.Errorf("expected port 1053, got %d", cfg.Server.Port)
	}
	if cfg.Server.Workers.Mode != WorkersAuto {
		t.Errorf("expected workers auto mode")
	}
	if !cfg.Server.EnableTCP {
		t.Error("expected EnableTCP true")
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 15 || cfg.Database.MaxIdleConns != 10 {
		t.Errorf("unexpected pool sizes: %d/%d", cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	}
	if cfg.Cache.Size != 100 {
		t.Errorf("expected cache size 100, got %d", cfg.Cache.Size)
	}
	if got := cfg.Server.BindAddresses(); len(got) != 1 || got[0] != "0.0.0.0:1053" {
		t.Errorf("unexpected bind addresses: %v", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 5353
  workers: "2"
  enable_tcp: false
  query_timeout: 750ms

database:
  driver: memory

cache:
  size: 64

logging:
  level: "debug"
  structured: true
  structured_format: "keyvalue"

records:
  - name: testing.xz.ax
    type: A
    ttl: 10
    value: 65.108.126.123
  - name: www.testing.xz.ax
    type: cname
    ttl: 10
    value: testing.xz.ax
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 5353 {
		t.Errorf("expected port 5353, got %d", cfg.Server.Port)
	}
	if cfg.Server.Workers.Mode != WorkersFixed || cfg.Server.Workers.Value != 2 {
		t.Errorf("expected 2 fixed workers, got %v", cfg.Server.Workers)
	}
	if cfg.Server.EnableTCP {
		t.Error("expected EnableTCP false")
	}
	if cfg.Server.QueryTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms query timeout, got %s", cfg.Server.QueryTimeout)
	}
	if cfg.Database.Driver != DriverMemory {
		t.Errorf("expected memory driver, got %q", cfg.Database.Driver)
	}
	if cfg.Cache.Size != 64 {
		t.Errorf("expected cache size 64, got %d", cfg.Cache.Size)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("expected level DEBUG, got %s", cfg.Logging.Level)
	}

	recs, err := cfg.SeedRecords()
	if err != nil {
		t.Fatalf("unexpected seed error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 seed records, got %d", len(recs))
	}
	if recs[1].Header().Name.String() != "www.testing.xz.ax" {
		t.Errorf("unexpected seed owner %s", recs[1].Header().Name)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 5353\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AXDNS_SERVER_PORT", "6363")
	t.Setenv("AXDNS_SERVER_ADDRESSES", "127.0.0.1:53,[::1]:53")
	t.Setenv("AXDNS_CACHE_SIZE", "7")
	t.Setenv("AXDNS_ZONE_FILES", "/etc/axdns/zones")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6363 {
		t.Errorf("expected env port 6363, got %d", cfg.Server.Port)
	}
	if got := cfg.Server.BindAddresses(); len(got) != 2 || got[1] != "[::1]:53" {
		t.Errorf("unexpected bind addresses: %v", got)
	}
	if cfg.Cache.Size != 7 {
		t.Errorf("expected cache size 7, got %d", cfg.Cache.Size)
	}
	if len(cfg.ZoneFiles) != 1 || cfg.ZoneFiles[0] != "/etc/axdns/zones" {
		t.Errorf("unexpected zone files: %v", cfg.ZoneFiles)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"bad address", func(c *Config) { c.Server.Addresses = []string{"no-port"} }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = " " }},
		{"empty pool", func(c *Config) { c.Database.MaxOpenConns = 0 }},
		{"cache size", func(c *Config) { c.Cache.Size = 0 }},
		{"loose filter", func(c *Config) { c.Cache.FalsePositiveRate = 0.01 }},
		{"api port", func(c *Config) { c.API.Enabled = true; c.API.Port = 0 }},
		{"bad record", func(c *Config) {
			c.Records = []RecordConfig{{Name: "a.example", Type: "MX", TTL: 1, Value: "x"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
