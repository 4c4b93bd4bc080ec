package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/xzax/axdns/internal/api"
	"github.com/xzax/axdns/internal/config"
	"github.com/xzax/axdns/internal/logging"
	"github.com/xzax/axdns/internal/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML configuration file (or set AXDNS_CONFIG)")
		host       = flag.String("host", "", "Override bind host")
		port       = flag.Int("port", 0, "Override bind port")
		workers    = flag.Int("workers", -1, "Clamp GOMAXPROCS (can only reduce; -1 means default/auto)")
		noTCP      = flag.Bool("no-tcp", false, "Disable TCP server")
		noAPI      = flag.Bool("no-api", false, "Disable the management API")
		memory     = flag.Bool("memory", false, "Keep records in memory instead of SQLite")
		jsonLogs   = flag.Bool("json-logs", false, "Enable JSON structured logging")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(config.ResolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *host != "" {
		cfg.Server.Host = *host
		cfg.Server.Addresses = nil
	}
	if *port != 0 {
		cfg.Server.Port = *port
		cfg.Server.Addresses = nil
	}
	if *workers >= 0 {
		cfg.Server.Workers = config.WorkerSetting{Mode: config.WorkersFixed, Value: *workers}
	}
	if *noTCP {
		cfg.Server.EnableTCP = false
	}
	if *noAPI {
		cfg.API.Enabled = false
	}
	if *memory {
		cfg.Database.Driver = config.DriverMemory
	}
	if *jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if *debug {
		cfg.Logging.Level = "DEBUG"
	}

	logger := logging.Configure(logging.FromConfig(cfg.Logging))
	logger.Info("axdns starting",
		"addresses", cfg.Server.BindAddresses(),
		"workers", cfg.Server.Workers.String(),
		"tcp", cfg.Server.EnableTCP,
		"store", cfg.Database.Driver,
		"seed_records", len(cfg.Records),
	)

	runner := server.NewRunner(logger)
	if cfg.API.Enabled {
		runner.AddService("api", func(ctx context.Context, env *server.Env) error {
			return api.New(cfg, env, logger).Run(ctx)
		})
	}
	if err := runner.Run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "server exited with error: %v\n", err)
		os.Exit(1)
	}
}
