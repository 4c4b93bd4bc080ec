package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/xzax/axdns/internal/config"
	"github.com/xzax/axdns/internal/database"
	"github.com/xzax/axdns/internal/repository"
	"github.com/xzax/axdns/internal/resolvers"
	"github.com/xzax/axdns/internal/zone"
)

// Env is what the runner builds and shares with its services: the record
// repository behind its cache and filter, the query statistics and the
// metrics registry.
type Env struct {
	Config   *config.Config
	Records  *repository.Layered
	Stats    *DNSStats
	Registry *prometheus.Registry
	Logger   *slog.Logger

	health func(context.Context) error
}

// Health reports whether the backing store is reachable.
func (e *Env) Health(ctx context.Context) error {
	if e.health == nil {
		return nil
	}
	return e.health(ctx)
}

// Service is a long-running component started next to the DNS listeners.
// It must return when ctx is cancelled.
type Service func(ctx context.Context, env *Env) error

// Runner orchestrates the DNS server startup, configuration, and shutdown.
type Runner struct {
	logger   *slog.Logger
	services []namedService
}

type namedService struct {
	name string
	run  Service
}

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{logger: logger}
}

// AddService registers a service to run alongside the listeners, such as
// the management API.
func (r *Runner) AddService(name string, run Service) {
	r.services = append(r.services, namedService{name: name, run: run})
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return r.RunWithContext(ctx, cfg)
}

// RunWithContext starts the server and blocks until ctx is cancelled or a
// listener or service fails.
//
// Startup order:
//  1. Configure runtime (GOMAXPROCS from the workers setting)
//  2. Open the record store and put the cache and filter in front of it
//  3. Seed configured records, clearing the store first if asked
//  4. Start UDP and TCP on every bind address, plus registered services
//
// All listeners and services share one errgroup; the first failure
// cancels the rest.
func (r *Runner) RunWithContext(ctx context.Context, cfg *config.Config) error {
	procs := r.configureRuntime(cfg)

	env, err := r.buildEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Records.Close(); err != nil {
			r.logger.Warn("failed to close record store", "err", err)
		}
	}()

	if err := r.seed(ctx, cfg, env.Records); err != nil {
		return err
	}

	h := &QueryHandler{
		Logger:   r.logger,
		Resolver: resolvers.NewAuthoritative(env.Records, r.logger),
		Timeout:  cfg.Server.QueryTimeout,
		Stats:    env.Stats,
		Metrics:  NewMetrics(env.Registry),
	}
	defer h.Resolver.Close()

	limits := rateLimitSettings(cfg.RateLimit)
	limiter := NewRateLimiter(limits)
	maxConc := r.calculateMaxConcurrency(cfg, procs)

	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range cfg.Server.BindAddresses() {
		udp := &UDPServer{Logger: r.logger, Handler: h, Limiter: limiter, MaxConcurrency: maxConc}
		g.Go(func() error {
			if err := udp.Run(gctx, addr); err != nil {
				return fmt.Errorf("udp %s: %w", addr, err)
			}
			return nil
		})
		if cfg.Server.EnableTCP {
			tcp := &TCPServer{
				Logger:        r.logger,
				Handler:       h,
				IdleTimeout:   cfg.Server.TCPIdleTimeout,
				MaxConnsPerIP: cfg.Server.TCPMaxConnsPerIP,
			}
			g.Go(func() error {
				if err := tcp.Run(gctx, addr); err != nil {
					return fmt.Errorf("tcp %s: %w", addr, err)
				}
				return nil
			})
		}
		r.logger.Info("dns listening",
			"addr", addr,
			"udp", true,
			"tcp", cfg.Server.EnableTCP,
			"max_concurrency", maxConc,
		)
	}
	r.logger.Info("rate limits", "effective", FormatRateLimitsLog(limits))

	for _, svc := range r.services {
		g.Go(func() error {
			if err := svc.run(gctx, env); err != nil {
				return fmt.Errorf("%s: %w", svc.name, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// buildEnv opens the configured store and wraps it as Filtered(Caching(store)).
func (r *Runner) buildEnv(ctx context.Context, cfg *config.Config) (*Env, error) {
	env := &Env{
		Config:   cfg,
		Stats:    NewDNSStats(),
		Registry: prometheus.NewRegistry(),
		Logger:   r.logger,
	}

	var store repository.Repository
	switch cfg.Database.Driver {
	case config.DriverMemory:
		store = repository.NewMemory()
	default:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		env.health = db.Health
		store = database.NewRecords(db)
		r.logger.Info("record store opened", "driver", cfg.Database.Driver, "path", db.Path())
	}

	layered, err := repository.NewLayered(ctx, store, repository.Options{
		CacheSize:         cfg.Cache.Size,
		FalsePositiveRate: cfg.Cache.FalsePositiveRate,
		Logger:            r.logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	env.Records = layered

	env.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registerStoreMetrics(env.Registry, layered)
	return env, nil
}

// seed inserts the configured records through the full stack so the
// filter learns their names.
func (r *Runner) seed(ctx context.Context, cfg *config.Config, records repository.Repository) error {
	if cfg.Database.ResetOnStart {
		if err := records.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear record store: %w", err)
		}
		r.logger.Info("record store cleared")
	}
	seeds, err := cfg.SeedRecords()
	if err != nil {
		return err
	}
	for _, rec := range seeds {
		if err := records.Insert(ctx, rec); err != nil {
			return fmt.Errorf("failed to seed %s: %w", rec.Header().Name, err)
		}
	}
	if len(seeds) > 0 {
		r.logger.Info("seeded records", "count", len(seeds))
	}

	for _, path := range cfg.ZoneFiles {
		files, err := zone.Files(path)
		if err != nil {
			return fmt.Errorf("zone files %s: %w", path, err)
		}
		for _, file := range files {
			z, err := zone.LoadFile(file)
			if err != nil {
				return err
			}
			for _, rec := range z.Records {
				if err := records.Insert(ctx, rec); err != nil {
					return fmt.Errorf("failed to load %s from %s: %w", rec.Header().Name, file, err)
				}
			}
			r.logger.Info("zone loaded",
				"file", file,
				"origin", z.Origin.String(),
				"records", len(z.Records),
				"skipped", z.Skipped,
			)
		}
	}
	return nil
}

// configureRuntime sets GOMAXPROCS based on worker configuration.
// Workers can reduce but never increase parallelism beyond the default.
func (r *Runner) configureRuntime(cfg *config.Config) int {
	base := max(runtime.GOMAXPROCS(0), 1)
	desired := base
	if cfg.Server.Workers.Mode == config.WorkersFixed {
		desired = min(max(cfg.Server.Workers.Value, 1), base)
	}
	prev := runtime.GOMAXPROCS(desired)
	actual := runtime.GOMAXPROCS(0)
	r.logger.Info("runtime", "gomaxprocs", actual, "prev", prev, "base", base)
	return actual
}

// calculateMaxConcurrency determines the maximum concurrent UDP handlers.
func (r *Runner) calculateMaxConcurrency(cfg *config.Config, procs int) int {
	if cfg.Server.MaxConcurrency > 0 {
		return cfg.Server.MaxConcurrency
	}
	return max(min(max(procs, 1)*256, 2048), 1)
}

func rateLimitSettings(c config.RateLimitConfig) RateLimitSettings {
	return RateLimitSettings{
		MaxIPEntries:     c.MaxIPEntries,
		MaxPrefixEntries: c.MaxPrefixEntries,
		GlobalQPS:        c.GlobalQPS,
		GlobalBurst:      c.GlobalBurst,
		PrefixQPS:        c.PrefixQPS,
		PrefixBurst:      c.PrefixBurst,
		IPQPS:            c.IPQPS,
		IPBurst:          c.IPBurst,
	}
}

// registerStoreMetrics exposes cache and filter counters read at scrape time.
func registerStoreMetrics(reg prometheus.Registerer, l *repository.Layered) {
	reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "cache_hits_total",
			Help: "Lookups answered from the record cache",
		}, func() float64 { return float64(l.Cache.Stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "cache_misses_total",
			Help: "Lookups that went to the record store",
		}, func() float64 { return float64(l.Cache.Stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "cache_entries",
			Help: "Record sets and alias chains currently cached",
		}, func() float64 {
			st := l.Cache.Stats()
			return float64(st.RecordEntries + st.ChainEntries)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "filter_rejections_total",
			Help: "Lookups the negative-lookup filter answered without the store",
		}, func() float64 { return float64(l.Stats().Rejected) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "filter_names",
			Help: "Owner names added to the negative-lookup filter",
		}, func() float64 { return float64(l.Stats().Names) }),
	)
}
