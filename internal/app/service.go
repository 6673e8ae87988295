// Package app wires the signal engine together and manages its lifecycle.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"trading-signalsv1/config"
	"trading-signalsv1/internal/api"
	"trading-signalsv1/internal/confluence"
	"trading-signalsv1/internal/engine"
	"trading-signalsv1/internal/marketdata/guard"
	"trading-signalsv1/internal/marketdata/provider"
	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/montecarlo"
	"trading-signalsv1/internal/pricecache"
	"trading-signalsv1/internal/scheduler"
	"trading-signalsv1/internal/signalcache"
	redisstore "trading-signalsv1/internal/store/redis"
	sqlitestore "trading-signalsv1/internal/store/sqlite"
	"trading-signalsv1/internal/stream"
)

// Service is the top-level orchestrator for the signal engine.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus

	gateway   *guard.Gateway
	prices    *pricecache.Cache
	signals   *signalcache.Cache
	scheduler *scheduler.Scheduler
	query     *engine.Service
	hub       *stream.Hub
	router    http.Handler

	store     *sqlitestore.Store
	publisher *redisstore.Publisher
}

// New builds every component from cfg. Optional stores that fail to open
// are logged and skipped.
func New(cfg *config.Config, log *slog.Logger) (*Service, error) {
	svc := &Service{
		cfg:      cfg,
		log:      log.With("component", "app"),
		registry: prometheus.NewRegistry(),
		signals:  signalcache.New(),
	}
	svc.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	svc.metrics = metrics.NewMetrics(svc.registry)
	svc.health = metrics.NewHealthStatus(cfg.Scheduler.Interval)

	upstream, err := provider.New(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	svc.gateway, err = guard.NewGateway(upstream, cfg.Guard, guard.WithMetrics(svc.metrics), guard.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	if cfg.SQLite.Enabled {
		svc.store = svc.openStore(cfg.SQLite.Path, log)
	}
	if cfg.Redis.Enabled {
		svc.publisher, err = redisstore.New(cfg.Redis.Config, svc.metrics, redisstore.WithLogger(log))
		if err != nil {
			svc.log.Warn("redis unavailable, continuing without snapshot publishing", "error", err)
			svc.publisher = nil
		} else {
			svc.health.RedisEnabled = true
		}
	}

	priceOpts := []pricecache.Option{pricecache.WithLogger(log)}
	if svc.store != nil {
		priceOpts = append(priceOpts, pricecache.WithStore(svc.store))
	}
	svc.prices, err = pricecache.New(cfg.PriceCache, priceOpts...)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("price cache: %w", err)
	}

	ce, err := confluence.NewEngine(cfg.Confluence, cfg.Indicators)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("confluence: %w", err)
	}
	sim, err := montecarlo.New(cfg.MonteCarlo)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("monte carlo: %w", err)
	}
	calc := engine.NewCalculator(ce, sim, svc.prices, cfg.Scheduler.Timeframes, svc.metrics)

	svc.scheduler, err = scheduler.New(cfg.Scheduler, svc.gateway, svc.prices, calc, svc.signals,
		scheduler.WithMetrics(svc.metrics),
		scheduler.WithHealth(svc.health),
		scheduler.WithLogger(log))
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	svc.query = engine.NewService(svc.signals, svc.gateway, sim, svc.metrics)
	svc.hub = stream.NewHub(svc.signals, svc.metrics, stream.WithLogger(log))
	svc.router = api.NewRouter(api.NewHandler(svc.query), api.Routes{
		Health:  svc.health,
		Metrics: metrics.Handler(svc.registry),
		Stream:  svc.hub,
	}, log)

	return svc, nil
}

func (svc *Service) openStore(path string, log *slog.Logger) *sqlitestore.Store {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			svc.log.Warn("sqlite directory not created, continuing without warm start", "path", path, "error", err)
			return nil
		}
	}
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: path, Logger: log})
	if err != nil {
		svc.log.Warn("sqlite init failed, continuing without warm start", "error", err)
		return nil
	}
	store.SetMetrics(svc.metrics)
	svc.health.SQLiteEnabled = true
	return store
}

// Handler returns the HTTP router.
func (svc *Service) Handler() http.Handler { return svc.router }

// Run warms the price cache, starts every subsystem and blocks until ctx is
// cancelled, then shuts down gracefully.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	svc.log.Info("starting signal engine",
		"provider", cfg.Provider.Name,
		"pairs", len(svc.scheduler.Pairs()),
		"interval", cfg.Scheduler.Interval,
		"redis", svc.publisher != nil,
		"sqlite", svc.store != nil)

	if svc.store != nil {
		n, err := engine.WarmStart(ctx, svc.store, svc.prices, svc.scheduler.Pairs(), cfg.PriceCache.HistorySize)
		if err != nil {
			svc.log.Warn("warm start incomplete", "error", err)
		}
		if n > 0 {
			svc.log.Info("warmed price cache from sqlite", "bars", n)
		}
	}

	ln, err := net.Listen("tcp", cfg.Service.HTTPAddr)
	if err != nil {
		svc.Close()
		return fmt.Errorf("listen %s: %w", cfg.Service.HTTPAddr, err)
	}
	srv := &http.Server{Handler: svc.router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)

	if svc.store != nil {
		g.Go(func() error {
			svc.store.Run(gctx)
			return nil
		})
	}
	if svc.publisher != nil {
		snaps, unsubscribe := svc.signals.Subscribe()
		g.Go(func() error {
			defer unsubscribe()
			svc.publisher.Run(gctx, snaps)
			return nil
		})
	}
	svc.health.StartLivenessChecker(gctx, svc.redisClient(), svc.sqlDB(), cfg.Service.HealthInterval)

	g.Go(func() error {
		svc.hub.Run(gctx)
		return nil
	})
	g.Go(func() error { return svc.scheduler.Run(gctx) })
	g.Go(func() error {
		svc.log.Info("http listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		svc.log.Info("shutdown signal received")
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	svc.Close()
	svc.log.Info("shutdown complete")
	return err
}

// RunCycle runs one scheduler cycle outside Run and returns the published
// snapshot, or nil when ctx ended first.
func (svc *Service) RunCycle(ctx context.Context) *signalcache.Snapshot {
	return svc.scheduler.RunOnce(ctx)
}

// Query exposes the read side for callers embedding the service.
func (svc *Service) Query() *engine.Service { return svc.query }

// Status returns the upstream rate limiter and breaker status.
func (svc *Service) Status() model.RateLimiterStatus { return svc.gateway.Status() }

func (svc *Service) redisClient() *goredis.Client {
	if svc.publisher == nil {
		return nil
	}
	return svc.publisher.Client()
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.store == nil {
		return nil
	}
	return svc.store.DB()
}

// Close releases the optional stores.
func (svc *Service) Close() {
	if svc.store != nil {
		if err := svc.store.Close(); err != nil {
			svc.log.Warn("sqlite close", "error", err)
		}
		svc.store = nil
	}
	if svc.publisher != nil {
		if err := svc.publisher.Close(); err != nil {
			svc.log.Warn("redis close", "error", err)
		}
		svc.publisher = nil
	}
}
