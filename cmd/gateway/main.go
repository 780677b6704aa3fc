package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/chat-gateway/internal/auth"
	"github.com/af-corp/chat-gateway/internal/config"
	"github.com/af-corp/chat-gateway/internal/gateway"
	"github.com/af-corp/chat-gateway/internal/origin"
	"github.com/af-corp/chat-gateway/internal/policy"
	"github.com/af-corp/chat-gateway/internal/prompt"
	"github.com/af-corp/chat-gateway/internal/ratelimit"
	"github.com/af-corp/chat-gateway/internal/router"
	"github.com/af-corp/chat-gateway/internal/telemetry"
	"github.com/af-corp/chat-gateway/internal/tools"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	bootLogger := telemetry.NewLogger(os.Stdout, "info", "json")
	loader := config.NewLoader(*configDir, bootLogger)
	if err := loader.Load(); err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger := telemetry.NewLogger(os.Stdout, cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat)
	slog.SetDefault(logger)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if err := loader.Watch(watchCtx); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// PostgreSQL is optional; without it Redis holds the credentials.
	var dbPool *pgxpool.Pool
	if cfg.Database.Enabled() {
		pool, err := connectDB(cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (authenticated requests will fail)", "error", err)
		} else {
			logger.Info("database connected")
		}
		dbPool = pool
	}

	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limiting fails open)", "error", err)
		} else {
			logger.Info("redis connected")
		}
		defer rdb.Close()
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	resolvers := router.NewTable(nil)
	if err := resolvers.Rebuild(loader.Models(), loader.Providers()); err != nil {
		logger.Error("failed to build model resolver", "error", err)
		os.Exit(1)
	}

	evaluator := policy.NewEvaluator(func() config.PolicyConfig { return loader.Config().Policy })
	if evaluator.Enabled() {
		if err := evaluator.Load(context.Background()); err != nil {
			logger.Error("failed to load policies", "error", err)
			os.Exit(1)
		}
	}

	registry, err := tools.NewDefaultRegistry(time.Now)
	if err != nil {
		logger.Error("failed to build tool registry", "error", err)
		os.Exit(1)
	}

	var counter ratelimit.Counter
	if rdb != nil {
		counter = ratelimit.NewRedisCounter(rdb)
	}
	limiter := ratelimit.NewLimiter(counter, cfg.RateLimit)
	gatekeeper := origin.NewGatekeeper(cfg.CORS).WithMetrics(metrics)
	store := auth.NewCachedCredentialStore(dbPool, rdb, cfg.Auth.CacheTTL)
	validator := auth.NewValidator(store, cfg.Auth.GracePeriod)

	loader.OnReload(func() {
		next := loader.Config()
		gatekeeper.Update(next.CORS)
		limiter.Update(next.RateLimit)
		if err := resolvers.Rebuild(loader.Models(), loader.Providers()); err != nil {
			logger.Error("model table reload failed, keeping previous", "error", err)
		} else {
			logger.Info("model table reloaded", "models", len(resolvers.Load().Models()))
		}
		if evaluator.Enabled() {
			if err := evaluator.Load(context.Background()); err != nil {
				logger.Error("policy reload failed, keeping previous", "error", err)
			}
		}
	})

	handler := gateway.NewHandler(gateway.Deps{
		Config:     loader.Config,
		Resolvers:  resolvers,
		Health:     router.NewHealthTracker(cfg.Routing.CircuitBreaker),
		Limiter:    limiter,
		Policy:     evaluator,
		Prompts:    prompt.NewAssembler(),
		Dispatcher: tools.NewDispatcher(registry, metrics),
		Metrics:    metrics,
		Version:    version,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      gateway.NewRouter(handler, gatekeeper, validator),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	var metricsSrv *http.Server
	if cfg.Telemetry.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting",
			"addr", addr,
			"version", version,
			"default_model", resolvers.Load().Default(),
			"tools", len(registry.Names()),
		)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if metricsSrv != nil {
		metricsSrv.Shutdown(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func connectDB(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	return pgxpool.NewWithConfig(context.Background(), poolCfg)
}
