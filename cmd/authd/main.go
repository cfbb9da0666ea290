// Command authd serves the authentication API.
//
// Configuration comes from AUTH_* environment variables and an optional YAML
// file named by AUTH_CONFIG_FILE. AUTH_JWT_SECRET is required.
//
// Without AUTH_POSTGRES_URL users are kept in memory. Without AUTH_REDIS_ADDR
// an embedded Redis is started; both are for local development only.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
	authsystem "github.com/neecatt/UserAuthSystem"
	"github.com/neecatt/UserAuthSystem/internal/audit"
	"github.com/neecatt/UserAuthSystem/internal/config"
	"github.com/neecatt/UserAuthSystem/internal/httpapi"
	"github.com/neecatt/UserAuthSystem/store/memory"
	"github.com/neecatt/UserAuthSystem/store/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, closeRedis, err := openRedis(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	engineMetrics, err := authsystem.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register engine metrics: %w", err)
	}
	httpMetrics, err := httpapi.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	engine, err := authsystem.New().
		WithConfig(cfg.Auth).
		WithStore(store).
		WithRedis(rdb).
		WithLogger(logger).
		WithMetrics(engineMetrics).
		WithAuditSink(audit.NewLogrusSink(logger.WithField("component", "audit"))).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	router := httpapi.New(engine,
		httpapi.WithLogger(logger.WithField("component", "http")),
		httpapi.WithMetrics(httpMetrics),
	).Router()
	if cfg.Server.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.WithField("audit_dropped", engine.AuditDropped()).Info("stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *logrus.Logger) (authsystem.CredentialStore, func(), error) {
	if cfg.PostgresURL == "" {
		logger.Warn("AUTH_POSTGRES_URL not set; users are kept in memory and lost on restart")
		return memory.New(), func() {}, nil
	}
	store, db, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("postgres store ready")
	return store, func() { _ = db.Close() }, nil
}

func openRedis(ctx context.Context, cfg config.StorageConfig, logger *logrus.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.RedisAddr
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		addr = mr.Addr()
		logger.WithField("addr", addr).Warn("AUTH_REDIS_ADDR not set; using embedded redis")
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	closeFn := func() {
		_ = rdb.Close()
		if mr != nil {
			mr.Close()
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, closeFn, nil
}
