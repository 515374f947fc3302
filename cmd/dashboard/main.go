package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fallen/dashboard/internal/analytics"
	"fallen/dashboard/internal/app"
	"fallen/dashboard/internal/audit"
	"fallen/dashboard/internal/auth"
	"fallen/dashboard/internal/blob"
	"fallen/dashboard/internal/clan"
	"fallen/dashboard/internal/config"
	"fallen/dashboard/internal/dedupe"
	"fallen/dashboard/internal/logging"
	"fallen/dashboard/internal/members"
	"fallen/dashboard/internal/metrics"
	"fallen/dashboard/internal/outbox"
	"fallen/dashboard/internal/rbac"
	"fallen/dashboard/internal/store"
)

const poolStatsInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").WithError(err).Fatal("invalid configuration")
	}
	log := logging.New(cfg.LogLevel)
	if cfg.UsesDevSecret() {
		log.Warn("SECRET_KEY is not set; sessions are signed with the public development key")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	if err := store.EnsureSchema(ctx, db); err != nil {
		log.WithError(err).Fatal("schema setup failed")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	clock := quartz.NewReal()

	dataStore := store.NewPostgresStore(db, cfg.CommandTimeout)
	reader := blob.NewReader(dataStore, log, m)
	auditLog := audit.New(dataStore, log, m)

	// Idempotency keys need Redis; without it every request is enqueued.
	var guard outbox.Guard
	var redisPing app.Pinger
	if cfg.RedisURL != "" {
		redisGuard, err := dedupe.NewRedisGuard(cfg.RedisURL, cfg.IdempotencyTTL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer redisGuard.Close()
		guard = redisGuard
		redisPing = redisGuard
		log.Info("idempotency keys enabled")
	}

	service := app.NewService(app.Deps{
		Members:   members.NewService(reader),
		Analytics: analytics.NewService(reader, clock, log),
		Clan:      clan.NewService(dataStore, log, m),
		Outbox:    outbox.NewService(dataStore, guard, auditLog, log, m),
		Audit:     auditLog,
		Resolver:  rbac.NewResolver(cfg.AdminIDs, cfg.StaffRoleIDs, dataStore, log),
		Signer:    auth.NewSigner([]byte(cfg.SecretKey), cfg.SessionMaxAge, clock),
		Settings:  dataStore,
		Redis:     redisPing,
		Log:       log,
	})

	poolStats := clock.TickerFunc(ctx, poolStatsInterval, func() error {
		m.RecordPool(db.Stats())
		return nil
	}, "pool-stats")

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("Fallen dashboard listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server failed")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
	_ = poolStats.Wait()
}
