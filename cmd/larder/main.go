package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/larder/pkg/accounts"
	"github.com/platinummonkey/larder/pkg/api"
	"github.com/platinummonkey/larder/pkg/audit"
	"github.com/platinummonkey/larder/pkg/auth"
	"github.com/platinummonkey/larder/pkg/avatar"
	"github.com/platinummonkey/larder/pkg/bootstrap"
	"github.com/platinummonkey/larder/pkg/config"
	"github.com/platinummonkey/larder/pkg/httputil"
	"github.com/platinummonkey/larder/pkg/identity"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/middleware"
	"github.com/platinummonkey/larder/pkg/observability"
	"github.com/platinummonkey/larder/pkg/ratelimit"
	"github.com/platinummonkey/larder/pkg/session"
)

var version = "dev"

func main() {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "larder: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	if otelProviders != nil {
		shutdown.Register("otel", otelProviders.Shutdown)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	store, db, err := openStore(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	if db != nil {
		shutdown.Register("database", func(context.Context) error { return db.Close() })
	}

	counter, redisClient, err := openCounter(cfg, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	if mc, ok := counter.(*ratelimit.MemoryCounter); ok {
		shutdown.Register("ratelimit-sweeper", mc.Stop)
	}

	limiters, err := ratelimit.NewRegistry(counter, cfg.RateLimit.Limiters, ratelimit.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to build rate limiters: %w", err)
	}

	secret, err := bootstrap.NewSharedSecret(cfg.Family.MasterKey, cfg.Family.MasterKeyHash, cfg.Family.MasterKeyCost)
	if err != nil {
		return fmt.Errorf("invalid family master key: %w", err)
	}
	tenants := bootstrap.NewGate(store, secret, cfg.Family.Name, logger)
	if _, err := tenants.EnsureTenant(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap family space: %w", err)
	}

	codec, err := auth.NewTokenCodec(cfg.Session.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}
	sessions := session.NewCookieStore(cfg.Session.CookieName, cfg.IsProduction())

	avatars, err := openAvatars(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}

	resolver := identity.NewResolver(sessions, codec, store,
		identity.WithTimeout(cfg.Store.Timeout),
		identity.WithAvatars(avatars),
		identity.WithLogger(logger),
		identity.WithMetrics(metrics),
	)

	trail, err := openAudit(cfg, logger)
	if err != nil {
		return err
	}
	shutdown.Register("audit", func(context.Context) error { return trail.Close() })

	proxies, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}

	svc := accounts.NewService(store, tenants, codec,
		accounts.WithPasswordCost(cfg.Session.PasswordCost),
		accounts.WithAvatars(avatars),
		accounts.WithLogger(logger),
		accounts.WithMetrics(metrics),
	)

	server := api.NewServer(api.Deps{
		Accounts: svc,
		Store:    store,
		Sessions: sessions,
		Gate:     middleware.NewGate(resolver, logger, metrics),
		Throttle: middleware.NewThrottle(cfg.RateLimit.FailOpen, logger),
		Limiters: limiters,
		Avatars:  avatars,
		Audit:    trail,
		Logger:   logger,
		Metrics:  metrics,
		Registry: metricsRegistry(cfg, registry),
		Health:   observability.NewHealthChecker(db, redisClient, version),

		TrustedProxies: proxies,
	})

	var handler http.Handler = server.Handler()
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "larder")
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	// Registered last so it stops first
	shutdown.Register("http", httpServer.Shutdown)

	errCh := make(chan error, 1)
	go func() {
		defer observability.RecoverPanic(logger, "http server")
		logger.WithFields(map[string]interface{}{
			"addr":        cfg.Addr(),
			"environment": cfg.Environment,
			"store":       cfg.Store.Driver,
			"ratelimit":   cfg.RateLimit.Backend,
		}).Info("Starting larder server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = shutdown.Shutdown(context.Background())
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	return shutdown.Shutdown(context.Background())
}

func openStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (membership.Store, *sql.DB, error) {
	if cfg.Store.Driver == "memory" {
		return membership.NewMemoryStore(), nil, nil
	}

	dialect, err := membership.ParseDialect(cfg.Store.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := membership.Open(dialect, cfg.Store.DatabaseURL, membership.PoolConfig{
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	if err := membership.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate %s store: %w", cfg.Store.Driver, err)
	}
	return membership.NewSQLStore(db, dialect, membership.WithMetrics(metrics)), db, nil
}

func openCounter(cfg *config.Config, logger *observability.Logger) (ratelimit.Counter, *redis.Client, error) {
	if cfg.RateLimit.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisURL,
			Password: cfg.RateLimit.RedisPassword,
		})
		return ratelimit.NewRedisCounter(client, cfg.RateLimit.Prefix), client, nil
	}

	if cfg.IsProduction() {
		logger.Warn("Using in-process rate limit counters; limits are per instance")
	}
	counter := ratelimit.NewMemoryCounter()
	if err := counter.StartSweeper(cfg.RateLimit.SweepSchedule); err != nil {
		return nil, nil, fmt.Errorf("failed to start rate limit sweeper: %w", err)
	}
	return counter, nil, nil
}

func openAvatars(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *observability.Logger) (avatar.Resolver, error) {
	if cfg.Avatar.Bucket == "" {
		logger.Debug("Avatar bucket not configured, serving stored avatar references")
		return avatar.Passthrough{}, nil
	}
	presigner, err := avatar.NewS3Presigner(ctx, avatar.Config{
		Bucket:       cfg.Avatar.Bucket,
		Region:       cfg.Avatar.Region,
		Endpoint:     cfg.Avatar.Endpoint,
		AccessKey:    cfg.Avatar.AccessKey,
		SecretKey:    cfg.Avatar.SecretKey,
		UsePathStyle: cfg.Avatar.UsePathStyle,
		URLTTL:       cfg.Avatar.URLTTL,
	}, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create avatar presigner: %w", err)
	}
	return presigner, nil
}

func openAudit(cfg *config.Config, logger *observability.Logger) (audit.Logger, error) {
	structured := audit.NewStructuredLogger(logger)
	if cfg.Audit.Dir == "" {
		return structured, nil
	}
	file, err := audit.NewFileLogger(audit.FileLoggerConfig{
		BasePath: cfg.Audit.Dir,
		Rotate:   true,
		MaxSize:  cfg.Audit.MaxSize,
		MaxFiles: cfg.Audit.MaxFiles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return audit.NewMultiLogger(file, structured), nil
}

func metricsRegistry(cfg *config.Config, registry *prometheus.Registry) *prometheus.Registry {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}
	return registry
}
