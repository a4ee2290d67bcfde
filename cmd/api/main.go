package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/timetrack/internal/api"
	"example.com/timetrack/internal/auth"
	"example.com/timetrack/internal/config"
	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/logging"
	"example.com/timetrack/internal/outbox"
	persistence "example.com/timetrack/internal/persistence/postgres"
	httptransport "example.com/timetrack/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, "timetrack-api")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	settingsRepo := persistence.NewSettingsRepository(pool)
	auditRepo := persistence.NewAuditRepository(pool)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, logger.Named("outbox"), cfg.OutboxPollInterval, cfg.OutboxBatchSize)

	go dispatcher.Start(ctx)

	resolver := domain.NewSettingsResolver(settingsRepo)
	service := domain.NewService(repo, resolver, auditRepo, domain.SystemClock{}, logger)

	if cfg.AutoStopInterval > 0 {
		store := persistence.NewRepairStore(pool)
		go runAutoStopSweeper(ctx, service, store, logger, cfg.AutoStopInterval)
	}

	handler := api.NewHandler(service, resolver)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	requestLogger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}

	skipAuth := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
	}
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, skipAuth)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(requestLogger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("timetrack-api listening", zap.String("address", cfg.HTTPAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	dispatcher.Wait()
}

// runAutoStopSweeper periodically force-stops timers that ran past their
// tenant's auto-stop limit.
func runAutoStopSweeper(ctx context.Context, service *domain.Service, store *persistence.RepairStore, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tenants, err := store.TenantsWithRunning(ctx)
		if err != nil {
			logger.Error("auto-stop sweep failed", zap.Error(err))
			continue
		}
		for _, tenant := range tenants {
			stopped, err := service.AutoStopOverdue(ctx, tenant)
			if err != nil {
				logger.Error("auto-stop failed",
					zap.String("tenant_id", tenant), zap.Error(err))
				continue
			}
			if stopped > 0 {
				logger.Info("auto-stopped overdue timers",
					zap.String("tenant_id", tenant), zap.Int("stopped", stopped))
			}
		}
	}
}
