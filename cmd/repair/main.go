// Command repair restores the single-running-timer invariant: it finds
// (tenant, user) pairs holding more than one running entry, keeps the most
// recently started one, and force-stops the rest with an audit trail.
//
// Run it before introducing the partial unique index on a store populated by
// an older version of the service, or after restoring from a backup taken
// mid-write. REPAIR_DRY_RUN=true reports without modifying anything.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"example.com/timetrack/internal/config"
	"example.com/timetrack/internal/domain"
	"example.com/timetrack/internal/logging"
	persistence "example.com/timetrack/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, "timetrack-repair")
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	store := persistence.NewRepairStore(pool)
	repairer := domain.NewRepairer(store, domain.SystemClock{}, logger, cfg.RepairDryRun)

	report, err := repairer.Run(ctx)
	if err != nil {
		logger.Error("repair pass failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("repair pass complete",
		zap.Bool("dry_run", cfg.RepairDryRun),
		zap.Int("groups", report.Groups),
		zap.Int("stopped", report.Stopped),
		zap.Int("audit_skipped", report.AuditSkipped),
		zap.Int("failed_groups", report.FailedGroups))

	if report.FailedGroups > 0 {
		os.Exit(1)
	}
}
