//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"example.com/timetrack/internal/domain"
)

const (
	initMigration  = "../../../db/postgres/migrations/0001_init.up.sql"
	indexMigration = "../../../db/postgres/migrations/0002_running_timer_unique.up.sql"
)

func TestRepositoryRespectsTenantIsolation(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx, initMigration, indexMigration)

	repo := NewRepository(pool)

	entry := runningEntry(uuid.NewString(), uuid.NewString(), time.Now().UTC())
	require.NoError(t, repo.CreateRunning(ctx, entry))

	stored, err := repo.Get(ctx, entry.TenantID, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, entry.ID, stored.ID)
	require.True(t, stored.IsRunning)

	storedOther, err := repo.Get(ctx, uuid.NewString(), entry.ID)
	require.NoError(t, err)
	require.Nil(t, storedOther, "cross-tenant read must come back empty")
}

func TestConcurrentTimerStartsSingleWinner(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx, initMigration, indexMigration)

	repo := NewRepository(pool)

	tenantID := uuid.NewString()
	userID := uuid.NewString()
	start := time.Now().UTC()

	const attempts = 8
	results := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = repo.CreateRunning(ctx, runningEntry(tenantID, userID, start))
		}(i)
	}
	wg.Wait()

	successes := 0
	conflicts := 0
	var winnerID string
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		var conflict *domain.ConflictError
		require.ErrorAs(t, err, &conflict, "every failure must be a typed conflict")
		conflicts++
		if conflict.RunningEntryID != "" {
			winnerID = conflict.RunningEntryID
		}
	}

	require.Equal(t, 1, successes, "exactly one start must win")
	require.Equal(t, attempts-1, conflicts)

	running, err := repo.FindRunning(ctx, tenantID, userID)
	require.NoError(t, err)
	require.NotNil(t, running)
	if winnerID != "" {
		require.Equal(t, running.ID, winnerID, "conflicts must name the winning entry")
	}
}

func TestUpdateRunningAppliesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx, initMigration, indexMigration)

	repo := NewRepository(pool)

	entry := runningEntry(uuid.NewString(), uuid.NewString(), time.Now().UTC().Add(-time.Hour))
	require.NoError(t, repo.CreateRunning(ctx, entry))

	end := time.Now().UTC()
	finalized := entry
	finalized.EndTime = &end
	finalized.IsRunning = false
	finalized.DurationMin = 60
	finalized.RoundedDurationMin = 60
	finalized.UpdatedAt = end

	require.NoError(t, repo.UpdateRunning(ctx, finalized))

	// The losing stop of a race sees the row already finalized.
	err := repo.UpdateRunning(ctx, finalized)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)

	stored, err := repo.Get(ctx, entry.TenantID, entry.ID)
	require.NoError(t, err)
	require.False(t, stored.IsRunning)
	require.NotNil(t, stored.EndTime)
}

func TestRepairStopsDuplicateRunningTimers(t *testing.T) {
	ctx := context.Background()
	// No unique index yet: this mirrors a store populated before the
	// invariant was enforced.
	pool := setupDatabase(t, ctx, initMigration)

	repo := NewRepository(pool)

	tenantID := uuid.NewString()
	userID := uuid.NewString()
	base := time.Now().UTC().Add(-2 * time.Hour)

	older := runningEntry(tenantID, userID, base)
	newer := runningEntry(tenantID, userID, base.Add(30*time.Minute))
	require.NoError(t, repo.CreateRunning(ctx, older))
	require.NoError(t, repo.CreateRunning(ctx, newer))

	store := NewRepairStore(pool)
	repairer := domain.NewRepairer(store, domain.SystemClock{}, zap.NewNop(), false)

	report, err := repairer.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Groups)
	require.Equal(t, 1, report.Stopped)
	require.Zero(t, report.AuditSkipped)
	require.Zero(t, report.FailedGroups)

	survivor, err := repo.Get(ctx, tenantID, newer.ID)
	require.NoError(t, err)
	require.NotNil(t, survivor)
	require.True(t, survivor.IsRunning, "latest start must keep running")

	stopped, err := repo.Get(ctx, tenantID, older.ID)
	require.NoError(t, err)
	require.NotNil(t, stopped)
	require.False(t, stopped.IsRunning)
	require.NotNil(t, stopped.EndTime)

	audits := NewAuditRepository(pool)
	records, err := audits.ListByEntity(ctx, tenantID, "time_entry", older.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "repair_force_stop", records[0].Action)
	require.Equal(t, domain.SystemActorRepair, records[0].ActorID)

	// With the store repaired the unique index applies cleanly.
	applyMigration(t, ctx, pool, indexMigration)

	err = repo.CreateRunning(ctx, runningEntry(tenantID, userID, time.Now().UTC()))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, newer.ID, conflict.RunningEntryID)
}

func TestSettingsUpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx, initMigration, indexMigration)

	repo := NewSettingsRepository(pool)
	tenantID := uuid.NewString()

	missing, err := repo.Get(ctx, tenantID)
	require.NoError(t, err)
	require.Nil(t, missing)

	settings := domain.DefaultSettings(tenantID)
	settings.RoundingMethod = domain.RoundingNearest
	settings.RoundingIntervalMin = 6
	settings.RequireApproval = true
	require.NoError(t, repo.Upsert(ctx, settings))

	stored, err := repo.Get(ctx, tenantID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, domain.RoundingNearest, stored.RoundingMethod)
	require.Equal(t, 6, stored.RoundingIntervalMin)
	require.True(t, stored.RequireApproval)

	stored.RoundingIntervalMin = 15
	require.NoError(t, repo.Upsert(ctx, *stored))

	updated, err := repo.Get(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 15, updated.RoundingIntervalMin)
}

func runningEntry(tenantID, userID string, start time.Time) domain.TimeEntry {
	return domain.TimeEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		Description: "integration",
		StartTime:   start,
		IsRunning:   true,
		Currency:    "USD",
		Status:      domain.StatusDraft,
		IsActive:    true,
		CreatedAt:   start,
		UpdatedAt:   start,
	}
}

func setupDatabase(t *testing.T, ctx context.Context, migrations ...string) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("timetrack"),
		postgrescontainer.WithUsername("timetrack"),
		postgrescontainer.WithPassword("timetrack"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	for _, rel := range migrations {
		applyMigration(t, ctx, pool, rel)
	}
	return pool
}

func applyMigration(t *testing.T, ctx context.Context, pool *pgxpool.Pool, rel string) {
	t.Helper()

	contents, err := os.ReadFile(resolvePath(t, rel))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
