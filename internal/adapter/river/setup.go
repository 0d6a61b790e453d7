package river

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// Deps are the collaborators the background workers drive.
type Deps struct {
	Activator Activator
	Backupper Backupper
	Sweeper   Sweeper
	Audit     domain.AuditLog
	Logger    *slog.Logger

	// SweepInterval is how often the expiry sweep runs. Zero means
	// every five minutes.
	SweepInterval time.Duration
}

// Setup creates a River client with all workers registered and runs
// River's internal migrations. The caller must call client.Start() to
// begin processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, deps Deps) (*Client, error) {
	driver := riversqlite.New(db)

	// Run River's own migrations (creates river_job, river_leader, etc.).
	// These are separate from the app's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewEventWorker(deps.Audit, deps.Logger))
	river.AddWorker(workers, NewActivateWorker(deps.Activator, deps.Logger))
	river.AddWorker(workers, NewBackupWorker(deps.Backupper, deps.Logger))
	river.AddWorker(workers, NewSweepWorker(deps.Sweeper, deps.Logger))

	interval := deps.SweepInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(interval),
				func() (river.JobArgs, *river.InsertOpts) {
					return SweepJobArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
