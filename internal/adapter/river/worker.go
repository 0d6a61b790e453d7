package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/stackhost/internal/app"
	"github.com/neomorfeo/stackhost/internal/domain"
)

// Activator brings a pending tenant's stack up.
type Activator interface {
	Activate(ctx context.Context, name string) (domain.Tenant, error)
}

// Backupper runs a previously requested backup.
type Backupper interface {
	Run(ctx context.Context, reference string) error
}

// Sweeper runs one expiry sweep pass.
type Sweeper interface {
	Sweep(ctx context.Context) (app.SweepSummary, error)
}

// EventWorker fans domain events out to the audit trail.
type EventWorker struct {
	river.WorkerDefaults[EventJobArgs]
	audit  domain.AuditLog
	logger *slog.Logger
}

func NewEventWorker(audit domain.AuditLog, logger *slog.Logger) *EventWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWorker{audit: audit, logger: logger}
}

// Work records one published event.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[EventJobArgs]) error {
	w.logger.InfoContext(ctx, "processing event",
		"event", job.Args.Event,
		"tenant", job.Args.Name,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return w.audit.Record(ctx, domain.AuditEntry{
		TenantName: job.Args.Name,
		Action:     "event_" + job.Args.Event,
		Details:    "status=" + job.Args.Status,
		Actor:      "system",
	})
}

// ActivateWorker performs the post-payment bring-up. The activation is
// re-entrant, so River's retries are safe.
type ActivateWorker struct {
	river.WorkerDefaults[ActivateJobArgs]
	activator Activator
	logger    *slog.Logger
}

func NewActivateWorker(activator Activator, logger *slog.Logger) *ActivateWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivateWorker{activator: activator, logger: logger}
}

func (w *ActivateWorker) Work(ctx context.Context, job *river.Job[ActivateJobArgs]) error {
	w.logger.InfoContext(ctx, "activating tenant", "tenant", job.Args.Name, "attempt", job.Attempt)
	_, err := w.activator.Activate(ctx, job.Args.Name)
	return err
}

// BackupWorker executes backup dumps off the request path.
type BackupWorker struct {
	river.WorkerDefaults[BackupJobArgs]
	backupper Backupper
	logger    *slog.Logger
}

func NewBackupWorker(backupper Backupper, logger *slog.Logger) *BackupWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupWorker{backupper: backupper, logger: logger}
}

func (w *BackupWorker) Work(ctx context.Context, job *river.Job[BackupJobArgs]) error {
	w.logger.InfoContext(ctx, "running backup", "reference", job.Args.Reference, "attempt", job.Attempt)
	return w.backupper.Run(ctx, job.Args.Reference)
}

// SweepWorker runs the expiry sweep on its periodic schedule.
type SweepWorker struct {
	river.WorkerDefaults[SweepJobArgs]
	sweeper Sweeper
	logger  *slog.Logger
}

func NewSweepWorker(sweeper Sweeper, logger *slog.Logger) *SweepWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepWorker{sweeper: sweeper, logger: logger}
}

func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepJobArgs]) error {
	summary, err := w.sweeper.Sweep(ctx)
	w.logger.InfoContext(ctx, "sweep pass finished",
		"expired_pending", summary.ExpiredPending,
		"deleted_due", summary.DeletedDue,
		"failures", summary.Failures,
		"job_id", job.ID,
	)
	return err
}
