package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// BackupRunner dumps tenant databases and tracks the run records.
type BackupRunner struct {
	repo    domain.TenantRepository
	backups domain.BackupRepository
	dumper  domain.DatabaseDumper
	dir     string
	logger  *slog.Logger
	now     func() time.Time
}

func NewBackupRunner(repo domain.TenantRepository, backups domain.BackupRepository, dumper domain.DatabaseDumper, dir string, logger *slog.Logger) *BackupRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupRunner{
		repo:    repo,
		backups: backups,
		dumper:  dumper,
		dir:     dir,
		logger:  logger,
		now:     time.Now,
	}
}

// Request records a pending backup and returns its reference. The dump
// itself runs later on a worker.
func (r *BackupRunner) Request(ctx context.Context, tenantName, kind string) (domain.Backup, error) {
	if _, err := r.repo.GetByName(ctx, tenantName); err != nil {
		return domain.Backup{}, err
	}
	b := domain.Backup{
		Reference:  uuid.NewString(),
		TenantName: tenantName,
		Kind:       kind,
		Status:     "pending",
		CreatedAt:  r.now().UTC(),
	}
	if err := r.backups.Record(ctx, b); err != nil {
		return domain.Backup{}, fmt.Errorf("recording backup request: %w", err)
	}
	return b, nil
}

// Run executes a previously requested backup. The record ends in
// "completed" or "failed"; a failed dump never leaves a partial file
// behind.
func (r *BackupRunner) Run(ctx context.Context, reference string) error {
	b, err := r.backups.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	t, err := r.repo.GetByName(ctx, b.TenantName)
	if err != nil {
		return r.markFailed(ctx, b, err)
	}

	b.Filename = fmt.Sprintf("%s_%s_%s.dump", t.Name, b.Kind, r.now().UTC().Format("20060102_150405"))
	destPath := filepath.Join(r.dir, t.Name, b.Filename)

	if err := r.dumper.Dump(ctx, t, destPath); err != nil {
		os.Remove(destPath)
		return r.markFailed(ctx, b, err)
	}

	if info, err := os.Stat(destPath); err == nil {
		b.SizeMB = float64(info.Size()) / (1024 * 1024)
	}
	b.Status = "completed"
	completedAt := r.now().UTC()
	b.CompletedAt = &completedAt
	if err := r.backups.Update(ctx, b); err != nil {
		return fmt.Errorf("recording backup completion: %w", err)
	}

	r.logger.Info("backup completed", "tenant", t.Name, "reference", b.Reference, "file", b.Filename)
	return nil
}

// List returns the backup history for a tenant, newest first.
func (r *BackupRunner) List(ctx context.Context, tenantName string) ([]domain.Backup, error) {
	if _, err := r.repo.GetByName(ctx, tenantName); err != nil {
		return nil, err
	}
	return r.backups.ListForTenant(ctx, tenantName)
}

func (r *BackupRunner) markFailed(ctx context.Context, b domain.Backup, cause error) error {
	b.Status = "failed"
	b.Error = cause.Error()
	completedAt := r.now().UTC()
	b.CompletedAt = &completedAt
	if err := r.backups.Update(ctx, b); err != nil {
		r.logger.Error("recording backup failure failed", "reference", b.Reference, "error", err)
	}
	return fmt.Errorf("backup %s: %w", b.Reference, cause)
}
