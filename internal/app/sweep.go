package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// SweepSummary reports one sweep pass.
type SweepSummary struct {
	ExpiredPending int `json:"expired_pending"`
	DeletedDue     int `json:"deleted_due"`
	Failures       int `json:"failures"`
}

// Sweeper enforces time-based lifecycle edges: pending tenants whose
// payment deadline passed and scheduled deletions whose delay elapsed.
type Sweeper struct {
	repo   domain.TenantRepository
	deprov *Deprovisioner
	audit  domain.AuditLog
	logger *slog.Logger
	now    func() time.Time
}

func NewSweeper(repo domain.TenantRepository, deprov *Deprovisioner, audit domain.AuditLog, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{repo: repo, deprov: deprov, audit: audit, logger: logger, now: time.Now}
}

// Sweep processes every due tenant independently: one tenant's failure
// never blocks the rest. The returned error joins per-tenant failures;
// the summary always reflects the work done.
func (s *Sweeper) Sweep(ctx context.Context) (SweepSummary, error) {
	now := s.now()
	var summary SweepSummary
	var errs []error

	expired, err := s.repo.ExpiredPending(ctx, now)
	if err != nil {
		return summary, fmt.Errorf("listing expired pending tenants: %w", err)
	}
	for _, t := range expired {
		if err := s.expire(ctx, t, "payment deadline elapsed"); err != nil {
			summary.Failures++
			errs = append(errs, fmt.Errorf("expiring %s: %w", t.Name, err))
			continue
		}
		summary.ExpiredPending++
	}

	due, err := s.repo.DueForDeletion(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("listing due deletions: %w", err))
		return summary, errors.Join(errs...)
	}
	for _, t := range due {
		if err := s.expire(ctx, t, "deletion delay elapsed"); err != nil {
			summary.Failures++
			errs = append(errs, fmt.Errorf("deleting %s: %w", t.Name, err))
			continue
		}
		summary.DeletedDue++
	}

	s.logger.Info("sweep complete",
		"expired_pending", summary.ExpiredPending,
		"deleted_due", summary.DeletedDue,
		"failures", summary.Failures)
	return summary, errors.Join(errs...)
}

func (s *Sweeper) expire(ctx context.Context, t domain.Tenant, reason string) error {
	if err := s.audit.Record(ctx, domain.AuditEntry{
		TenantName: t.Name,
		Action:     "sweep_" + string(domain.EventExpire),
		Details:    reason,
		Actor:      "system",
	}); err != nil {
		s.logger.Warn("recording sweep audit entry failed", "tenant", t.Name, "error", err)
	}
	return s.deprov.Deprovision(ctx, t, reason)
}
