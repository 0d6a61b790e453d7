package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// Deprovisioner tears a tenant's stack down. Every step runs regardless
// of earlier failures so a partially broken stack still gets as much
// cleanup as possible; the errors are accumulated and returned joined.
type Deprovisioner struct {
	repo    domain.TenantRepository
	alloc   domain.PortAllocator
	dbProv  domain.DatabaseProvisioner
	runtime domain.StackRuntime
	proxy   domain.Proxy
	store   domain.ArtifactStore
	audit   domain.AuditLog
	logger  *slog.Logger
	now     func() time.Time
}

func NewDeprovisioner(
	repo domain.TenantRepository,
	alloc domain.PortAllocator,
	dbProv domain.DatabaseProvisioner,
	runtime domain.StackRuntime,
	proxy domain.Proxy,
	store domain.ArtifactStore,
	audit domain.AuditLog,
	logger *slog.Logger,
) *Deprovisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deprovisioner{
		repo:    repo,
		alloc:   alloc,
		dbProv:  dbProv,
		runtime: runtime,
		proxy:   proxy,
		store:   store,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// Deprovision destroys the tenant's stack, database, routing, and port
// reservation, then marks the record deleted. The record itself is kept
// for audit history. reason lands in the audit trail. When any step
// fails the status is left untouched so a later pass can retry.
func (d *Deprovisioner) Deprovision(ctx context.Context, t domain.Tenant, reason string) error {
	var errs []error
	fail := func(step string, err error) {
		d.logger.Error("deprovision step failed", "tenant", t.Name, "step", step, "error", err)
		errs = append(errs, &domain.StepError{Step: step, Err: err})
	}

	if err := d.runtime.Remove(ctx, t.Name); err != nil {
		fail("remove_stack", err)
	}
	if err := d.proxy.RemoveRoutingUnit(ctx, t.Name); err != nil {
		fail("remove_routing", err)
	}
	if err := d.proxy.Reload(ctx); err != nil {
		fail("reload_proxy", err)
	}
	if err := d.dbProv.DropDatabase(ctx, t.DBName, t.DBUser); err != nil {
		fail("drop_database", err)
	}
	if err := d.store.Remove(ctx, t.Name); err != nil {
		fail("remove_artifacts", err)
	}
	if err := d.alloc.Release(ctx, t.Port); err != nil {
		fail("release_port", err)
	}

	// A partial teardown keeps the current status so the next sweep
	// pass retries the remaining steps; every step tolerates rerunning.
	if len(errs) == 0 && t.Status != domain.StatusDeleted {
		if err := d.repo.UpdateStatus(ctx, t.Name, t.Status, domain.StatusDeleted, d.now()); err != nil {
			fail("mark_deleted", err)
		}
	}

	entry := domain.AuditEntry{
		TenantName: t.Name,
		Action:     "deprovision",
		Details:    reason,
		Actor:      "system",
	}
	if len(errs) > 0 {
		entry.Details = fmt.Sprintf("%s (%d step failures)", reason, len(errs))
	}
	if err := d.audit.Record(ctx, entry); err != nil {
		d.logger.Warn("recording deprovision audit entry failed", "tenant", t.Name, "error", err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("deprovisioning %s: %w", t.Name, errors.Join(errs...))
	}
	d.logger.Info("tenant deprovisioned", "tenant", t.Name, "reason", reason)
	return nil
}
