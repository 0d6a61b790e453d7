// Package app orchestrates the tenant lifecycle: signup, activation,
// suspension, deletion scheduling, domains, backups, and the expiry
// sweep. Adapters are injected through the domain port interfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// BackupQueue hands a requested backup to the background workers.
type BackupQueue interface {
	EnqueueBackup(ctx context.Context, reference string) error
}

// CreateParams are the signup inputs.
type CreateParams struct {
	Name         string
	Domain       string
	Email        string
	Plan         string
	CacheEnabled bool
}

// UpdateParams are the mutable tenant fields. Nil pointers leave the
// field unchanged.
type UpdateParams struct {
	Email        *string
	Plan         *string
	CacheEnabled *bool
	Retention    *domain.RetentionPolicy
}

// TenantService is the operation surface of the orchestrator.
type TenantService struct {
	repo        domain.TenantRepository
	alloc       domain.PortAllocator
	validator   domain.TransitionValidator
	provisioner *Provisioner
	deprov      *Deprovisioner
	backups     *BackupRunner
	backupQueue BackupQueue
	payments    domain.PaymentRepository
	runtime     domain.StackRuntime
	inspector   domain.StackInspector
	publisher   domain.EventPublisher
	authz       domain.Authorizer
	audit       domain.AuditLog
	logger      *slog.Logger

	paymentWindow time.Duration
	deletionDelay time.Duration
	now           func() time.Time
}

// TenantServiceDeps lists the collaborators of TenantService.
type TenantServiceDeps struct {
	Repo        domain.TenantRepository
	Alloc       domain.PortAllocator
	Validator   domain.TransitionValidator
	Provisioner *Provisioner
	Deprov      *Deprovisioner
	Backups     *BackupRunner
	BackupQueue BackupQueue
	Payments    domain.PaymentRepository
	Runtime     domain.StackRuntime
	Inspector   domain.StackInspector
	Publisher   domain.EventPublisher
	Authz       domain.Authorizer
	Audit       domain.AuditLog
	Logger      *slog.Logger

	PaymentWindow time.Duration
	DeletionDelay time.Duration
}

func NewTenantService(deps TenantServiceDeps) *TenantService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.PaymentWindow <= 0 {
		deps.PaymentWindow = 72 * time.Hour
	}
	if deps.DeletionDelay <= 0 {
		deps.DeletionDelay = 12 * time.Hour
	}
	return &TenantService{
		repo:          deps.Repo,
		alloc:         deps.Alloc,
		validator:     deps.Validator,
		provisioner:   deps.Provisioner,
		deprov:        deps.Deprov,
		backups:       deps.Backups,
		backupQueue:   deps.BackupQueue,
		payments:      deps.Payments,
		runtime:       deps.Runtime,
		inspector:     deps.Inspector,
		publisher:     deps.Publisher,
		authz:         deps.Authz,
		audit:         deps.Audit,
		logger:        deps.Logger,
		paymentWindow: deps.PaymentWindow,
		deletionDelay: deps.DeletionDelay,
		now:           time.Now,
	}
}

// Create registers a tenant and prepares its stack. The tenant starts
// in "pending" with the payment clock running. A preparation failure is
// returned to the caller; the pending record survives so activation can
// rerun the failed steps.
func (s *TenantService) Create(ctx context.Context, params CreateParams) (domain.Tenant, error) {
	if err := domain.ValidateTenantName(params.Name); err != nil {
		return domain.Tenant{}, err
	}
	if err := domain.ValidateDomainName(params.Domain); err != nil {
		return domain.Tenant{}, err
	}
	plan, err := domain.ParsePlan(params.Plan)
	if err != nil {
		return domain.Tenant{}, err
	}
	if params.Email == "" {
		return domain.Tenant{}, &domain.ValidationError{Field: "email", Reason: "required"}
	}
	if err := s.repo.Available(ctx, params.Name, params.Domain, params.Email); err != nil {
		return domain.Tenant{}, err
	}

	id, err := generateID()
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("generating tenant id: %w", err)
	}
	secret, err := generateSecret()
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("generating database secret: %w", err)
	}
	port, err := s.alloc.Allocate(ctx, params.Name)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("allocating port: %w", err)
	}

	tenant := domain.NewTenant(id, params.Name, params.Domain, params.Email, plan, params.CacheEnabled, s.paymentWindow)
	tenant.Port = port
	tenant.DBSecret = secret

	if err := s.repo.Create(ctx, tenant); err != nil {
		if relErr := s.alloc.Release(ctx, port); relErr != nil {
			s.logger.Error("releasing port after failed create", "tenant", params.Name, "port", port, "error", relErr)
		}
		return domain.Tenant{}, err
	}

	if err := s.provisioner.Prepare(ctx, tenant); err != nil {
		// The pending record is the retry anchor: activation reruns the
		// failed steps. The failure itself goes back to the caller.
		s.logger.Error("stack preparation failed", "tenant", tenant.Name, "error", err)
		s.recordAudit(ctx, tenant.Name, "create", fmt.Sprintf("preparation failed: %v", err), "system")
		return domain.Tenant{}, err
	}

	s.recordAudit(ctx, tenant.Name, "create", fmt.Sprintf("plan=%s port=%d", plan, port), "system")
	s.logger.Info("tenant created", "tenant", tenant.Name, "plan", plan, "port", port)
	return tenant, nil
}

// Get returns a tenant to its owner or an admin.
func (s *TenantService) Get(ctx context.Context, caller domain.Identity, name string) (domain.Tenant, error) {
	t, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	if !s.authz.IsAdmin(caller) && !s.authz.IsOwner(t, caller) {
		return domain.Tenant{}, &domain.AuthorizationError{Action: "get tenant"}
	}
	return t, nil
}

// List returns tenants matching the filter. Admin only.
func (s *TenantService) List(ctx context.Context, caller domain.Identity, filter domain.ListFilter) ([]domain.Tenant, error) {
	if !s.authz.IsAdmin(caller) {
		return nil, &domain.AuthorizationError{Action: "list tenants"}
	}
	return s.repo.List(ctx, filter)
}

// Update changes mutable tenant fields and rewrites the stack
// artifacts. A plan change takes effect the next time the stack starts.
func (s *TenantService) Update(ctx context.Context, caller domain.Identity, name string, params UpdateParams) (domain.Tenant, error) {
	t, err := s.Get(ctx, caller, name)
	if err != nil {
		return domain.Tenant{}, err
	}

	if params.Email != nil {
		if *params.Email == "" {
			return domain.Tenant{}, &domain.ValidationError{Field: "email", Reason: "required"}
		}
		t.Email = *params.Email
	}
	if params.Plan != nil {
		plan, err := domain.ParsePlan(*params.Plan)
		if err != nil {
			return domain.Tenant{}, err
		}
		t.Plan = plan
		t.Limits = plan.Profile()
	}
	if params.CacheEnabled != nil {
		t.CacheEnabled = *params.CacheEnabled
	}
	if params.Retention != nil {
		t.Retention = *params.Retention
	}

	if err := s.repo.Update(ctx, t); err != nil {
		return domain.Tenant{}, err
	}
	if err := s.provisioner.writeArtifacts(ctx, t); err != nil {
		s.logger.Warn("rewriting artifacts after update failed", "tenant", t.Name, "error", err)
	}

	s.recordAudit(ctx, t.Name, "update", "", caller.Email)
	return t, nil
}

// Activate brings the tenant's stack up out of band of the payment
// flow. Admin only; the payment webhook is the usual trigger.
func (s *TenantService) Activate(ctx context.Context, caller domain.Identity, name string) (domain.Tenant, error) {
	if !s.authz.IsAdmin(caller) {
		return domain.Tenant{}, &domain.AuthorizationError{Action: "activate tenant"}
	}
	t, err := s.provisioner.Activate(ctx, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	s.recordAudit(ctx, name, "activate", "", caller.Email)
	return t, nil
}

// Suspend stops the stack and marks the tenant suspended. Admin only.
func (s *TenantService) Suspend(ctx context.Context, caller domain.Identity, name string) (domain.Tenant, error) {
	if !s.authz.IsAdmin(caller) {
		return domain.Tenant{}, &domain.AuthorizationError{Action: "suspend tenant"}
	}
	return s.transition(ctx, caller, name, domain.EventSuspend, func(ctx context.Context, t domain.Tenant) error {
		return s.runtime.Stop(ctx, t.Name)
	})
}

// Resume restarts a suspended tenant's stack. Admin only.
func (s *TenantService) Resume(ctx context.Context, caller domain.Identity, name string) (domain.Tenant, error) {
	if !s.authz.IsAdmin(caller) {
		return domain.Tenant{}, &domain.AuthorizationError{Action: "resume tenant"}
	}
	return s.transition(ctx, caller, name, domain.EventResume, func(ctx context.Context, t domain.Tenant) error {
		return s.runtime.Start(ctx, t.Name)
	})
}

// ScheduleDelete stops the stack and arms the deletion timer. The
// caller picks the delay; nil means the configured default and zero
// makes the tenant due on the next sweep. The data survives until the
// delay elapses so the owner can change their mind.
func (s *TenantService) ScheduleDelete(ctx context.Context, caller domain.Identity, name string, delay *time.Duration) (domain.Tenant, error) {
	effective := s.deletionDelay
	if delay != nil {
		if *delay < 0 {
			return domain.Tenant{}, &domain.ValidationError{Field: "delay", Reason: "must not be negative"}
		}
		effective = *delay
	}

	t, err := s.Get(ctx, caller, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	next, err := s.validator.Apply(ctx, t.Status, domain.EventScheduleDelete)
	if err != nil {
		return domain.Tenant{}, err
	}
	if err := s.runtime.Stop(ctx, t.Name); err != nil {
		return domain.Tenant{}, &domain.StepError{Step: "stop_stack", Err: err}
	}
	dueAt := s.now().Add(effective)
	if err := s.repo.UpdateStatus(ctx, t.Name, t.Status, next, dueAt); err != nil {
		return domain.Tenant{}, err
	}
	s.publish(ctx, domain.EventScheduleDelete, t)
	s.recordAudit(ctx, t.Name, string(domain.EventScheduleDelete),
		fmt.Sprintf("due at %s", dueAt.UTC().Format(time.RFC3339)), caller.Email)
	return s.repo.GetByName(ctx, t.Name)
}

// CancelDelete disarms a scheduled deletion and restarts the stack.
func (s *TenantService) CancelDelete(ctx context.Context, caller domain.Identity, name string) (domain.Tenant, error) {
	t, err := s.Get(ctx, caller, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	next, err := s.validator.Apply(ctx, t.Status, domain.EventCancelDelete)
	if err != nil {
		return domain.Tenant{}, err
	}
	if err := s.runtime.Start(ctx, t.Name); err != nil {
		return domain.Tenant{}, &domain.StepError{Step: "start_stack", Err: err}
	}
	if err := s.repo.UpdateStatus(ctx, t.Name, t.Status, next, s.now()); err != nil {
		return domain.Tenant{}, err
	}
	s.publish(ctx, domain.EventCancelDelete, t)
	s.recordAudit(ctx, t.Name, string(domain.EventCancelDelete), "", caller.Email)
	return s.repo.GetByName(ctx, t.Name)
}

// ForceDelete deprovisions immediately, skipping the delay. Admin only.
func (s *TenantService) ForceDelete(ctx context.Context, caller domain.Identity, name string) error {
	if !s.authz.IsAdmin(caller) {
		return &domain.AuthorizationError{Action: "force delete tenant"}
	}
	t, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if _, err := s.validator.Apply(ctx, t.Status, domain.EventForceDelete); err != nil {
		return err
	}
	s.publish(ctx, domain.EventForceDelete, t)
	return s.deprov.Deprovision(ctx, t, "force delete by "+caller.Email)
}

// AddDomain binds a custom domain, refreshes routing, and attempts a
// certificate. Certificate failure is non-fatal, the binding stays.
func (s *TenantService) AddDomain(ctx context.Context, caller domain.Identity, name, domainName string) (domain.Tenant, error) {
	t, err := s.Get(ctx, caller, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	if err := domain.ValidateDomainName(domainName); err != nil {
		return domain.Tenant{}, err
	}
	if err := s.repo.AddDomain(ctx, name, domainName); err != nil {
		return domain.Tenant{}, err
	}

	t, err = s.repo.GetByName(ctx, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	if t.Status == domain.StatusActive {
		if err := s.provisioner.RefreshRouting(ctx, t); err != nil {
			return domain.Tenant{}, err
		}
		if err := s.provisioner.IssueCertificate(ctx, t, domainName); err != nil {
			s.logger.Warn("certificate issuance failed", "tenant", name, "domain", domainName, "error", err)
		}
	}

	s.recordAudit(ctx, name, "add_domain", domainName, caller.Email)
	return t, nil
}

// RemoveDomain unbinds a custom domain and refreshes routing.
func (s *TenantService) RemoveDomain(ctx context.Context, caller domain.Identity, name, domainName string) (domain.Tenant, error) {
	t, err := s.Get(ctx, caller, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	if err := s.repo.RemoveDomain(ctx, name, domainName); err != nil {
		return domain.Tenant{}, err
	}

	t, err = s.repo.GetByName(ctx, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	if t.Status == domain.StatusActive {
		if err := s.provisioner.RefreshRouting(ctx, t); err != nil {
			return domain.Tenant{}, err
		}
	}

	s.recordAudit(ctx, name, "remove_domain", domainName, caller.Email)
	return t, nil
}

// RequestBackup records a backup request and queues the dump.
func (s *TenantService) RequestBackup(ctx context.Context, caller domain.Identity, name string) (domain.Backup, error) {
	t, err := s.Get(ctx, caller, name)
	if err != nil {
		return domain.Backup{}, err
	}
	b, err := s.backups.Request(ctx, name, "manual")
	if err != nil {
		return domain.Backup{}, err
	}
	if err := s.backupQueue.EnqueueBackup(ctx, b.Reference); err != nil {
		return domain.Backup{}, fmt.Errorf("queueing backup: %w", err)
	}
	s.publish(ctx, domain.EventBackupRequested, t)
	return b, nil
}

// ListBackups returns the backup history for a tenant.
func (s *TenantService) ListBackups(ctx context.Context, caller domain.Identity, name string) ([]domain.Backup, error) {
	if _, err := s.Get(ctx, caller, name); err != nil {
		return nil, err
	}
	return s.backups.List(ctx, name)
}

// RecordPayment registers a pending payment for a tenant and returns
// its reference for the payment provider handoff.
func (s *TenantService) RecordPayment(ctx context.Context, caller domain.Identity, name string, amountCents int64, currency string) (domain.Payment, error) {
	t, err := s.Get(ctx, caller, name)
	if err != nil {
		return domain.Payment{}, err
	}
	if amountCents <= 0 {
		return domain.Payment{}, &domain.ValidationError{Field: "amount_cents", Reason: "must be positive"}
	}
	p := domain.Payment{
		Reference:   uuid.NewString(),
		TenantName:  t.Name,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      "pending",
		CreatedAt:   s.now().UTC(),
	}
	if err := s.payments.Record(ctx, p); err != nil {
		return domain.Payment{}, fmt.Errorf("recording payment: %w", err)
	}
	return p, nil
}

// HandlePaymentConfirmed processes a provider confirmation. The
// reference is looked up as a payment first and falls back to a plain
// tenant name. Activation runs asynchronously off the published event;
// confirming an already-active tenant is a no-op there.
func (s *TenantService) HandlePaymentConfirmed(ctx context.Context, reference string) error {
	tenantName := reference

	p, err := s.payments.GetByReference(ctx, reference)
	switch {
	case err == nil:
		tenantName = p.TenantName
		if err := s.payments.MarkConfirmed(ctx, reference, s.now()); err != nil {
			return fmt.Errorf("confirming payment %s: %w", reference, err)
		}
	case errors.Is(err, domain.ErrPaymentNotFound):
		// Providers that only echo a tenant identifier land here.
	default:
		return err
	}

	t, err := s.repo.GetByName(ctx, tenantName)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, domain.EventPaymentConfirmed, t); err != nil {
		return fmt.Errorf("publishing payment confirmation: %w", err)
	}
	s.recordAudit(ctx, t.Name, "payment_confirmed", reference, "system")
	return nil
}

// Stats returns fleet counts. Admin only.
func (s *TenantService) Stats(ctx context.Context, caller domain.Identity) (domain.FleetStats, error) {
	if !s.authz.IsAdmin(caller) {
		return domain.FleetStats{}, &domain.AuthorizationError{Action: "fleet stats"}
	}
	return s.repo.Counts(ctx)
}

// TenantStats reports live container readings for one tenant.
func (s *TenantService) TenantStats(ctx context.Context, caller domain.Identity, name string) ([]domain.ContainerStat, error) {
	if _, err := s.Get(ctx, caller, name); err != nil {
		return nil, err
	}
	return s.inspector.Stats(ctx, name)
}

// AuditTrail returns recent audit entries for a tenant. Admin only.
func (s *TenantService) AuditTrail(ctx context.Context, caller domain.Identity, name string, limit int) ([]domain.AuditEntry, error) {
	if !s.authz.IsAdmin(caller) {
		return nil, &domain.AuthorizationError{Action: "audit trail"}
	}
	return s.audit.ListForTenant(ctx, name, limit)
}

// transition applies a lifecycle event whose side effect is a single
// runtime action, then flips the status under compare-and-swap.
func (s *TenantService) transition(ctx context.Context, caller domain.Identity, name string, event domain.Event, act func(context.Context, domain.Tenant) error) (domain.Tenant, error) {
	t, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	next, err := s.validator.Apply(ctx, t.Status, event)
	if err != nil {
		return domain.Tenant{}, err
	}
	if err := act(ctx, t); err != nil {
		return domain.Tenant{}, &domain.StepError{Step: string(event), Err: err}
	}
	if err := s.repo.UpdateStatus(ctx, t.Name, t.Status, next, s.now()); err != nil {
		return domain.Tenant{}, err
	}
	s.publish(ctx, event, t)
	s.recordAudit(ctx, t.Name, string(event), "", caller.Email)
	return s.repo.GetByName(ctx, t.Name)
}

func (s *TenantService) publish(ctx context.Context, event domain.Event, t domain.Tenant) {
	if err := s.publisher.Publish(ctx, event, t); err != nil {
		s.logger.Warn("publishing event failed", "event", event, "tenant", t.Name, "error", err)
	}
}

func (s *TenantService) recordAudit(ctx context.Context, tenant, action, details, actor string) {
	if actor == "" {
		actor = "system"
	}
	err := s.audit.Record(ctx, domain.AuditEntry{
		TenantName: tenant,
		Action:     action,
		Details:    details,
		Actor:      actor,
	})
	if err != nil {
		s.logger.Warn("recording audit entry failed", "tenant", tenant, "action", action, "error", err)
	}
}
