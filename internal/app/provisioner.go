package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// ArtifactBuilder renders the declarative stack files for a tenant.
type ArtifactBuilder interface {
	Build(t domain.Tenant) (domain.Artifacts, error)
}

// Provisioner walks a tenant through stack bring-up. Every step is
// idempotent, so a failed activation can be retried from the top.
type Provisioner struct {
	repo      domain.TenantRepository
	validator domain.TransitionValidator
	dbProv    domain.DatabaseProvisioner
	builder   ArtifactBuilder
	store     domain.ArtifactStore
	runtime   domain.StackRuntime
	proxy     domain.Proxy
	certs     domain.CertificateIssuer
	publisher domain.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewProvisioner(
	repo domain.TenantRepository,
	validator domain.TransitionValidator,
	dbProv domain.DatabaseProvisioner,
	builder ArtifactBuilder,
	store domain.ArtifactStore,
	runtime domain.StackRuntime,
	proxy domain.Proxy,
	certs domain.CertificateIssuer,
	publisher domain.EventPublisher,
	logger *slog.Logger,
) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		repo:      repo,
		validator: validator,
		dbProv:    dbProv,
		builder:   builder,
		store:     store,
		runtime:   runtime,
		proxy:     proxy,
		certs:     certs,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Prepare runs the create-time provisioning steps: the database and the
// stack artifacts. The tenant record already exists in "pending"; a
// failure leaves it there for a later activation retry.
func (p *Provisioner) Prepare(ctx context.Context, t domain.Tenant) error {
	if err := p.dbProv.CreateDatabase(ctx, t.DBName, t.DBUser, t.DBSecret); err != nil {
		return &domain.StepError{Step: "create_database", Err: err}
	}
	if err := p.writeArtifacts(ctx, t); err != nil {
		return err
	}
	return nil
}

// Activate brings the tenant's stack fully up and flips the record to
// "active". Re-entrant: an already-active tenant returns unchanged, and
// every step tolerates prior partial completion.
//
// Steps through stack start abort the activation and leave the tenant
// in its prior state. Proxy reload and certificate issuance run after
// the status flip and are non-fatal; their failures are logged and the
// tenant stays active and retryable.
func (p *Provisioner) Activate(ctx context.Context, name string) (domain.Tenant, error) {
	t, err := p.repo.GetByName(ctx, name)
	if err != nil {
		return domain.Tenant{}, err
	}
	if t.Status == domain.StatusActive {
		return t, nil
	}

	// Fail fast on transitions the lifecycle table rejects.
	if _, err := p.validator.Apply(ctx, t.Status, domain.EventActivate); err != nil {
		return domain.Tenant{}, err
	}

	steps := []struct {
		name string
		run  func(context.Context, domain.Tenant) error
	}{
		{"create_database", func(ctx context.Context, t domain.Tenant) error {
			return p.dbProv.CreateDatabase(ctx, t.DBName, t.DBUser, t.DBSecret)
		}},
		{"write_artifacts", func(ctx context.Context, t domain.Tenant) error {
			return p.writeArtifactsRaw(ctx, t)
		}},
		{"start_stack", func(ctx context.Context, t domain.Tenant) error {
			return p.runtime.Start(ctx, t.Name)
		}},
		{"write_routing", func(ctx context.Context, t domain.Tenant) error {
			_, err := p.proxy.WriteRoutingUnit(ctx, t.Name, t.AllDomains(), t.Port)
			return err
		}},
	}
	for _, step := range steps {
		if err := step.run(ctx, t); err != nil {
			p.logger.Error("activation step failed",
				"tenant", t.Name, "step", step.name, "error", err)
			return domain.Tenant{}, &domain.StepError{Step: step.name, Err: err}
		}
	}

	if err := p.repo.UpdateStatus(ctx, t.Name, t.Status, domain.StatusActive, p.now()); err != nil {
		return domain.Tenant{}, err
	}

	if err := p.proxy.Reload(ctx); err != nil {
		p.logger.Warn("proxy reload failed after activation", "tenant", t.Name, "error", err)
	}
	if err := p.certs.Issue(ctx, t.Domain, t.Email); err != nil {
		p.logger.Warn("certificate issuance failed", "tenant", t.Name, "domain", t.Domain, "error", err)
	}

	if err := p.publisher.Publish(ctx, domain.EventActivate, t); err != nil {
		p.logger.Warn("publishing activation event failed", "tenant", t.Name, "error", err)
	}

	activated, err := p.repo.GetByName(ctx, t.Name)
	if err != nil {
		return domain.Tenant{}, err
	}
	p.logger.Info("tenant activated", "tenant", t.Name, "port", t.Port)
	return activated, nil
}

// RefreshRouting regenerates artifacts and the routing unit after a
// domain set change, then reloads the proxy.
func (p *Provisioner) RefreshRouting(ctx context.Context, t domain.Tenant) error {
	if err := p.writeArtifacts(ctx, t); err != nil {
		return err
	}
	if _, err := p.proxy.WriteRoutingUnit(ctx, t.Name, t.AllDomains(), t.Port); err != nil {
		return &domain.StepError{Step: "write_routing", Err: err}
	}
	if err := p.proxy.Reload(ctx); err != nil {
		p.logger.Warn("proxy reload failed after routing refresh", "tenant", t.Name, "error", err)
	}
	return nil
}

// IssueCertificate requests a certificate for one of the tenant's
// domains. Kept separate from activation so new custom domains get
// their own issuance attempt.
func (p *Provisioner) IssueCertificate(ctx context.Context, t domain.Tenant, domainName string) error {
	return p.certs.Issue(ctx, domainName, t.Email)
}

func (p *Provisioner) writeArtifacts(ctx context.Context, t domain.Tenant) error {
	if err := p.writeArtifactsRaw(ctx, t); err != nil {
		return &domain.StepError{Step: "write_artifacts", Err: err}
	}
	return nil
}

func (p *Provisioner) writeArtifactsRaw(ctx context.Context, t domain.Tenant) error {
	artifacts, err := p.builder.Build(t)
	if err != nil {
		return fmt.Errorf("building artifacts: %w", err)
	}
	return p.store.Write(ctx, t.Name, artifacts)
}
