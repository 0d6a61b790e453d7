package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/stackhost/internal/domain"
)

const tracerName = "github.com/neomorfeo/stackhost/internal/adapter/otel"

// TracingRepository wraps a domain.TenantRepository with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingRepository struct {
	next   domain.TenantRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.TenantRepository.
var _ domain.TenantRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.TenantRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r *TracingRepository) Create(ctx context.Context, tenant domain.Tenant) error {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Create",
		trace.WithAttributes(
			attribute.String("tenant.name", tenant.Name),
			attribute.String("tenant.plan", string(tenant.Plan)),
		),
	)
	err := r.next.Create(ctx, tenant)
	finish(span, err)
	return err
}

func (r *TracingRepository) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.GetByName",
		trace.WithAttributes(attribute.String("tenant.name", name)),
	)
	tenant, err := r.next.GetByName(ctx, name)
	finish(span, err)
	return tenant, err
}

func (r *TracingRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	tenants, err := r.next.List(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(tenants)))
	}
	finish(span, err)
	return tenants, err
}

func (r *TracingRepository) Update(ctx context.Context, tenant domain.Tenant) error {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Update",
		trace.WithAttributes(
			attribute.String("tenant.name", tenant.Name),
			attribute.String("tenant.status", string(tenant.Status)),
		),
	)
	err := r.next.Update(ctx, tenant)
	finish(span, err)
	return err
}

func (r *TracingRepository) Available(ctx context.Context, name, dom, email string) error {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Available",
		trace.WithAttributes(attribute.String("tenant.name", name)),
	)
	err := r.next.Available(ctx, name, dom, email)
	finish(span, err)
	return err
}

func (r *TracingRepository) UpdateStatus(ctx context.Context, name string, from, to domain.Status, when time.Time) error {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.UpdateStatus",
		trace.WithAttributes(
			attribute.String("tenant.name", name),
			attribute.String("status.from", string(from)),
			attribute.String("status.to", string(to)),
		),
	)
	err := r.next.UpdateStatus(ctx, name, from, to, when)
	finish(span, err)
	return err
}

func (r *TracingRepository) AddDomain(ctx context.Context, name, dom string) error {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.AddDomain",
		trace.WithAttributes(
			attribute.String("tenant.name", name),
			attribute.String("tenant.domain", dom),
		),
	)
	err := r.next.AddDomain(ctx, name, dom)
	finish(span, err)
	return err
}

func (r *TracingRepository) RemoveDomain(ctx context.Context, name, dom string) error {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.RemoveDomain",
		trace.WithAttributes(
			attribute.String("tenant.name", name),
			attribute.String("tenant.domain", dom),
		),
	)
	err := r.next.RemoveDomain(ctx, name, dom)
	finish(span, err)
	return err
}

func (r *TracingRepository) ExpiredPending(ctx context.Context, now time.Time) ([]domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.ExpiredPending")
	tenants, err := r.next.ExpiredPending(ctx, now)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(tenants)))
	}
	finish(span, err)
	return tenants, err
}

func (r *TracingRepository) DueForDeletion(ctx context.Context, now time.Time) ([]domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.DueForDeletion")
	tenants, err := r.next.DueForDeletion(ctx, now)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(tenants)))
	}
	finish(span, err)
	return tenants, err
}

func (r *TracingRepository) Counts(ctx context.Context) (domain.FleetStats, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRepository.Counts")
	stats, err := r.next.Counts(ctx)
	finish(span, err)
	return stats, err
}
