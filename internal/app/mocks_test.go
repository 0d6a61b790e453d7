package app_test

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// --- Mocks ---

type mockRepo struct {
	tenants map[string]domain.Tenant

	updateStatusErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{tenants: make(map[string]domain.Tenant)}
}

func (m *mockRepo) Create(_ context.Context, t domain.Tenant) error {
	if _, ok := m.tenants[t.Name]; ok {
		return &domain.ConflictError{Field: "name", Value: t.Name}
	}
	m.tenants[t.Name] = t
	return nil
}

func (m *mockRepo) GetByName(_ context.Context, name string) (domain.Tenant, error) {
	t, ok := m.tenants[name]
	if !ok {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, nil
}

func (m *mockRepo) List(_ context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	out := make([]domain.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *mockRepo) Update(_ context.Context, t domain.Tenant) error {
	existing, ok := m.tenants[t.Name]
	if !ok {
		return domain.ErrTenantNotFound
	}
	existing.Email = t.Email
	existing.Plan = t.Plan
	existing.Limits = t.Limits
	existing.CacheEnabled = t.CacheEnabled
	existing.Retention = t.Retention
	m.tenants[t.Name] = existing
	return nil
}

func (m *mockRepo) Available(_ context.Context, name, dom, email string) error {
	for _, t := range m.tenants {
		if t.Status == domain.StatusDeleted {
			continue
		}
		if t.Name == name {
			return &domain.ConflictError{Field: "name", Value: name}
		}
		if t.Domain == dom || slices.Contains(t.CustomDomains, dom) {
			return &domain.ConflictError{Field: "domain", Value: dom}
		}
		if t.Email == email {
			return &domain.ConflictError{Field: "email", Value: email}
		}
	}
	return nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, name string, from, to domain.Status, when time.Time) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	t, ok := m.tenants[name]
	if !ok {
		return domain.ErrTenantNotFound
	}
	if t.Status != from {
		return &domain.StatusConflictError{Name: name, Expected: from}
	}
	t.Status = to
	switch to {
	case domain.StatusActive:
		if t.ActivatedAt == nil {
			at := when
			t.ActivatedAt = &at
		}
		t.SuspendedAt = nil
		t.DeletionScheduledAt = nil
		t.PaymentDeadline = nil
	case domain.StatusSuspended:
		at := when
		t.SuspendedAt = &at
	case domain.StatusScheduledForDeletion:
		at := when
		t.DeletionScheduledAt = &at
		t.SuspendedAt = nil
	case domain.StatusDeleted:
		t.SuspendedAt = nil
		t.DeletionScheduledAt = nil
	}
	m.tenants[name] = t
	return nil
}

func (m *mockRepo) AddDomain(_ context.Context, name, dom string) error {
	t, ok := m.tenants[name]
	if !ok {
		return domain.ErrTenantNotFound
	}
	t.CustomDomains = append(t.CustomDomains, dom)
	m.tenants[name] = t
	return nil
}

func (m *mockRepo) RemoveDomain(_ context.Context, name, dom string) error {
	t, ok := m.tenants[name]
	if !ok {
		return domain.ErrTenantNotFound
	}
	i := slices.Index(t.CustomDomains, dom)
	if i < 0 {
		return domain.ErrDomainNotFound
	}
	t.CustomDomains = slices.Delete(t.CustomDomains, i, i+1)
	m.tenants[name] = t
	return nil
}

func (m *mockRepo) ExpiredPending(_ context.Context, now time.Time) ([]domain.Tenant, error) {
	var out []domain.Tenant
	for _, t := range m.tenants {
		if t.Status == domain.StatusPending && t.PaymentDeadline != nil && t.PaymentDeadline.Before(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepo) DueForDeletion(_ context.Context, now time.Time) ([]domain.Tenant, error) {
	var out []domain.Tenant
	for _, t := range m.tenants {
		if t.Status == domain.StatusScheduledForDeletion && t.DeletionScheduledAt != nil && !t.DeletionScheduledAt.After(now) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepo) Counts(_ context.Context) (domain.FleetStats, error) {
	var stats domain.FleetStats
	for _, t := range m.tenants {
		switch t.Status {
		case domain.StatusDeleted:
			continue
		case domain.StatusPending:
			stats.Pending++
		case domain.StatusActive:
			stats.Active++
		case domain.StatusSuspended:
			stats.Suspended++
		case domain.StatusScheduledForDeletion:
			stats.ScheduledForDeletion++
		}
		stats.Total++
	}
	return stats, nil
}

type mockAlloc struct {
	next     int
	released []int
}

func (m *mockAlloc) Allocate(_ context.Context, _ string) (int, error) {
	m.next++
	return 20000 + m.next - 1, nil
}

func (m *mockAlloc) Release(_ context.Context, port int) error {
	m.released = append(m.released, port)
	return nil
}

type mockDBProv struct {
	created   []string
	dropped   []string
	createErr error
	dropErr   error
}

func (m *mockDBProv) CreateDatabase(_ context.Context, name, _, _ string) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, name)
	return nil
}

func (m *mockDBProv) DropDatabase(_ context.Context, name, _ string) error {
	if m.dropErr != nil {
		return m.dropErr
	}
	m.dropped = append(m.dropped, name)
	return nil
}

type mockBuilder struct{}

func (mockBuilder) Build(t domain.Tenant) (domain.Artifacts, error) {
	return domain.Artifacts{
		ComposeSpec: []byte("services: {}\n"),
		EnvFile:     []byte("TENANT_NAME=" + t.Name + "\n"),
	}, nil
}

type mockStore struct {
	written []string
	removed []string
}

func (m *mockStore) Write(_ context.Context, name string, _ domain.Artifacts) error {
	m.written = append(m.written, name)
	return nil
}

func (m *mockStore) Remove(_ context.Context, name string) error {
	m.removed = append(m.removed, name)
	return nil
}

type mockRuntime struct {
	started  []string
	stopped  []string
	removed  []string
	startErr error
	stopErr  error
}

func (m *mockRuntime) Start(_ context.Context, name string) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, name)
	return nil
}

func (m *mockRuntime) Stop(_ context.Context, name string) error {
	if m.stopErr != nil {
		return m.stopErr
	}
	m.stopped = append(m.stopped, name)
	return nil
}

func (m *mockRuntime) Remove(_ context.Context, name string) error {
	m.removed = append(m.removed, name)
	return nil
}

type mockProxy struct {
	written   []string
	removed   []string
	reloads   int
	reloadErr error
}

func (m *mockProxy) WriteRoutingUnit(_ context.Context, name string, _ []string, _ int) (string, error) {
	m.written = append(m.written, name)
	return "/etc/nginx/sites-enabled/" + name + ".conf", nil
}

func (m *mockProxy) RemoveRoutingUnit(_ context.Context, name string) error {
	m.removed = append(m.removed, name)
	return nil
}

func (m *mockProxy) Reload(_ context.Context) error {
	m.reloads++
	return m.reloadErr
}

type mockCerts struct {
	issued []string
	err    error
}

func (m *mockCerts) Issue(_ context.Context, dom, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.issued = append(m.issued, dom)
	return nil
}

type mockPublisher struct {
	events []publishedEvent
}

type publishedEvent struct {
	event  domain.Event
	tenant domain.Tenant
}

func (m *mockPublisher) Publish(_ context.Context, e domain.Event, t domain.Tenant) error {
	m.events = append(m.events, publishedEvent{event: e, tenant: t})
	return nil
}

type mockAudit struct {
	entries []domain.AuditEntry
}

func (m *mockAudit) Record(_ context.Context, entry domain.AuditEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAudit) ListForTenant(_ context.Context, name string, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.TenantName == name {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockPayments struct {
	payments map[string]domain.Payment
}

func newMockPayments() *mockPayments {
	return &mockPayments{payments: make(map[string]domain.Payment)}
}

func (m *mockPayments) Record(_ context.Context, p domain.Payment) error {
	m.payments[p.Reference] = p
	return nil
}

func (m *mockPayments) GetByReference(_ context.Context, ref string) (domain.Payment, error) {
	p, ok := m.payments[ref]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (m *mockPayments) MarkConfirmed(_ context.Context, ref string, at time.Time) error {
	p, ok := m.payments[ref]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	p.Status = "confirmed"
	p.ConfirmedAt = &at
	m.payments[ref] = p
	return nil
}

type mockBackups struct {
	backups map[string]domain.Backup
}

func newMockBackups() *mockBackups {
	return &mockBackups{backups: make(map[string]domain.Backup)}
}

func (m *mockBackups) Record(_ context.Context, b domain.Backup) error {
	m.backups[b.Reference] = b
	return nil
}

func (m *mockBackups) Update(_ context.Context, b domain.Backup) error {
	if _, ok := m.backups[b.Reference]; !ok {
		return fmt.Errorf("backup %s not found", b.Reference)
	}
	m.backups[b.Reference] = b
	return nil
}

func (m *mockBackups) GetByReference(_ context.Context, ref string) (domain.Backup, error) {
	b, ok := m.backups[ref]
	if !ok {
		return domain.Backup{}, fmt.Errorf("backup %s not found", ref)
	}
	return b, nil
}

func (m *mockBackups) ListForTenant(_ context.Context, name string) ([]domain.Backup, error) {
	var out []domain.Backup
	for _, b := range m.backups {
		if b.TenantName == name {
			out = append(out, b)
		}
	}
	return out, nil
}

type mockDumper struct {
	dumped []string
	err    error
}

func (m *mockDumper) Dump(_ context.Context, t domain.Tenant, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.dumped = append(m.dumped, t.Name)
	return nil
}

type mockInspector struct {
	stats []domain.ContainerStat
}

func (m *mockInspector) Stats(_ context.Context, _ string) ([]domain.ContainerStat, error) {
	return m.stats, nil
}

type mockQueue struct {
	enqueued []string
}

func (m *mockQueue) EnqueueBackup(_ context.Context, ref string) error {
	m.enqueued = append(m.enqueued, ref)
	return nil
}

type allowAll struct{}

func (allowAll) IsOwner(_ domain.Tenant, _ domain.Identity) bool { return true }
func (allowAll) IsAdmin(_ domain.Identity) bool                  { return true }
