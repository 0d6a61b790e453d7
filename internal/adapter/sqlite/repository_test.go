package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neomorfeo/stackhost/internal/adapter/sqlite"
	"github.com/neomorfeo/stackhost/internal/domain"
)

// newTestRepo creates an in-memory SQLite repository for testing.
func newTestRepo(t *testing.T) *sqlite.TenantRepository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTenant(name string) domain.Tenant {
	t := domain.NewTenant("id-"+name, name, name+".example.com", name+"@example.com",
		domain.PlanBasic, false, 72*time.Hour)
	t.DBSecret = "s3cret"
	return t
}

func mustCreate(t *testing.T, repo *sqlite.TenantRepository, tenant domain.Tenant) {
	t.Helper()
	if err := repo.Create(context.Background(), tenant); err != nil {
		t.Fatalf("mustCreate failed: %v", err)
	}
}

func TestCreate_And_GetByName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tenant := newTenant("acme")
	tenant.Port = 20000
	mustCreate(t, repo, tenant)

	got, err := repo.GetByName(ctx, "acme")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}

	if got.Name != "acme" {
		t.Errorf("Name = %q, want %q", got.Name, "acme")
	}
	if got.Domain != "acme.example.com" {
		t.Errorf("Domain = %q, want %q", got.Domain, "acme.example.com")
	}
	if got.Port != 20000 {
		t.Errorf("Port = %d, want %d", got.Port, 20000)
	}
	if got.DBName != "odoo_acme" {
		t.Errorf("DBName = %q, want %q", got.DBName, "odoo_acme")
	}
	if got.DBSecret != "s3cret" {
		t.Errorf("DBSecret = %q, want %q", got.DBSecret, "s3cret")
	}
	if got.Status != domain.StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusPending)
	}
	if got.PaymentDeadline == nil {
		t.Error("PaymentDeadline should be set")
	}
	if got.Limits != domain.PlanBasic.Profile() {
		t.Errorf("Limits = %+v, want basic profile", got.Limits)
	}
}

func TestGetByName_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByName(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestGetByName_CorruptTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	tenant := newTenant("acme")
	tenant.Port = 20000
	mustCreate(t, repo, tenant)

	if _, err := repo.DB().Exec(`UPDATE tenants SET created_at = 'yesterday-ish' WHERE name = 'acme'`); err != nil {
		t.Fatalf("corrupting row: %v", err)
	}

	_, err := repo.GetByName(context.Background(), "acme")
	if err == nil {
		t.Fatal("expected an error for an unparseable created_at")
	}
}

func TestCreate_DuplicateName(t *testing.T) {
	repo := newTestRepo(t)

	first := newTenant("acme")
	first.Port = 20000
	mustCreate(t, repo, first)

	dup := newTenant("acme")
	dup.ID = "id-other"
	dup.Domain = "other.example.com"
	dup.Email = "other@example.com"
	dup.Port = 20001

	err := repo.Create(context.Background(), dup)
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Field != "name" {
		t.Errorf("Field = %q, want %q", conflict.Field, "name")
	}
}

func TestCreate_DuplicatePort(t *testing.T) {
	repo := newTestRepo(t)

	first := newTenant("acme")
	first.Port = 20000
	mustCreate(t, repo, first)

	second := newTenant("globex")
	second.Port = 20000

	err := repo.Create(context.Background(), second)
	var conflict *domain.PortConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected PortConflictError, got %v", err)
	}
}

func TestCreate_PortReusableAfterDeletion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := newTenant("acme")
	first.Port = 20000
	mustCreate(t, repo, first)

	if err := repo.UpdateStatus(ctx, "acme", domain.StatusPending, domain.StatusDeleted, time.Now()); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	second := newTenant("globex")
	second.Port = 20000
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("port held by deleted tenant should be reusable: %v", err)
	}
}

func TestAvailable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tenant := newTenant("acme")
	tenant.Port = 20000
	mustCreate(t, repo, tenant)
	if err := repo.AddDomain(ctx, "acme", "shop.acme.io"); err != nil {
		t.Fatalf("AddDomain failed: %v", err)
	}

	if err := repo.Available(ctx, "globex", "globex.example.com", "globex@example.com"); err != nil {
		t.Errorf("fresh identifiers should be available, got %v", err)
	}

	cases := []struct {
		name, dom, email string
		wantField        string
	}{
		{"acme", "fresh.example.com", "fresh@example.com", "name"},
		{"fresh", "acme.example.com", "fresh@example.com", "domain"},
		{"fresh", "shop.acme.io", "fresh@example.com", "domain"},
		{"fresh", "fresh.example.com", "acme@example.com", "email"},
	}

	for _, tc := range cases {
		err := repo.Available(ctx, tc.name, tc.dom, tc.email)
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			t.Errorf("Available(%q,%q,%q) = %v, want ConflictError", tc.name, tc.dom, tc.email, err)
			continue
		}
		if conflict.Field != tc.wantField {
			t.Errorf("Available(%q,%q,%q) field = %q, want %q", tc.name, tc.dom, tc.email, conflict.Field, tc.wantField)
		}
	}
}

func TestUpdateStatus_CAS(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tenant := newTenant("acme")
	tenant.Port = 20000
	mustCreate(t, repo, tenant)

	now := time.Now().UTC()
	if err := repo.UpdateStatus(ctx, "acme", domain.StatusPending, domain.StatusActive, now); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, err := repo.GetByName(ctx, "acme")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("Status = %q, want %q", got.Status, domain.StatusActive)
	}
	if got.ActivatedAt == nil {
		t.Error("ActivatedAt should be set")
	}
	if got.PaymentDeadline != nil {
		t.Error("PaymentDeadline should be cleared on activation")
	}

	// Stale expected state loses.
	err = repo.UpdateStatus(ctx, "acme", domain.StatusPending, domain.StatusActive, now)
	var conflict *domain.StatusConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected StatusConflictError, got %v", err)
	}
	if conflict.Expected != domain.StatusPending {
		t.Errorf("Expected = %q, want %q", conflict.Expected, domain.StatusPending)
	}
}

func TestUpdateStatus_TimestampBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tenant := newTenant("acme")
	tenant.Port = 20000
	mustCreate(t, repo, tenant)

	now := time.Now().UTC()
	steps := []struct {
		from, to domain.Status
		when     time.Time
	}{
		{domain.StatusPending, domain.StatusActive, now},
		{domain.StatusActive, domain.StatusSuspended, now},
		{domain.StatusSuspended, domain.StatusScheduledForDeletion, now.Add(12 * time.Hour)},
	}
	for _, s := range steps {
		if err := repo.UpdateStatus(ctx, "acme", s.from, s.to, s.when); err != nil {
			t.Fatalf("UpdateStatus(%q → %q) failed: %v", s.from, s.to, err)
		}
	}

	got, _ := repo.GetByName(ctx, "acme")
	if got.SuspendedAt != nil {
		t.Error("SuspendedAt should be cleared when deletion is scheduled")
	}
	if got.DeletionScheduledAt == nil {
		t.Fatal("DeletionScheduledAt should be set")
	}

	// Cancellation: back to active clears the deletion mark.
	if err := repo.UpdateStatus(ctx, "acme", domain.StatusScheduledForDeletion, domain.StatusActive, now); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	got, _ = repo.GetByName(ctx, "acme")
	if got.DeletionScheduledAt != nil {
		t.Error("DeletionScheduledAt should be cleared on cancellation")
	}
	if got.SuspendedAt != nil {
		t.Error("SuspendedAt should remain unset")
	}
}

func TestUpdateStatus_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.UpdateStatus(context.Background(), "ghost", domain.StatusPending, domain.StatusActive, time.Now())
	if !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestAddDomain_Conflicts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acme := newTenant("acme")
	acme.Port = 20000
	mustCreate(t, repo, acme)

	globex := newTenant("globex")
	globex.Port = 20001
	mustCreate(t, repo, globex)

	if err := repo.AddDomain(ctx, "acme", "shop.acme.io"); err != nil {
		t.Fatalf("AddDomain failed: %v", err)
	}

	var conflict *domain.ConflictError

	// Another tenant's custom domain.
	if err := repo.AddDomain(ctx, "globex", "shop.acme.io"); !errors.As(err, &conflict) {
		t.Errorf("expected ConflictError for taken custom domain, got %v", err)
	}

	// Another tenant's primary domain.
	if err := repo.AddDomain(ctx, "globex", "acme.example.com"); !errors.As(err, &conflict) {
		t.Errorf("expected ConflictError for primary domain, got %v", err)
	}

	// Unknown tenant.
	if err := repo.AddDomain(ctx, "ghost", "new.example.com"); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}

	got, err := repo.GetByName(ctx, "acme")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if len(got.CustomDomains) != 1 || got.CustomDomains[0] != "shop.acme.io" {
		t.Errorf("CustomDomains = %v, want [shop.acme.io]", got.CustomDomains)
	}
}

func TestRemoveDomain(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	acme := newTenant("acme")
	acme.Port = 20000
	mustCreate(t, repo, acme)

	if err := repo.AddDomain(ctx, "acme", "shop.acme.io"); err != nil {
		t.Fatalf("AddDomain failed: %v", err)
	}
	if err := repo.RemoveDomain(ctx, "acme", "shop.acme.io"); err != nil {
		t.Fatalf("RemoveDomain failed: %v", err)
	}
	if err := repo.RemoveDomain(ctx, "acme", "shop.acme.io"); !errors.Is(err, domain.ErrDomainNotFound) {
		t.Errorf("expected ErrDomainNotFound, got %v", err)
	}
}

func TestExpiredPending_And_DueForDeletion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Pending, deadline in the past.
	expired := newTenant("expired")
	expired.Port = 20000
	past := now.Add(-time.Hour)
	expired.PaymentDeadline = &past
	mustCreate(t, repo, expired)

	// Pending, deadline in the future.
	fresh := newTenant("fresh")
	fresh.Port = 20001
	mustCreate(t, repo, fresh)

	// Scheduled for deletion, due now.
	doomed := newTenant("doomed")
	doomed.Port = 20002
	mustCreate(t, repo, doomed)
	if err := repo.UpdateStatus(ctx, "doomed", domain.StatusPending, domain.StatusScheduledForDeletion, now.Add(-time.Minute)); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	// Scheduled for deletion, not yet due.
	later := newTenant("later")
	later.Port = 20003
	mustCreate(t, repo, later)
	if err := repo.UpdateStatus(ctx, "later", domain.StatusPending, domain.StatusScheduledForDeletion, now.Add(12*time.Hour)); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	gotExpired, err := repo.ExpiredPending(ctx, now)
	if err != nil {
		t.Fatalf("ExpiredPending failed: %v", err)
	}
	if len(gotExpired) != 1 || gotExpired[0].Name != "expired" {
		t.Errorf("ExpiredPending = %v, want [expired]", names(gotExpired))
	}

	gotDue, err := repo.DueForDeletion(ctx, now)
	if err != nil {
		t.Fatalf("DueForDeletion failed: %v", err)
	}
	if len(gotDue) != 1 || gotDue[0].Name != "doomed" {
		t.Errorf("DueForDeletion = %v, want [doomed]", names(gotDue))
	}

	// A deleted tenant matches neither query.
	if err := repo.UpdateStatus(ctx, "expired", domain.StatusPending, domain.StatusDeleted, now); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	gotExpired, _ = repo.ExpiredPending(ctx, now)
	if len(gotExpired) != 0 {
		t.Errorf("ExpiredPending after deletion = %v, want empty", names(gotExpired))
	}
}

func TestList_FilterByStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tenant := newTenant(fmt.Sprintf("tenant%d", i))
		tenant.Port = 20000 + i
		mustCreate(t, repo, tenant)
	}
	if err := repo.UpdateStatus(ctx, "tenant0", domain.StatusPending, domain.StatusActive, time.Now()); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	active := domain.StatusActive
	got, err := repo.List(ctx, domain.ListFilter{Status: &active})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].Name != "tenant0" {
		t.Errorf("List(active) = %v, want [tenant0]", names(got))
	}
}

func TestCounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		tenant := newTenant(fmt.Sprintf("tenant%d", i))
		tenant.Port = 20000 + i
		mustCreate(t, repo, tenant)
	}
	mustUpdateStatus(t, repo, "tenant0", domain.StatusPending, domain.StatusActive)
	mustUpdateStatus(t, repo, "tenant1", domain.StatusPending, domain.StatusActive)
	mustUpdateStatus(t, repo, "tenant1", domain.StatusActive, domain.StatusSuspended)
	mustUpdateStatus(t, repo, "tenant2", domain.StatusPending, domain.StatusDeleted)

	stats, err := repo.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}

	want := domain.FleetStats{Total: 3, Pending: 1, Active: 1, Suspended: 1}
	if stats != want {
		t.Errorf("Counts = %+v, want %+v", stats, want)
	}
}

func mustUpdateStatus(t *testing.T, repo *sqlite.TenantRepository, name string, from, to domain.Status) {
	t.Helper()
	if err := repo.UpdateStatus(context.Background(), name, from, to, time.Now()); err != nil {
		t.Fatalf("UpdateStatus(%s, %s→%s) failed: %v", name, from, to, err)
	}
}

func names(tenants []domain.Tenant) []string {
	out := make([]string, len(tenants))
	for i, t := range tenants {
		out[i] = t.Name
	}
	return out
}

// --- Port allocator ---

func TestPortAllocator_Sequential(t *testing.T) {
	repo := newTestRepo(t)
	alloc := sqlite.NewPortAllocator(repo.DB(), 20000)
	ctx := context.Background()

	first, err := alloc.Allocate(ctx, "acme")
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if first != 20000 {
		t.Errorf("first port = %d, want %d", first, 20000)
	}

	second, err := alloc.Allocate(ctx, "globex")
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if second != 20001 {
		t.Errorf("second port = %d, want %d", second, 20001)
	}
}

func TestPortAllocator_ReleaseAllowsReuse(t *testing.T) {
	repo := newTestRepo(t)
	alloc := sqlite.NewPortAllocator(repo.DB(), 20000)
	ctx := context.Background()

	port, err := alloc.Allocate(ctx, "acme")
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := alloc.Release(ctx, port); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// Releasing again is a no-op.
	if err := alloc.Release(ctx, port); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}

	got, err := alloc.Allocate(ctx, "globex")
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if got != port {
		t.Errorf("reallocated port = %d, want released %d", got, port)
	}
}

func TestPortAllocator_Concurrent(t *testing.T) {
	dbPath := t.TempDir() + "/alloc_test.db"
	repo, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("creating repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	alloc := sqlite.NewPortAllocator(repo.DB(), 20000)
	ctx := context.Background()

	const n = 20
	var mu sync.Mutex
	seen := make(map[int]string, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("tenant%d", i)
			port, err := alloc.Allocate(ctx, name)
			if err != nil {
				t.Errorf("Allocate(%s) failed: %v", name, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, dup := seen[port]; dup {
				t.Errorf("port %d handed to both %s and %s", port, prev, name)
			}
			seen[port] = name
		}(i)
	}
	wg.Wait()
}
