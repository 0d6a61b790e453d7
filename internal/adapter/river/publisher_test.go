package river_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"

	_ "modernc.org/sqlite"

	riveradapter "github.com/neomorfeo/stackhost/internal/adapter/river"
	"github.com/neomorfeo/stackhost/internal/app"
	"github.com/neomorfeo/stackhost/internal/domain"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := t.TempDir() + "/river_test.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("setting WAL: %v", err)
	}

	return db
}

type stubActivator struct {
	mu        sync.Mutex
	activated []string
}

func (s *stubActivator) Activate(_ context.Context, name string) (domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated = append(s.activated, name)
	return domain.Tenant{Name: name, Status: domain.StatusActive}, nil
}

type stubBackupper struct {
	mu   sync.Mutex
	runs []string
}

func (s *stubBackupper) Run(_ context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, reference)
	return nil
}

type stubSweeper struct{}

func (stubSweeper) Sweep(_ context.Context) (app.SweepSummary, error) {
	return app.SweepSummary{}, nil
}

type stubAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (s *stubAudit) Record(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubAudit) ListForTenant(_ context.Context, name string, _ int) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.TenantName == name {
			out = append(out, e)
		}
	}
	return out, nil
}

type testFixture struct {
	client    *riveradapter.Client
	activator *stubActivator
	backupper *stubBackupper
	audit     *stubAudit
}

func setupClient(t *testing.T, db *sql.DB) *testFixture {
	t.Helper()

	f := &testFixture{
		activator: &stubActivator{},
		backupper: &stubBackupper{},
		audit:     &stubAudit{},
	}
	client, err := riveradapter.Setup(context.Background(), db, riveradapter.Deps{
		Activator:     f.activator,
		Backupper:     f.backupper,
		Sweeper:       stubSweeper{},
		Audit:         f.audit,
		SweepInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}
	f.client = client
	return f
}

func startClient(t *testing.T, client *riveradapter.Client) {
	t.Helper()
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})
}

func waitForKind(t *testing.T, ch <-chan *goriver.Event, kind string) *goriver.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event := <-ch:
			if event.Job.Kind == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s job completion", kind)
		}
	}
}

func TestPublisher_Publish_EnqueuesJob(t *testing.T) {
	db := setupTestDB(t)
	f := setupClient(t, db)
	ctx := context.Background()

	// Subscribe to job completions before starting so we don't miss events.
	subscribeChan, subscribeCancel := f.client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()
	startClient(t, f.client)

	pub := riveradapter.NewPublisher(f.client)
	tenant := domain.NewTenant("t-1", "acme", "acme.example.com", "acme@example.com",
		domain.PlanBasic, false, 72*time.Hour)

	if err := pub.Publish(ctx, domain.EventSuspend, tenant); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	event := waitForKind(t, subscribeChan, "event.published")

	// Verify the job carried the right args by checking the encoded JSON.
	argsStr := string(event.Job.EncodedArgs)
	for _, want := range []string{`"event":"suspend"`, `"name":"acme"`, `"plan":"basic"`} {
		if !strings.Contains(argsStr, want) {
			t.Errorf("encoded args missing %s, got: %s", want, argsStr)
		}
	}
}

func TestEventWorker_RecordsAudit(t *testing.T) {
	db := setupTestDB(t)
	f := setupClient(t, db)
	ctx := context.Background()

	subscribeChan, subscribeCancel := f.client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()
	startClient(t, f.client)

	pub := riveradapter.NewPublisher(f.client)
	tenant := domain.NewTenant("t-2", "globex", "globex.example.com", "globex@example.com",
		domain.PlanBusiness, false, 72*time.Hour)

	if err := pub.Publish(ctx, domain.EventScheduleDelete, tenant); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitForKind(t, subscribeChan, "event.published")

	entries, _ := f.audit.ListForTenant(ctx, "globex", 0)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].Action != "event_schedule_delete" {
		t.Errorf("Action = %q, want %q", entries[0].Action, "event_schedule_delete")
	}
}

func TestPublisher_PaymentConfirmedQueuesActivation(t *testing.T) {
	db := setupTestDB(t)
	f := setupClient(t, db)
	ctx := context.Background()

	subscribeChan, subscribeCancel := f.client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()
	startClient(t, f.client)

	pub := riveradapter.NewPublisher(f.client)
	tenant := domain.NewTenant("t-3", "acme", "acme.example.com", "acme@example.com",
		domain.PlanBasic, false, 72*time.Hour)

	if err := pub.Publish(ctx, domain.EventPaymentConfirmed, tenant); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitForKind(t, subscribeChan, "tenant.activate")

	f.activator.mu.Lock()
	defer f.activator.mu.Unlock()
	if len(f.activator.activated) != 1 || f.activator.activated[0] != "acme" {
		t.Errorf("activated = %v, want [acme]", f.activator.activated)
	}
}

func TestPublisher_EnqueueBackup(t *testing.T) {
	db := setupTestDB(t)
	f := setupClient(t, db)
	ctx := context.Background()

	subscribeChan, subscribeCancel := f.client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()
	startClient(t, f.client)

	pub := riveradapter.NewPublisher(f.client)
	if err := pub.EnqueueBackup(ctx, "ref-123"); err != nil {
		t.Fatalf("EnqueueBackup failed: %v", err)
	}
	waitForKind(t, subscribeChan, "tenant.backup")

	f.backupper.mu.Lock()
	defer f.backupper.mu.Unlock()
	if len(f.backupper.runs) != 1 || f.backupper.runs[0] != "ref-123" {
		t.Errorf("runs = %v, want [ref-123]", f.backupper.runs)
	}
}
