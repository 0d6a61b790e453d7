package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// TenantRepository implements domain.TenantRepository using SQLite.
type TenantRepository struct {
	db *sql.DB
}

// Compile-time check: TenantRepository implements domain.TenantRepository.
var _ domain.TenantRepository = (*TenantRepository)(nil)

// New opens a SQLite database, runs migrations, and returns a ready repository.
func New(dataSourceName string) (*TenantRepository, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection avoids SQLITE_BUSY when the DB is shared with
	// the embedded job queue, and serializes writes.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready repository.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*TenantRepository, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &TenantRepository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *TenantRepository) Close() error {
	return r.db.Close()
}

// DB returns the underlying database connection for use by other adapters
// (port allocator, payment/backup/audit stores, river).
func (r *TenantRepository) DB() *sql.DB {
	return r.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = "2006-01-02T15:04:05Z"

const tenantColumns = `id, name, domain, email, port, db_name, db_user, db_secret,
	plan, memory_limit, db_memory_limit, cpu_limit, db_cpu_limit, cache_enabled,
	status, retention_daily, retention_weekly, retention_monthly,
	payment_deadline, activated_at, suspended_at, deletion_scheduled_at,
	created_at, updated_at`

func (r *TenantRepository) Create(ctx context.Context, t domain.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Domain, t.Email, t.Port, t.DBName, t.DBUser, t.DBSecret,
		string(t.Plan), t.Limits.MemoryLimit, t.Limits.DBMemoryLimit, t.Limits.CPULimit, t.Limits.DBCPULimit, boolToInt(t.CacheEnabled),
		string(t.Status), t.Retention.Daily, t.Retention.Weekly, t.Retention.Monthly,
		nullTime(t.PaymentDeadline), nullTime(t.ActivatedAt), nullTime(t.SuspendedAt), nullTime(t.DeletionScheduledAt),
		t.CreatedAt.Format(timeFormat), t.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			if field == "port" {
				return &domain.PortConflictError{Port: t.Port}
			}
			return &domain.ConflictError{Field: field, Value: tenantFieldValue(t, field)}
		}
		return fmt.Errorf("inserting tenant: %w", err)
	}
	return nil
}

func (r *TenantRepository) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	t, err := r.scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE name = ?`, name,
	))
	if err != nil {
		return domain.Tenant{}, err
	}

	t.CustomDomains, err = r.customDomains(ctx, t.Name)
	if err != nil {
		return domain.Tenant{}, err
	}
	return t, nil
}

func (r *TenantRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants`
	var args []any

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	return r.queryTenants(ctx, query, args...)
}

func (r *TenantRepository) Update(ctx context.Context, t domain.Tenant) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET email = ?, plan = ?, memory_limit = ?, db_memory_limit = ?,
		 cpu_limit = ?, db_cpu_limit = ?, cache_enabled = ?,
		 retention_daily = ?, retention_weekly = ?, retention_monthly = ?, updated_at = ?
		 WHERE name = ?`,
		t.Email, string(t.Plan), t.Limits.MemoryLimit, t.Limits.DBMemoryLimit,
		t.Limits.CPULimit, t.Limits.DBCPULimit, boolToInt(t.CacheEnabled),
		t.Retention.Daily, t.Retention.Weekly, t.Retention.Monthly,
		time.Now().UTC().Format(timeFormat), t.Name,
	)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return &domain.ConflictError{Field: field, Value: tenantFieldValue(t, field)}
		}
		return fmt.Errorf("updating tenant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrTenantNotFound
	}

	return nil
}

func (r *TenantRepository) Available(ctx context.Context, name, dom, email string) error {
	row := r.db.QueryRowContext(ctx,
		`SELECT
			EXISTS(SELECT 1 FROM tenants WHERE name = ?),
			EXISTS(SELECT 1 FROM tenants WHERE domain = ?),
			EXISTS(SELECT 1 FROM tenants WHERE email = ?),
			EXISTS(SELECT 1 FROM tenant_domains WHERE domain = ?)`,
		name, dom, email, dom,
	)

	var nameTaken, domainTaken, emailTaken, customTaken bool
	if err := row.Scan(&nameTaken, &domainTaken, &emailTaken, &customTaken); err != nil {
		return fmt.Errorf("checking availability: %w", err)
	}

	switch {
	case nameTaken:
		return &domain.ConflictError{Field: "name", Value: name}
	case domainTaken, customTaken:
		return &domain.ConflictError{Field: "domain", Value: dom}
	case emailTaken:
		return &domain.ConflictError{Field: "email", Value: email}
	}
	return nil
}

// UpdateStatus performs the compare-and-set transition write. The columns
// touched depend on the destination state:
//   - active: clears suspension/deletion marks and the payment deadline,
//     records first activation time
//   - suspended: records suspension time
//   - scheduled_for_deletion: records the chosen deletion time, clears the
//     suspension mark
//   - deleted: clears both marks
func (r *TenantRepository) UpdateStatus(ctx context.Context, name string, from, to domain.Status, when time.Time) error {
	var set string
	args := []any{string(to)}

	ts := when.UTC().Format(timeFormat)
	switch to {
	case domain.StatusActive:
		set = `status = ?, activated_at = COALESCE(activated_at, ?),
		       suspended_at = NULL, deletion_scheduled_at = NULL, payment_deadline = NULL`
		args = append(args, ts)
	case domain.StatusSuspended:
		set = `status = ?, suspended_at = ?`
		args = append(args, ts)
	case domain.StatusScheduledForDeletion:
		set = `status = ?, deletion_scheduled_at = ?, suspended_at = NULL`
		args = append(args, ts)
	case domain.StatusDeleted:
		set = `status = ?, suspended_at = NULL, deletion_scheduled_at = NULL`
	default:
		set = `status = ?`
	}

	args = append(args, time.Now().UTC().Format(timeFormat), name, string(from))

	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET `+set+`, updated_at = ? WHERE name = ? AND status = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("updating tenant status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		// Either the tenant is gone or it left the expected state.
		if _, err := r.GetByName(ctx, name); err != nil {
			return err
		}
		return &domain.StatusConflictError{Name: name, Expected: from}
	}

	return nil
}

func (r *TenantRepository) AddDomain(ctx context.Context, name, dom string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenants WHERE name = ?)`, name,
	).Scan(&exists); err != nil {
		return fmt.Errorf("checking tenant: %w", err)
	}
	if !exists {
		return domain.ErrTenantNotFound
	}

	// A custom domain may never shadow any tenant's primary domain. The
	// tenant_domains primary key covers collisions between custom domains.
	var primaryTaken bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tenants WHERE domain = ?)`, dom,
	).Scan(&primaryTaken); err != nil {
		return fmt.Errorf("checking primary domains: %w", err)
	}
	if primaryTaken {
		return &domain.ConflictError{Field: "domain", Value: dom}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tenant_domains (domain, tenant_name, created_at) VALUES (?, ?, ?)`,
		dom, name, time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		if _, ok := uniqueViolationField(err); ok {
			return &domain.ConflictError{Field: "domain", Value: dom}
		}
		return fmt.Errorf("inserting custom domain: %w", err)
	}

	return tx.Commit()
}

func (r *TenantRepository) RemoveDomain(ctx context.Context, name, dom string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tenant_domains WHERE domain = ? AND tenant_name = ?`,
		dom, name,
	)
	if err != nil {
		return fmt.Errorf("removing custom domain: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrDomainNotFound
	}
	return nil
}

func (r *TenantRepository) ExpiredPending(ctx context.Context, now time.Time) ([]domain.Tenant, error) {
	return r.queryTenants(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE status = ? AND payment_deadline IS NOT NULL AND payment_deadline <= ?
		 ORDER BY payment_deadline`,
		string(domain.StatusPending), now.UTC().Format(timeFormat),
	)
}

func (r *TenantRepository) DueForDeletion(ctx context.Context, now time.Time) ([]domain.Tenant, error) {
	return r.queryTenants(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE status = ? AND deletion_scheduled_at IS NOT NULL AND deletion_scheduled_at <= ?
		 ORDER BY deletion_scheduled_at`,
		string(domain.StatusScheduledForDeletion), now.UTC().Format(timeFormat),
	)
}

func (r *TenantRepository) Counts(ctx context.Context) (domain.FleetStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tenants WHERE status != ? GROUP BY status`,
		string(domain.StatusDeleted),
	)
	if err != nil {
		return domain.FleetStats{}, fmt.Errorf("counting tenants: %w", err)
	}
	defer rows.Close()

	var stats domain.FleetStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return domain.FleetStats{}, fmt.Errorf("scanning counts: %w", err)
		}
		stats.Total += count
		switch domain.Status(status) {
		case domain.StatusPending:
			stats.Pending = count
		case domain.StatusActive:
			stats.Active = count
		case domain.StatusSuspended:
			stats.Suspended = count
		case domain.StatusScheduledForDeletion:
			stats.ScheduledForDeletion = count
		}
	}
	return stats, rows.Err()
}

func (r *TenantRepository) queryTenants(ctx context.Context, query string, args ...any) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenantColumns(rows.Scan)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tenants {
		tenants[i].CustomDomains, err = r.customDomains(ctx, tenants[i].Name)
		if err != nil {
			return nil, err
		}
	}
	return tenants, nil
}

func (r *TenantRepository) customDomains(ctx context.Context, name string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT domain FROM tenant_domains WHERE tenant_name = ? ORDER BY created_at, domain`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("querying custom domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning custom domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// scanTenant scans a single row from QueryRow into a domain.Tenant.
func (r *TenantRepository) scanTenant(row *sql.Row) (domain.Tenant, error) {
	t, err := scanTenantColumns(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, err
}

func scanTenantColumns(scan func(...any) error) (domain.Tenant, error) {
	var t domain.Tenant
	var plan, status, createdAt, updatedAt string
	var cacheEnabled int
	var paymentDeadline, activatedAt, suspendedAt, deletionScheduledAt sql.NullString

	err := scan(
		&t.ID, &t.Name, &t.Domain, &t.Email, &t.Port, &t.DBName, &t.DBUser, &t.DBSecret,
		&plan, &t.Limits.MemoryLimit, &t.Limits.DBMemoryLimit, &t.Limits.CPULimit, &t.Limits.DBCPULimit, &cacheEnabled,
		&status, &t.Retention.Daily, &t.Retention.Weekly, &t.Retention.Monthly,
		&paymentDeadline, &activatedAt, &suspendedAt, &deletionScheduledAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Tenant{}, err
		}
		return domain.Tenant{}, fmt.Errorf("scanning tenant: %w", err)
	}

	t.Plan = domain.Plan(plan)
	t.Status = domain.Status(status)
	t.CacheEnabled = cacheEnabled != 0
	t.PaymentDeadline = parseNullTime(paymentDeadline)
	t.ActivatedAt = parseNullTime(activatedAt)
	t.SuspendedAt = parseNullTime(suspendedAt)
	t.DeletionScheduledAt = parseNullTime(deletionScheduledAt)
	if t.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("parsing created_at for %s: %w", t.Name, err)
	}
	if t.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return domain.Tenant{}, fmt.Errorf("parsing updated_at for %s: %w", t.Name, err)
	}

	return t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func tenantFieldValue(t domain.Tenant, field string) string {
	switch field {
	case "name":
		return t.Name
	case "domain":
		return t.Domain
	case "email":
		return t.Email
	}
	return ""
}

// uniqueViolationField extracts the violated column from a SQLite UNIQUE
// constraint error ("UNIQUE constraint failed: tenants.name").
func uniqueViolationField(err error) (string, bool) {
	msg := err.Error()
	idx := strings.Index(msg, "UNIQUE constraint failed: ")
	if idx < 0 {
		return "", false
	}
	col := msg[idx+len("UNIQUE constraint failed: "):]
	if i := strings.IndexByte(col, ','); i >= 0 {
		col = col[:i]
	}
	col = strings.TrimSpace(col)
	if i := strings.LastIndexByte(col, '.'); i >= 0 {
		col = col[i+1:]
	}
	// The partial port index reports the index name instead of a column.
	if strings.Contains(msg, "idx_tenants_port_live") {
		col = "port"
	}
	return col, true
}
