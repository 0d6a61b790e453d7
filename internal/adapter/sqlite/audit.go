package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// Compile-time check: AuditStore implements domain.AuditLog.
var _ domain.AuditLog = (*AuditStore)(nil)

// AuditStore appends to the operator audit trail.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an audit store over the shared connection.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Record(ctx context.Context, entry domain.AuditEntry) error {
	at := entry.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (tenant_name, action, details, actor, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		entry.TenantName, entry.Action, entry.Details, entry.Actor, at.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// ListForTenant returns the audit trail for one tenant, newest first.
func (s *AuditStore) ListForTenant(ctx context.Context, tenantName string, limit int) ([]domain.AuditEntry, error) {
	query := `SELECT tenant_name, action, details, actor, created_at
	          FROM audit_log WHERE tenant_name = ? ORDER BY id DESC`
	args := []any{tenantName}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var createdAt string
		if err := rows.Scan(&e.TenantName, &e.Action, &e.Details, &e.Actor, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
