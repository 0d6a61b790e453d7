package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// Compile-time check: BackupStore implements domain.BackupRepository.
var _ domain.BackupRepository = (*BackupStore)(nil)

// BackupStore persists backup records.
type BackupStore struct {
	db *sql.DB
}

// NewBackupStore creates a backup store over the shared connection.
func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

const backupColumns = `reference, tenant_name, kind, filename, size_mb, status, error, created_at, completed_at`

func (s *BackupStore) Record(ctx context.Context, b domain.Backup) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (`+backupColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Reference, b.TenantName, b.Kind, b.Filename, b.SizeMB, b.Status, b.Error,
		b.CreatedAt.UTC().Format(timeFormat), nullTime(b.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting backup: %w", err)
	}
	return nil
}

func (s *BackupStore) Update(ctx context.Context, b domain.Backup) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE backups SET filename = ?, size_mb = ?, status = ?, error = ?, completed_at = ?
		 WHERE reference = ?`,
		b.Filename, b.SizeMB, b.Status, b.Error, nullTime(b.CompletedAt), b.Reference,
	)
	if err != nil {
		return fmt.Errorf("updating backup: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("backup %q not found", b.Reference)
	}
	return nil
}

func (s *BackupStore) GetByReference(ctx context.Context, reference string) (domain.Backup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE reference = ?`, reference,
	)
	b, err := scanBackup(row.Scan)
	if err == sql.ErrNoRows {
		return domain.Backup{}, fmt.Errorf("backup %q not found", reference)
	}
	return b, err
}

func (s *BackupStore) ListForTenant(ctx context.Context, tenantName string) ([]domain.Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backupColumns+` FROM backups WHERE tenant_name = ? ORDER BY created_at DESC`,
		tenantName,
	)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	defer rows.Close()

	var backups []domain.Backup
	for rows.Next() {
		b, err := scanBackup(rows.Scan)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

func scanBackup(scan func(...any) error) (domain.Backup, error) {
	var b domain.Backup
	var createdAt string
	var completedAt sql.NullString

	err := scan(&b.Reference, &b.TenantName, &b.Kind, &b.Filename, &b.SizeMB, &b.Status, &b.Error, &createdAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Backup{}, err
		}
		return domain.Backup{}, fmt.Errorf("scanning backup: %w", err)
	}

	b.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	b.CompletedAt = parseNullTime(completedAt)
	return b, nil
}
