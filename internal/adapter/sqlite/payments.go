package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// Compile-time check: PaymentStore implements domain.PaymentRepository.
var _ domain.PaymentRepository = (*PaymentStore)(nil)

// PaymentStore persists payment trigger records.
type PaymentStore struct {
	db *sql.DB
}

// NewPaymentStore creates a payment store over the shared connection.
func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{db: db}
}

func (s *PaymentStore) Record(ctx context.Context, p domain.Payment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO payments (reference, tenant_name, amount_cents, currency, status, created_at, confirmed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Reference, p.TenantName, p.AmountCents, p.Currency, p.Status,
		p.CreatedAt.UTC().Format(timeFormat), nullTime(p.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}
	return nil
}

func (s *PaymentStore) GetByReference(ctx context.Context, reference string) (domain.Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT reference, tenant_name, amount_cents, currency, status, created_at, confirmed_at
		 FROM payments WHERE reference = ?`, reference,
	)

	var p domain.Payment
	var createdAt string
	var confirmedAt sql.NullString
	err := row.Scan(&p.Reference, &p.TenantName, &p.AmountCents, &p.Currency, &p.Status, &createdAt, &confirmedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("scanning payment: %w", err)
	}

	p.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	p.ConfirmedAt = parseNullTime(confirmedAt)
	return p, nil
}

func (s *PaymentStore) MarkConfirmed(ctx context.Context, reference string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE payments SET status = 'confirmed', confirmed_at = ? WHERE reference = ?`,
		at.UTC().Format(timeFormat), reference,
	)
	if err != nil {
		return fmt.Errorf("confirming payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}
