package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// Compile-time check: PortAllocator implements domain.PortAllocator.
var _ domain.PortAllocator = (*PortAllocator)(nil)

// PortAllocator hands out tenant ports from a durable arena table.
// The ports table's primary key is the uniqueness constraint: a race
// between two allocations resolves as a constraint violation on one
// side, which retries with the next candidate. This replaces scanning
// on-disk artifacts for "max port + 1", which is unsafe under
// concurrent creation and after deletions.
type PortAllocator struct {
	db    *sql.DB
	start int
}

const allocateRetries = 5

// NewPortAllocator creates an allocator that hands out ports from start
// upward.
func NewPortAllocator(db *sql.DB, start int) *PortAllocator {
	return &PortAllocator{db: db, start: start}
}

// Allocate reserves the lowest unused port at or above the range start.
// Safe under concurrent calls: the insert either commits the reservation
// or fails the uniqueness constraint, in which case the next candidate
// is tried.
func (a *PortAllocator) Allocate(ctx context.Context, tenantName string) (int, error) {
	var lastErr error
	for attempt := 0; attempt < allocateRetries; attempt++ {
		port, err := a.nextCandidate(ctx)
		if err != nil {
			return 0, err
		}

		_, err = a.db.ExecContext(ctx,
			`INSERT INTO ports (port, tenant_name, allocated_at) VALUES (?, ?, ?)`,
			port, tenantName, time.Now().UTC().Format(timeFormat),
		)
		if err == nil {
			return port, nil
		}
		if _, ok := uniqueViolationField(err); ok {
			lastErr = &domain.PortConflictError{Port: port}
			continue
		}
		return 0, fmt.Errorf("reserving port: %w", err)
	}
	return 0, fmt.Errorf("allocating port after %d attempts: %w", allocateRetries, lastErr)
}

func (a *PortAllocator) nextCandidate(ctx context.Context) (int, error) {
	var port int
	err := a.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(port) + 1, ?) FROM ports`, a.start,
	).Scan(&port)
	if err != nil {
		return 0, fmt.Errorf("finding next port: %w", err)
	}
	if port < a.start {
		port = a.start
	}
	return port, nil
}

// Release frees a port for reuse. Releasing an unallocated port is a no-op.
func (a *PortAllocator) Release(ctx context.Context, port int) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM ports WHERE port = ?`, port); err != nil {
		return fmt.Errorf("releasing port %d: %w", port, err)
	}
	return nil
}
