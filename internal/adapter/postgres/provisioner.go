// Package postgres manages per-tenant databases and roles on the shared
// external PostgreSQL server.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// Duplicate-object SQLSTATE codes. Hitting one means a prior attempt
// already did the work, which the contract counts as success.
const (
	codeDuplicateDatabase = "42P04"
	codeDuplicateObject   = "42710"
)

// Provisioner creates and drops tenant databases over an admin
// connection pool.
type Provisioner struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.DatabaseProvisioner = (*Provisioner)(nil)

// New opens an admin connection pool from a DSN. The role behind the
// DSN needs CREATEDB and CREATEROLE.
func New(dsn string, logger *slog.Logger) (*Provisioner, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening admin connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{db: db, logger: logger}, nil
}

func (p *Provisioner) Close() error {
	return p.db.Close()
}

// CreateDatabase creates the role and its database. Identifiers cannot
// be bound as parameters, so they are quoted; the secret rides as a
// literal inside the CREATE USER statement.
func (p *Provisioner) CreateDatabase(ctx context.Context, name, role, secret string) error {
	createUser := fmt.Sprintf("CREATE USER %s WITH PASSWORD %s",
		pq.QuoteIdentifier(role), pq.QuoteLiteral(secret))
	if err := p.exec(ctx, createUser); err != nil {
		return fmt.Errorf("creating role %s: %w", role, err)
	}

	createDB := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pq.QuoteIdentifier(name), pq.QuoteIdentifier(role))
	if err := p.exec(ctx, createDB); err != nil {
		return fmt.Errorf("creating database %s: %w", name, err)
	}

	p.logger.Info("provisioned tenant database", "database", name, "role", role)
	return nil
}

// DropDatabase removes the database and role. Both statements tolerate
// absence.
func (p *Provisioner) DropDatabase(ctx context.Context, name, role string) error {
	dropDB := fmt.Sprintf("DROP DATABASE IF EXISTS %s", pq.QuoteIdentifier(name))
	if _, err := p.db.ExecContext(ctx, dropDB); err != nil {
		return fmt.Errorf("dropping database %s: %w", name, err)
	}

	dropUser := fmt.Sprintf("DROP USER IF EXISTS %s", pq.QuoteIdentifier(role))
	if _, err := p.db.ExecContext(ctx, dropUser); err != nil {
		return fmt.Errorf("dropping role %s: %w", role, err)
	}

	p.logger.Info("dropped tenant database", "database", name, "role", role)
	return nil
}

// exec swallows duplicate-object errors so re-entrant provisioning
// converges instead of failing.
func (p *Provisioner) exec(ctx context.Context, query string) error {
	_, err := p.db.ExecContext(ctx, query)
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeDuplicateDatabase, codeDuplicateObject:
			return nil
		}
	}
	return err
}
