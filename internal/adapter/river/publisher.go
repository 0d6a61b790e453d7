// Package river runs the orchestrator's background work on a
// database-backed job queue: event fan-out, asynchronous activation
// after payment, backup dumps, and the periodic expiry sweep.
package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// EventJobArgs carries a domain event into the queue. River serializes
// this as JSON into its job table; the snapshot fields spare the worker
// a tenant lookup.
type EventJobArgs struct {
	Event  string `json:"event"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Status string `json:"status"`
	Plan   string `json:"plan"`
	Port   int    `json:"port"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (EventJobArgs) Kind() string { return "event.published" }

// ActivateJobArgs asks for a stack bring-up after a confirmed payment.
type ActivateJobArgs struct {
	Name string `json:"name"`
}

func (ActivateJobArgs) Kind() string { return "tenant.activate" }

// BackupJobArgs executes one previously recorded backup request.
type BackupJobArgs struct {
	Reference string `json:"reference"`
}

func (BackupJobArgs) Kind() string { return "tenant.backup" }

// SweepJobArgs triggers an expiry sweep pass. Enqueued periodically.
type SweepJobArgs struct{}

func (SweepJobArgs) Kind() string { return "tenant.sweep" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
// A payment confirmation additionally queues the tenant's activation,
// which is where the asynchronous bring-up actually starts.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a domain event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, tenant domain.Tenant) error {
	_, err := p.client.Insert(ctx, EventJobArgs{
		Event:  string(event),
		Name:   tenant.Name,
		Domain: tenant.Domain,
		Status: string(tenant.Status),
		Plan:   string(tenant.Plan),
		Port:   tenant.Port,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}

	if event == domain.EventPaymentConfirmed {
		if _, err := p.client.Insert(ctx, ActivateJobArgs{Name: tenant.Name}, nil); err != nil {
			return fmt.Errorf("enqueuing activation job: %w", err)
		}
	}
	return nil
}

// EnqueueBackup queues the dump for a recorded backup request.
func (p *Publisher) EnqueueBackup(ctx context.Context, reference string) error {
	if _, err := p.client.Insert(ctx, BackupJobArgs{Reference: reference}, nil); err != nil {
		return fmt.Errorf("enqueuing backup job: %w", err)
	}
	return nil
}
