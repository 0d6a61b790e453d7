package domain

import (
	"context"
	"time"
)

// TenantRepository defines the persistence contract for tenants.
// Status changes go through UpdateStatus exclusively: a compare-and-set
// keyed on the expected current status, so concurrent operations on the
// same tenant resolve by conflict instead of lost updates.
type TenantRepository interface {
	Create(ctx context.Context, tenant Tenant) error
	GetByName(ctx context.Context, name string) (Tenant, error)
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
	Update(ctx context.Context, tenant Tenant) error

	// Available reports whether name, domain, and email are all unused.
	// A taken field yields a ConflictError.
	Available(ctx context.Context, name, domain, email string) error

	// UpdateStatus transitions name from expected "from" to "to", recording
	// "when" as the timestamp relevant to the new state (activation time,
	// suspension time, or scheduled deletion time). Returns a
	// StatusConflictError when the tenant is no longer in "from".
	UpdateStatus(ctx context.Context, name string, from, to Status, when time.Time) error

	// AddDomain and RemoveDomain manage custom domains. Uniqueness against
	// every tenant's primary and custom domains is enforced at commit.
	AddDomain(ctx context.Context, name, domain string) error
	RemoveDomain(ctx context.Context, name, domain string) error

	// ExpiredPending returns pending tenants whose payment deadline has
	// passed; DueForDeletion returns scheduled tenants whose deletion time
	// has passed. Deleted tenants never match either.
	ExpiredPending(ctx context.Context, now time.Time) ([]Tenant, error)
	DueForDeletion(ctx context.Context, now time.Time) ([]Tenant, error)

	Counts(ctx context.Context) (FleetStats, error)
}

// ListFilter holds optional criteria for listing tenants.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// FleetStats summarizes the tenant fleet by status.
type FleetStats struct {
	Total                int
	Pending              int
	Active               int
	Suspended            int
	ScheduledForDeletion int
}

// PortAllocator hands out process-unique network ports backed by a
// uniqueness constraint. Allocate never returns the same port to two
// concurrent callers; Release frees the slot for reuse.
type PortAllocator interface {
	Allocate(ctx context.Context, tenantName string) (int, error)
	Release(ctx context.Context, port int) error
}

// StackRuntime is the container runtime contract. All three operations
// are idempotent against an absent stack.
type StackRuntime interface {
	Start(ctx context.Context, tenantName string) error
	Stop(ctx context.Context, tenantName string) error
	// Remove tears down containers, volumes, and the tenant's local state
	// directory.
	Remove(ctx context.Context, tenantName string) error
}

// ContainerStat is a point-in-time reading for one container of a stack.
type ContainerStat struct {
	ContainerID string
	Name        string
	State       string
	CPUPercent  float64
	MemoryBytes uint64
	MemoryLimit uint64
}

// StackInspector reports runtime state for a tenant's containers.
type StackInspector interface {
	Stats(ctx context.Context, tenantName string) ([]ContainerStat, error)
}

// DatabaseDumper produces a logical dump of a tenant's database into
// destPath on the control-plane host.
type DatabaseDumper interface {
	Dump(ctx context.Context, tenant Tenant, destPath string) error
}

// DatabaseProvisioner manages per-tenant databases on the shared external
// database server. CreateDatabase treats "already exists" as success;
// DropDatabase treats "does not exist" as success.
type DatabaseProvisioner interface {
	CreateDatabase(ctx context.Context, name, role, secret string) error
	DropDatabase(ctx context.Context, name, role string) error
}

// Proxy manages the reverse-proxy routing unit for a tenant: one config
// unit covering all of the tenant's domains.
type Proxy interface {
	WriteRoutingUnit(ctx context.Context, tenantName string, domains []string, upstreamPort int) (string, error)
	RemoveRoutingUnit(ctx context.Context, tenantName string) error
	Reload(ctx context.Context) error
}

// CertificateIssuer requests a certificate for a domain. Failures are
// non-fatal to every caller: the domain stays reachable over the prior
// scheme.
type CertificateIssuer interface {
	Issue(ctx context.Context, domain, contactEmail string) error
}

// ArtifactStore persists generated stack artifacts under the tenant's
// state directory. Remove is a no-op for an absent directory.
type ArtifactStore interface {
	Write(ctx context.Context, tenantName string, artifacts Artifacts) error
	Remove(ctx context.Context, tenantName string) error
}

// Artifacts are the declarative files a stack needs: regenerable derived
// state, never authoritative.
type Artifacts struct {
	ComposeSpec   []byte
	EnvFile       []byte
	RoutingConfig []byte
}

// EventPublisher defines the contract for emitting domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event Event, tenant Tenant) error
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	Email string
	Admin bool
}

// Authorizer answers the two questions the orchestrator needs from the
// credential collaborator.
type Authorizer interface {
	IsOwner(tenant Tenant, caller Identity) bool
	IsAdmin(caller Identity) bool
}

// Payment is the orchestrator's read-model of a payment record. Its
// lifecycle is owned by the payment collaborator; here it is only a
// trigger signal.
type Payment struct {
	Reference   string
	TenantName  string
	AmountCents int64
	Currency    string
	Status      string // "pending" or "confirmed"
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// PaymentRepository persists payment trigger records.
type PaymentRepository interface {
	Record(ctx context.Context, p Payment) error
	GetByReference(ctx context.Context, reference string) (Payment, error)
	MarkConfirmed(ctx context.Context, reference string, at time.Time) error
}

// Backup records one backup run for a tenant.
type Backup struct {
	Reference   string
	TenantName  string
	Kind        string // "manual", "daily", "weekly", "monthly"
	Filename    string
	SizeMB      float64
	Status      string // "pending", "completed", "failed"
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// BackupRepository persists backup records.
type BackupRepository interface {
	Record(ctx context.Context, b Backup) error
	Update(ctx context.Context, b Backup) error
	GetByReference(ctx context.Context, reference string) (Backup, error)
	ListForTenant(ctx context.Context, tenantName string) ([]Backup, error)
}

// AuditEntry is one line in the operator audit trail.
type AuditEntry struct {
	TenantName string
	Action     string
	Details    string
	Actor      string
	CreatedAt  time.Time
}

// AuditLog records operator and system actions.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
	ListForTenant(ctx context.Context, tenantName string, limit int) ([]AuditEntry, error)
}

// TransitionValidator checks lifecycle transitions against the closed
// transition table.
type TransitionValidator interface {
	Apply(ctx context.Context, current Status, event Event) (Status, error)
}
