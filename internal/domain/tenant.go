package domain

import (
	"regexp"
	"strings"
	"time"
)

// Status represents the lifecycle state of a tenant.
type Status string

const (
	StatusPending              Status = "pending"
	StatusActive               Status = "active"
	StatusSuspended            Status = "suspended"
	StatusScheduledForDeletion Status = "scheduled_for_deletion"
	StatusDeleted              Status = "deleted"
)

// Event represents an action that triggers a state transition.
type Event string

const (
	EventActivate       Event = "activate"
	EventSuspend        Event = "suspend"
	EventResume         Event = "resume"
	EventScheduleDelete Event = "schedule_delete"
	EventCancelDelete   Event = "cancel_delete"
	EventExpire         Event = "expire"
	EventForceDelete    Event = "force_delete"

	// EventPaymentConfirmed is not a transition on its own; it is published
	// when a payment clears and drives an asynchronous activation attempt.
	EventPaymentConfirmed Event = "payment_confirmed"

	// EventBackupRequested is published when an operator asks for a backup.
	EventBackupRequested Event = "backup_requested"
)

// Transition defines a valid state change: an event moves a tenant from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the tenant lifecycle.
// This is domain knowledge consumed by the FSM adapter. "deleted" is
// terminal: no event lists it as a source.
var Transitions = []Transition{
	{Event: EventActivate, Src: StatusPending, Dst: StatusActive},
	{Event: EventSuspend, Src: StatusActive, Dst: StatusSuspended},
	{Event: EventResume, Src: StatusSuspended, Dst: StatusActive},
	{Event: EventScheduleDelete, Src: StatusPending, Dst: StatusScheduledForDeletion},
	{Event: EventScheduleDelete, Src: StatusActive, Dst: StatusScheduledForDeletion},
	{Event: EventScheduleDelete, Src: StatusSuspended, Dst: StatusScheduledForDeletion},
	{Event: EventCancelDelete, Src: StatusScheduledForDeletion, Dst: StatusActive},
	{Event: EventExpire, Src: StatusPending, Dst: StatusDeleted},
	{Event: EventExpire, Src: StatusScheduledForDeletion, Dst: StatusDeleted},
	{Event: EventForceDelete, Src: StatusPending, Dst: StatusDeleted},
	{Event: EventForceDelete, Src: StatusActive, Dst: StatusDeleted},
	{Event: EventForceDelete, Src: StatusSuspended, Dst: StatusDeleted},
	{Event: EventForceDelete, Src: StatusScheduledForDeletion, Dst: StatusDeleted},
}

// RetentionPolicy holds how many backups of each cadence to keep.
// It is consumed by the backup tooling, not enforced here.
type RetentionPolicy struct {
	Daily   int
	Weekly  int
	Monthly int
}

// DefaultRetention mirrors the platform defaults: a week of dailies,
// a month of weeklies, a quarter of monthlies.
var DefaultRetention = RetentionPolicy{Daily: 7, Weekly: 4, Monthly: 3}

// Tenant is the core domain entity: one customer's isolated application
// stack and the infrastructure facts needed to run it.
type Tenant struct {
	ID     string
	Name   string // unique, immutable; namespace key for all generated artifacts
	Domain string // primary domain, unique across all tenants
	Email  string

	// Provisioning facts.
	Port     int // unique among non-deleted tenants
	DBName   string
	DBUser   string
	DBSecret string // generated once, never exposed over the API

	// Resource profile.
	Plan         Plan
	Limits       ResourceProfile
	CacheEnabled bool

	Status        Status
	CustomDomains []string
	Retention     RetentionPolicy

	PaymentDeadline     *time.Time // only meaningful while pending
	ActivatedAt         *time.Time
	SuspendedAt         *time.Time
	DeletionScheduledAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllDomains returns the primary domain followed by the custom domains,
// the full set one routing unit must cover.
func (t Tenant) AllDomains() []string {
	out := make([]string, 0, 1+len(t.CustomDomains))
	out = append(out, t.Domain)
	out = append(out, t.CustomDomains...)
	return out
}

// NewTenant creates a tenant in the initial "pending" state with its
// database identifiers derived and a payment deadline set.
func NewTenant(id, name, domain, email string, plan Plan, cacheEnabled bool, paymentWindow time.Duration) Tenant {
	now := time.Now().UTC()
	deadline := now.Add(paymentWindow)
	dbName, dbUser := DeriveDatabaseIdentifiers(name)
	return Tenant{
		ID:              id,
		Name:            name,
		Domain:          domain,
		Email:           email,
		DBName:          dbName,
		DBUser:          dbUser,
		Plan:            plan,
		Limits:          plan.Profile(),
		CacheEnabled:    cacheEnabled,
		Status:          StatusPending,
		Retention:       DefaultRetention,
		PaymentDeadline: &deadline,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// DeriveDatabaseIdentifiers maps a tenant name to its database name and
// role name. Pure and deterministic: tenant-name uniqueness is the only
// collision guarantee.
func DeriveDatabaseIdentifiers(tenantName string) (dbName, dbUser string) {
	normalized := "odoo_" + strings.ReplaceAll(tenantName, "-", "_")
	return normalized, normalized
}

var domainNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,61}[a-zA-Z0-9]?(\.[a-zA-Z]{2,})+$`)

// ValidateDomainName rejects syntactically invalid hostnames before any
// routing or certificate work happens.
func ValidateDomainName(domain string) error {
	if !domainNamePattern.MatchString(domain) {
		return &ValidationError{Field: "domain", Reason: "invalid domain format"}
	}
	return nil
}

var tenantNamePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidateTenantName enforces the namespace-safe naming used for compose
// projects, database identifiers, and routing unit filenames.
func ValidateTenantName(name string) error {
	if len(name) < 3 || len(name) > 100 || !tenantNamePattern.MatchString(name) {
		return &ValidationError{Field: "name", Reason: "must be 3-100 lowercase alphanumeric characters or hyphens"}
	}
	return nil
}
