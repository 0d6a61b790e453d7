package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrDomainNotFound  = errors.New("domain not found")
)

// ValidationError is returned for malformed input, rejected before any
// side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError is returned when a unique field (name, domain, email)
// is already taken by another tenant.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q is already in use", e.Field, e.Value)
}

// PortConflictError is returned when a port allocation loses a race at
// commit time. Callers retry allocation.
type PortConflictError struct {
	Port int
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d was claimed concurrently", e.Port)
}

// TransitionError is returned when a lifecycle event is not allowed from
// the tenant's current state.
type TransitionError struct {
	Event   Event
	Current Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

// StatusConflictError is returned when a compare-and-set status update
// finds the tenant no longer in the expected state.
type StatusConflictError struct {
	Name     string
	Expected Status
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("tenant %q is no longer in state %q", e.Name, e.Expected)
}

// AuthorizationError is returned when the caller may not perform the
// requested operation. No state change accompanies it.
type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized to %s", e.Action)
}

// StepError wraps a failed external operation with the provisioning or
// deprovisioning step it belongs to.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
