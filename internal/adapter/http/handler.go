// Package http exposes the orchestrator's REST API.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/stackhost/internal/adapter/auth"
	"github.com/neomorfeo/stackhost/internal/app"
	"github.com/neomorfeo/stackhost/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// RetentionResponse is the API shape of a backup retention policy.
type RetentionResponse struct {
	Daily   int `json:"daily" minimum:"0" doc:"Daily backups to keep"`
	Weekly  int `json:"weekly" minimum:"0" doc:"Weekly backups to keep"`
	Monthly int `json:"monthly" minimum:"0" doc:"Monthly backups to keep"`
}

// TenantResponse is the API representation of a tenant. The database
// secret never leaves the server.
type TenantResponse struct {
	ID                  string            `json:"id" doc:"Unique identifier"`
	Name                string            `json:"name" doc:"Tenant name"`
	Domain              string            `json:"domain" doc:"Primary domain"`
	CustomDomains       []string          `json:"custom_domains,omitempty" doc:"Additional domains"`
	Email               string            `json:"email" doc:"Contact email"`
	Port                int               `json:"port" doc:"Allocated upstream port"`
	Plan                string            `json:"plan" doc:"Subscription plan"`
	CacheEnabled        bool              `json:"cache_enabled" doc:"Cache sidecar enabled"`
	Status              string            `json:"status" doc:"Lifecycle state"`
	Retention           RetentionResponse `json:"retention" doc:"Backup retention policy"`
	PaymentDeadline     string            `json:"payment_deadline,omitempty" doc:"Payment due timestamp (ISO 8601)"`
	ActivatedAt         string            `json:"activated_at,omitempty" doc:"Activation timestamp (ISO 8601)"`
	SuspendedAt         string            `json:"suspended_at,omitempty" doc:"Suspension timestamp (ISO 8601)"`
	DeletionScheduledAt string            `json:"deletion_scheduled_at,omitempty" doc:"Deletion due timestamp (ISO 8601)"`
	CreatedAt           string            `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt           string            `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	resp := TenantResponse{
		ID:            t.ID,
		Name:          t.Name,
		Domain:        t.Domain,
		CustomDomains: t.CustomDomains,
		Email:         t.Email,
		Port:          t.Port,
		Plan:          string(t.Plan),
		CacheEnabled:  t.CacheEnabled,
		Status:        string(t.Status),
		Retention: RetentionResponse{
			Daily:   t.Retention.Daily,
			Weekly:  t.Retention.Weekly,
			Monthly: t.Retention.Monthly,
		},
		CreatedAt:     t.CreatedAt.Format(timeFormat),
		UpdatedAt:     t.UpdatedAt.Format(timeFormat),
	}
	if t.PaymentDeadline != nil {
		resp.PaymentDeadline = t.PaymentDeadline.Format(timeFormat)
	}
	if t.ActivatedAt != nil {
		resp.ActivatedAt = t.ActivatedAt.Format(timeFormat)
	}
	if t.SuspendedAt != nil {
		resp.SuspendedAt = t.SuspendedAt.Format(timeFormat)
	}
	if t.DeletionScheduledAt != nil {
		resp.DeletionScheduledAt = t.DeletionScheduledAt.Format(timeFormat)
	}
	return resp
}

func identity(ctx context.Context) domain.Identity {
	id, _ := auth.FromContext(ctx)
	return id
}

// --- Create ---

type CreateTenantInput struct {
	Body struct {
		Name         string `json:"name" minLength:"3" maxLength:"100" pattern:"^[a-z0-9]+(?:-[a-z0-9]+)*$" doc:"Tenant name (lowercase, hyphens)"`
		Domain       string `json:"domain" minLength:"4" maxLength:"255" doc:"Primary domain"`
		Email        string `json:"email" format:"email" doc:"Contact email"`
		Plan         string `json:"plan,omitempty" default:"basic" enum:"basic,business,enterprise" doc:"Subscription plan"`
		CacheEnabled bool   `json:"cache_enabled,omitempty" doc:"Enable the cache sidecar"`
	}
}

type CreateTenantOutput struct {
	Status int
	Body   TenantResponse
}

// --- Get / List ---

type GetTenantInput struct {
	Name string `path:"name" doc:"Tenant name"`
}

type GetTenantOutput struct {
	Body TenantResponse
}

type ListTenantsInput struct {
	Status string `query:"status" required:"false" doc:"Filter by status"`
	Limit  int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListTenantsOutput struct {
	Body []TenantResponse
}

// --- Update ---

type UpdateTenantInput struct {
	Name string `path:"name" doc:"Tenant name"`
	Body struct {
		Email        *string            `json:"email,omitempty" doc:"Contact email"`
		Plan         *string            `json:"plan,omitempty" enum:"basic,business,enterprise" doc:"Subscription plan"`
		CacheEnabled *bool              `json:"cache_enabled,omitempty" doc:"Enable the cache sidecar"`
		Retention    *RetentionResponse `json:"retention,omitempty" doc:"Backup retention policy"`
	}
}

type UpdateTenantOutput struct {
	Body TenantResponse
}

// --- Lifecycle ---

type LifecycleInput struct {
	Name string `path:"name" doc:"Tenant name"`
}

type LifecycleOutput struct {
	Body TenantResponse
}

type DeleteTenantInput struct {
	Name string `path:"name" doc:"Tenant name"`
}

type ScheduleDeleteInput struct {
	Name       string `path:"name" doc:"Tenant name"`
	DelayHours int    `query:"delay_hours" required:"false" default:"-1" minimum:"-1" doc:"Hours until the deletion is due; 0 means the next sweep, omit for the platform default"`
}

// --- Domains ---

type ListDomainsInput struct {
	Name string `path:"name" doc:"Tenant name"`
}

type ListDomainsOutput struct {
	Body []string
}

type AddDomainInput struct {
	Name string `path:"name" doc:"Tenant name"`
	Body struct {
		Domain string `json:"domain" minLength:"4" maxLength:"255" doc:"Domain to bind"`
	}
}

type AddDomainOutput struct {
	Status int
	Body   TenantResponse
}

type RemoveDomainInput struct {
	Name   string `path:"name" doc:"Tenant name"`
	Domain string `path:"domain" doc:"Domain to unbind"`
}

type RemoveDomainOutput struct {
	Body TenantResponse
}

// --- Backups ---

type BackupResponse struct {
	Reference   string  `json:"reference" doc:"Backup reference"`
	TenantName  string  `json:"tenant_name" doc:"Tenant name"`
	Kind        string  `json:"kind" doc:"Backup kind"`
	Filename    string  `json:"filename,omitempty" doc:"Dump filename"`
	SizeMB      float64 `json:"size_mb,omitempty" doc:"Dump size in MiB"`
	Status      string  `json:"status" doc:"pending, completed, or failed"`
	Error       string  `json:"error,omitempty" doc:"Failure detail"`
	CreatedAt   string  `json:"created_at" doc:"Request timestamp (ISO 8601)"`
	CompletedAt string  `json:"completed_at,omitempty" doc:"Completion timestamp (ISO 8601)"`
}

func toBackupResponse(b domain.Backup) BackupResponse {
	resp := BackupResponse{
		Reference:  b.Reference,
		TenantName: b.TenantName,
		Kind:       b.Kind,
		Filename:   b.Filename,
		SizeMB:     b.SizeMB,
		Status:     b.Status,
		Error:      b.Error,
		CreatedAt:  b.CreatedAt.Format(timeFormat),
	}
	if b.CompletedAt != nil {
		resp.CompletedAt = b.CompletedAt.Format(timeFormat)
	}
	return resp
}

type RequestBackupInput struct {
	Name string `path:"name" doc:"Tenant name"`
}

type RequestBackupOutput struct {
	Status int
	Body   BackupResponse
}

type ListBackupsInput struct {
	Name string `path:"name" doc:"Tenant name"`
}

type ListBackupsOutput struct {
	Body []BackupResponse
}

// --- Stats ---

type TenantStatsInput struct {
	Name string `path:"name" doc:"Tenant name"`
}

type ContainerStatResponse struct {
	ContainerID string  `json:"container_id" doc:"Container identifier"`
	Name        string  `json:"name" doc:"Container name"`
	State       string  `json:"state" doc:"Container state"`
	CPUPercent  float64 `json:"cpu_percent" doc:"CPU usage percent"`
	MemoryBytes uint64  `json:"memory_bytes" doc:"Memory usage in bytes"`
	MemoryLimit uint64  `json:"memory_limit" doc:"Memory limit in bytes"`
}

type TenantStatsOutput struct {
	Body []ContainerStatResponse
}

type FleetStatsOutput struct {
	Body struct {
		Total                int `json:"total" doc:"Live tenants"`
		Pending              int `json:"pending" doc:"Awaiting payment"`
		Active               int `json:"active" doc:"Running"`
		Suspended            int `json:"suspended" doc:"Suspended"`
		ScheduledForDeletion int `json:"scheduled_for_deletion" doc:"Deletion pending"`
	}
}

// --- Audit ---

type AuditTrailInput struct {
	Name  string `path:"name" doc:"Tenant name"`
	Limit int    `query:"limit" required:"false" default:"50" doc:"Max entries"`
}

type AuditEntryResponse struct {
	Action    string `json:"action" doc:"Recorded action"`
	Details   string `json:"details,omitempty" doc:"Action detail"`
	Actor     string `json:"actor" doc:"Who performed the action"`
	CreatedAt string `json:"created_at" doc:"Timestamp (ISO 8601)"`
}

type AuditTrailOutput struct {
	Body []AuditEntryResponse
}

// --- Payments ---

type RecordPaymentInput struct {
	Name string `path:"name" doc:"Tenant name"`
	Body struct {
		AmountCents int64  `json:"amount_cents" minimum:"1" doc:"Amount in cents"`
		Currency    string `json:"currency" minLength:"3" maxLength:"3" doc:"ISO 4217 currency code"`
	}
}

type RecordPaymentOutput struct {
	Status int
	Body   struct {
		Reference   string `json:"reference" doc:"Payment reference"`
		TenantName  string `json:"tenant_name" doc:"Tenant name"`
		AmountCents int64  `json:"amount_cents" doc:"Amount in cents"`
		Currency    string `json:"currency" doc:"Currency code"`
		Status      string `json:"status" doc:"Payment status"`
	}
}

type WebhookInput struct {
	Signature string `header:"X-Webhook-Signature" doc:"Hex HMAC-SHA256 of the raw body"`
	RawBody   []byte
	Body      struct {
		Reference string `json:"reference" minLength:"1" doc:"Payment reference or tenant name"`
	}
}

type WebhookOutput struct {
	Body struct {
		Accepted bool `json:"accepted" doc:"Whether the confirmation was accepted"`
	}
}

// Handler wires the API operations to the tenant service.
type Handler struct {
	svc           *app.TenantService
	sweeper       *app.Sweeper
	webhookSecret string
}

func NewHandler(svc *app.TenantService, sweeper *app.Sweeper, webhookSecret string) *Handler {
	return &Handler{svc: svc, sweeper: sweeper, webhookSecret: webhookSecret}
}

// Register adds all API routes to the Huma API.
func (h *Handler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-tenant",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants",
		Summary:       "Register a new tenant",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateTenantInput) (*CreateTenantOutput, error) {
		tenant, err := h.svc.Create(ctx, app.CreateParams{
			Name:         input.Body.Name,
			Domain:       input.Body.Domain,
			Email:        input.Body.Email,
			Plan:         input.Body.Plan,
			CacheEnabled: input.Body.CacheEnabled,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateTenantOutput{Status: http.StatusCreated, Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{name}",
		Summary:     "Get a tenant",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetTenantOutput, error) {
		tenant, err := h.svc.Get(ctx, identity(ctx), input.Name)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		filter := domain.ListFilter{Limit: input.Limit, Offset: input.Offset}
		if input.Status != "" {
			s := domain.Status(input.Status)
			filter.Status = &s
		}

		tenants, err := h.svc.List(ctx, identity(ctx), filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t)
		}
		return &ListTenantsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-tenant",
		Method:      http.MethodPatch,
		Path:        "/api/v1/tenants/{name}",
		Summary:     "Update tenant settings",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *UpdateTenantInput) (*UpdateTenantOutput, error) {
		params := app.UpdateParams{
			Email:        input.Body.Email,
			Plan:         input.Body.Plan,
			CacheEnabled: input.Body.CacheEnabled,
		}
		if r := input.Body.Retention; r != nil {
			params.Retention = &domain.RetentionPolicy{Daily: r.Daily, Weekly: r.Weekly, Monthly: r.Monthly}
		}
		tenant, err := h.svc.Update(ctx, identity(ctx), input.Name, params)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &UpdateTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "force-delete-tenant",
		Method:        http.MethodDelete,
		Path:          "/api/v1/tenants/{name}",
		Summary:       "Deprovision a tenant immediately",
		Tags:          []string{"Tenants"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *DeleteTenantInput) (*struct{}, error) {
		if err := h.svc.ForceDelete(ctx, identity(ctx), input.Name); err != nil {
			return nil, toHumaError(err)
		}
		return nil, nil
	})

	h.registerLifecycle(api, "activate-tenant", "activate", "Activate a pending tenant", h.svc.Activate)
	h.registerLifecycle(api, "suspend-tenant", "suspend", "Suspend an active tenant", h.svc.Suspend)
	h.registerLifecycle(api, "resume-tenant", "resume", "Resume a suspended tenant", h.svc.Resume)
	h.registerLifecycle(api, "cancel-delete-tenant", "cancel-delete", "Cancel a scheduled deletion", h.svc.CancelDelete)

	huma.Register(api, huma.Operation{
		OperationID: "schedule-delete-tenant",
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{name}/schedule-delete",
		Summary:     "Schedule tenant deletion after a grace delay",
		Tags:        []string{"Lifecycle"},
	}, func(ctx context.Context, input *ScheduleDeleteInput) (*LifecycleOutput, error) {
		var delay *time.Duration
		if input.DelayHours >= 0 {
			d := time.Duration(input.DelayHours) * time.Hour
			delay = &d
		}
		tenant, err := h.svc.ScheduleDelete(ctx, identity(ctx), input.Name, delay)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &LifecycleOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenant-domains",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{name}/domains",
		Summary:     "List a tenant's domains",
		Tags:        []string{"Domains"},
	}, func(ctx context.Context, input *ListDomainsInput) (*ListDomainsOutput, error) {
		tenant, err := h.svc.Get(ctx, identity(ctx), input.Name)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListDomainsOutput{Body: tenant.AllDomains()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-tenant-domain",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants/{name}/domains",
		Summary:       "Bind a custom domain",
		Tags:          []string{"Domains"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *AddDomainInput) (*AddDomainOutput, error) {
		tenant, err := h.svc.AddDomain(ctx, identity(ctx), input.Name, input.Body.Domain)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &AddDomainOutput{Status: http.StatusCreated, Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-tenant-domain",
		Method:      http.MethodDelete,
		Path:        "/api/v1/tenants/{name}/domains/{domain}",
		Summary:     "Unbind a custom domain",
		Tags:        []string{"Domains"},
	}, func(ctx context.Context, input *RemoveDomainInput) (*RemoveDomainOutput, error) {
		tenant, err := h.svc.RemoveDomain(ctx, identity(ctx), input.Name, input.Domain)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RemoveDomainOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "request-tenant-backup",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants/{name}/backups",
		Summary:       "Request a backup",
		Tags:          []string{"Backups"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *RequestBackupInput) (*RequestBackupOutput, error) {
		b, err := h.svc.RequestBackup(ctx, identity(ctx), input.Name)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RequestBackupOutput{Status: http.StatusAccepted, Body: toBackupResponse(b)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenant-backups",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{name}/backups",
		Summary:     "List backups",
		Tags:        []string{"Backups"},
	}, func(ctx context.Context, input *ListBackupsInput) (*ListBackupsOutput, error) {
		backups, err := h.svc.ListBackups(ctx, identity(ctx), input.Name)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]BackupResponse, len(backups))
		for i, b := range backups {
			resp[i] = toBackupResponse(b)
		}
		return &ListBackupsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tenant-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{name}/stats",
		Summary:     "Live container stats for a tenant",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, input *TenantStatsInput) (*TenantStatsOutput, error) {
		stats, err := h.svc.TenantStats(ctx, identity(ctx), input.Name)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]ContainerStatResponse, len(stats))
		for i, s := range stats {
			resp[i] = ContainerStatResponse{
				ContainerID: s.ContainerID,
				Name:        s.Name,
				State:       s.State,
				CPUPercent:  s.CPUPercent,
				MemoryBytes: s.MemoryBytes,
				MemoryLimit: s.MemoryLimit,
			}
		}
		return &TenantStatsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "fleet-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Fleet-wide tenant counts",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, _ *struct{}) (*FleetStatsOutput, error) {
		stats, err := h.svc.Stats(ctx, identity(ctx))
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &FleetStatsOutput{}
		out.Body.Total = stats.Total
		out.Body.Pending = stats.Pending
		out.Body.Active = stats.Active
		out.Body.Suspended = stats.Suspended
		out.Body.ScheduledForDeletion = stats.ScheduledForDeletion
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tenant-audit-trail",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{name}/audit",
		Summary:     "Audit trail for a tenant",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *AuditTrailInput) (*AuditTrailOutput, error) {
		entries, err := h.svc.AuditTrail(ctx, identity(ctx), input.Name, input.Limit)
		if err != nil {
			return nil, toHumaError(err)
		}
		resp := make([]AuditEntryResponse, len(entries))
		for i, e := range entries {
			resp[i] = AuditEntryResponse{
				Action:    e.Action,
				Details:   e.Details,
				Actor:     e.Actor,
				CreatedAt: e.CreatedAt.Format(timeFormat),
			}
		}
		return &AuditTrailOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-tenant-payment",
		Method:        http.MethodPost,
		Path:          "/api/v1/tenants/{name}/payments",
		Summary:       "Record a pending payment",
		Tags:          []string{"Payments"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *RecordPaymentInput) (*RecordPaymentOutput, error) {
		p, err := h.svc.RecordPayment(ctx, identity(ctx), input.Name, input.Body.AmountCents, input.Body.Currency)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &RecordPaymentOutput{Status: http.StatusCreated}
		out.Body.Reference = p.Reference
		out.Body.TenantName = p.TenantName
		out.Body.AmountCents = p.AmountCents
		out.Body.Currency = p.Currency
		out.Body.Status = p.Status
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "payment-webhook",
		Method:      http.MethodPost,
		Path:        "/api/v1/payments/webhook",
		Summary:     "Payment provider confirmation webhook",
		Tags:        []string{"Payments"},
	}, func(ctx context.Context, input *WebhookInput) (*WebhookOutput, error) {
		if !validSignature(h.webhookSecret, input.RawBody, input.Signature) {
			return nil, huma.Error401Unauthorized("invalid webhook signature")
		}
		if err := h.svc.HandlePaymentConfirmed(ctx, input.Body.Reference); err != nil {
			return nil, toHumaError(err)
		}
		out := &WebhookOutput{}
		out.Body.Accepted = true
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-sweep",
		Method:      http.MethodPost,
		Path:        "/api/v1/sweep",
		Summary:     "Run one expiry sweep pass now",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, _ *struct{}) (*SweepOutput, error) {
		caller := identity(ctx)
		if !caller.Admin {
			return nil, huma.Error403Forbidden("admin required")
		}
		// Per-tenant failures are reported in the summary, not as an
		// endpoint error.
		summary, _ := h.sweeper.Sweep(ctx)
		return &SweepOutput{Body: summary}, nil
	})
}

type SweepOutput struct {
	Body app.SweepSummary
}

func (h *Handler) registerLifecycle(api huma.API, opID, action, summary string, op func(context.Context, domain.Identity, string) (domain.Tenant, error)) {
	huma.Register(api, huma.Operation{
		OperationID: opID,
		Method:      http.MethodPost,
		Path:        "/api/v1/tenants/{name}/" + action,
		Summary:     summary,
		Tags:        []string{"Lifecycle"},
	}, func(ctx context.Context, input *LifecycleInput) (*LifecycleOutput, error) {
		tenant, err := op(ctx, identity(ctx), input.Name)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &LifecycleOutput{Body: toTenantResponse(tenant)}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		return huma.Error404NotFound("tenant not found")
	case errors.Is(err, domain.ErrDomainNotFound):
		return huma.Error404NotFound("domain not found")
	case errors.Is(err, domain.ErrPaymentNotFound):
		return huma.Error404NotFound("payment not found")
	}

	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return huma.Error422UnprocessableEntity(vErr.Error())
	}

	var authErr *domain.AuthorizationError
	if errors.As(err, &authErr) {
		return huma.Error403Forbidden(authErr.Error())
	}

	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		return huma.Error409Conflict(conflictErr.Error())
	}

	var portErr *domain.PortConflictError
	if errors.As(err, &portErr) {
		return huma.Error409Conflict(portErr.Error())
	}

	var statusErr *domain.StatusConflictError
	if errors.As(err, &statusErr) {
		return huma.Error409Conflict(statusErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var stepErr *domain.StepError
	if errors.As(err, &stepErr) {
		return huma.Error502BadGateway(stepErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
