package auth

import (
	"strings"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// EmailAuthorizer grants ownership by contact-email match and admin
// rights by token claim.
type EmailAuthorizer struct{}

var _ domain.Authorizer = EmailAuthorizer{}

func (EmailAuthorizer) IsOwner(tenant domain.Tenant, caller domain.Identity) bool {
	return caller.Email != "" && strings.EqualFold(tenant.Email, caller.Email)
}

func (EmailAuthorizer) IsAdmin(caller domain.Identity) bool {
	return caller.Admin
}
