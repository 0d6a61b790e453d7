package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/neomorfeo/stackhost/internal/adapter/auth"
	"github.com/neomorfeo/stackhost/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", "stackhost")

	token, err := tm.GenerateToken("ops@example.com", true, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	id, err := tm.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if id.Email != "ops@example.com" {
		t.Errorf("Email = %q, want %q", id.Email, "ops@example.com")
	}
	if !id.Admin {
		t.Error("Admin should be true")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := auth.NewTokenManager("secret-a", "stackhost").GenerateToken("ops@example.com", false, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := auth.NewTokenManager("secret-b", "stackhost").ValidateToken(token); err == nil {
		t.Error("token signed with another secret should be rejected")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	tm := auth.NewTokenManager("test-secret", "stackhost")
	token, err := tm.GenerateToken("ops@example.com", false, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := tm.ValidateToken(token); err == nil {
		t.Error("expired token should be rejected")
	}
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	token, err := auth.NewTokenManager("test-secret", "other").GenerateToken("ops@example.com", false, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := auth.NewTokenManager("test-secret", "stackhost").ValidateToken(token); err == nil {
		t.Error("token from another issuer should be rejected")
	}
}

func TestExtractToken(t *testing.T) {
	cases := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc123", "abc123", false},
		{"bearer abc123", "", true},
		{"abc123", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := auth.ExtractToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ExtractToken(%q) should fail", tc.header)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExtractToken(%q) failed: %v", tc.header, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := auth.FromContext(context.Background()); ok {
		t.Error("empty context should carry no identity")
	}

	ctx := auth.WithIdentity(context.Background(), domain.Identity{Email: "ops@example.com"})
	id, ok := auth.FromContext(ctx)
	if !ok || id.Email != "ops@example.com" {
		t.Errorf("FromContext = %+v, %v", id, ok)
	}
}

func TestEmailAuthorizer(t *testing.T) {
	authz := auth.EmailAuthorizer{}
	tenant := domain.Tenant{Email: "owner@acme.com"}

	if !authz.IsOwner(tenant, domain.Identity{Email: "Owner@Acme.com"}) {
		t.Error("owner match should be case-insensitive")
	}
	if authz.IsOwner(tenant, domain.Identity{Email: "other@acme.com"}) {
		t.Error("non-owner should be rejected")
	}
	if authz.IsOwner(tenant, domain.Identity{}) {
		t.Error("empty identity should never own a tenant")
	}
	if !authz.IsAdmin(domain.Identity{Admin: true}) {
		t.Error("admin claim should grant admin")
	}
	if authz.IsAdmin(domain.Identity{Email: "owner@acme.com"}) {
		t.Error("plain identity should not be admin")
	}
}
