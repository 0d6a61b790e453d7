// Package auth authenticates operator requests with signed bearer
// tokens and answers ownership questions for tenant operations.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/neomorfeo/stackhost/internal/domain"
)

// Claims carry the operator identity inside the token.
type Claims struct {
	Email string `json:"email"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates HS256 tokens.
type TokenManager struct {
	secret []byte
	issuer string
}

func NewTokenManager(secret, issuer string) *TokenManager {
	if issuer == "" {
		issuer = "stackhost"
	}
	return &TokenManager{secret: []byte(secret), issuer: issuer}
}

func (tm *TokenManager) GenerateToken(email string, admin bool, expiresIn time.Duration) (string, error) {
	if email == "" {
		return "", fmt.Errorf("email required")
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			Issuer:    tm.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

func (tm *TokenManager) ValidateToken(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(tm.issuer))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("parsing token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Identity{}, fmt.Errorf("invalid token claims")
	}
	return domain.Identity{Email: claims.Email, Admin: claims.Admin}, nil
}

// ExtractToken pulls the bearer token out of an Authorization header.
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}

type contextKey struct{}

// WithIdentity stores the authenticated identity in the context.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity set during authentication. The
// second result is false for unauthenticated contexts.
func FromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(domain.Identity)
	return id, ok
}
