package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/neomorfeo/stackhost/internal/adapter/auth"
)

// Authenticate resolves the bearer token, if any, into an identity on
// the request context. Requests without a valid token proceed
// anonymously; the service layer decides what anonymous callers may do.
func Authenticate(tokens *auth.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header != "" {
				token, err := auth.ExtractToken(header)
				if err == nil {
					if id, err := tokens.ValidateToken(token); err == nil {
						r = r.WithContext(auth.WithIdentity(r.Context(), id))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// validSignature checks the webhook HMAC: hex-encoded SHA-256 over the
// raw body, keyed with the shared webhook secret.
func validSignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
