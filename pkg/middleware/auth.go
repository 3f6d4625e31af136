package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/justin-elyphant/elyphant-v1-sub002/pkg/logger"
)

type contextKeyType string

const accountIDKey contextKeyType = "account_id"

// Claims are the identity fields taken from a validated access token.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// Auth requires a valid "Authorization: Bearer <token>" header and stores
// the account ID in the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or malformed bearer token")
				return
			}

			claims, err := validate(token)
			if err != nil || claims.AccountID == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
				return
			}

			ctx := WithAccountID(r.Context(), claims.AccountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithAccountID stores the authenticated account in ctx, for both request
// handling and log enrichment.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	ctx = context.WithValue(ctx, accountIDKey, accountID)
	return logger.WithAccountID(ctx, accountID)
}

// AccountIDFromContext returns the authenticated account or "".
func AccountIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(accountIDKey).(string); ok {
		return id
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
