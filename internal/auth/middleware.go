// Package auth provides authentication middleware and API key management.
// Every key is bound to one ledger account; that account is the caller
// identity for fund and withdraw.
package auth

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/fundme/internal/storage"
)

// KeyValidator validates API keys.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, key string) (*storage.APIKey, error)
}

// Context key type for avoiding collisions
type contextKey string

const apiKeyContextKey contextKey = "apiKey"

// GetAPIKeyFromContext retrieves the API key info from context.
func GetAPIKeyFromContext(ctx context.Context) *storage.APIKey {
	if key, ok := ctx.Value(apiKeyContextKey).(*storage.APIKey); ok {
		return key
	}
	return nil
}

// AccountFromContext returns the ledger account the request is authenticated as.
func AccountFromContext(ctx context.Context) (common.Address, bool) {
	key := GetAPIKeyFromContext(ctx)
	if key == nil || !common.IsHexAddress(key.Account) {
		return common.Address{}, false
	}
	return common.HexToAddress(key.Account), true
}

// WithAPIKey returns a context carrying key.
func WithAPIKey(ctx context.Context, key *storage.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

// Middleware returns an HTTP middleware that requires a valid API key.
// Requests already authenticated by OptionalMiddleware are not revalidated.
func Middleware(store KeyValidator, writeError func(w http.ResponseWriter, status int, code, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetAPIKeyFromContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := extractKey(r)
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
				return
			}
			if !HasKeyPrefix(apiKey) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			key, err := store.ValidateAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAPIKey(r.Context(), key)))
		})
	}
}

// OptionalMiddleware returns an HTTP middleware that validates API keys if present,
// but allows requests without keys to proceed.
func OptionalMiddleware(store KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey := extractKey(r); HasKeyPrefix(apiKey) {
				key, err := store.ValidateAPIKey(r.Context(), apiKey)
				if err == nil && key != nil {
					r = r.WithContext(WithAPIKey(r.Context(), key))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
