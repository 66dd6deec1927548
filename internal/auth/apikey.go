package auth

import (
	"net/http"
	"strings"

	"github.com/pendergraft/fundme/internal/storage"
)

// KeyPrefix is the prefix for all API keys
const KeyPrefix = storage.APIKeyPrefix

// HasKeyPrefix reports whether key looks like a fundme API key.
func HasKeyPrefix(key string) bool {
	return strings.HasPrefix(key, KeyPrefix) && len(key) > len(KeyPrefix)
}

// extractKey reads the key from X-API-Key or a Bearer Authorization header.
func extractKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
