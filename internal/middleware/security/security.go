// Package security provides request filtering middleware for the API.
package security

import (
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// exempt paths are never filtered.
var exempt = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// probePrefixes are paths requested by scanners, never by API clients.
var probePrefixes = []string{
	"/wp-",
	"/.git",
	"/.env",
	"/.aws",
	"/.ssh",
	"/cgi-bin",
	"/phpmyadmin",
	"/xmlrpc.php",
	"/server-status",
	"/actuator",
	"/vendor/phpunit",
	"/.well-known/security",
}

var traversal = []string{"../", "..\\", "\x00"}

// Filter rejects scanner probes and path traversal attempts with a generic
// 400 response.
func Filter(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !exempt[r.URL.Path] && suspicious(r.URL) {
				writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func suspicious(u *url.URL) bool {
	candidates := []string{strings.ToLower(u.Path)}
	// Decode once more to catch double encoded sequences.
	if decoded, err := url.PathUnescape(u.Path); err == nil {
		candidates = append(candidates, strings.ToLower(decoded))
	}
	if u.RawPath != "" {
		if decoded, err := url.PathUnescape(u.RawPath); err == nil {
			candidates = append(candidates, strings.ToLower(decoded))
		}
	}

	for _, p := range candidates {
		for _, prefix := range probePrefixes {
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
		for _, seq := range traversal {
			if strings.Contains(p, seq) {
				return true
			}
		}
	}
	return false
}

// MaxBodySize caps request bodies at maxKB kilobytes. Requests that declare
// a larger Content-Length are rejected before the handler runs.
func MaxBodySize(maxKB int) func(http.Handler) http.Handler {
	limit := int64(maxKB) * 1024
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireJSON rejects POST and PUT requests with a body whose content type
// is not application/json.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && r.ContentLength != 0 {
			mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mediaType != "application/json" {
				writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
