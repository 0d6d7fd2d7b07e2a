package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"
const tenantIDKey contextKey = "tenant_id"
const adminKey contextKey = "is_admin"

// RequestIDFromContext extracts the request ID set by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// RequestID injects a unique request ID into the context and response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger logs every request with method, path, status, and duration.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// TenantFromContext returns the tenant ID attached by Authenticate, or nil
// for admin/internal requests that carry no tenant scope.
func TenantFromContext(ctx context.Context) *uuid.UUID {
	v, _ := ctx.Value(tenantIDKey).(*uuid.UUID)
	return v
}

// IsAdminFromContext reports whether the request carried the trusted
// X-Admin header.
func IsAdminFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(adminKey).(bool)
	return v
}

// Authenticate reads the trusted X-Tenant-ID / X-Admin headers set by the
// upstream gateway (SPEC_FULL.md §6: this surface is internal-only, not
// exposed to end users directly, so header trust is delegated to the edge).
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if raw := r.Header.Get("X-Tenant-ID"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				RespondError(w, http.StatusBadRequest, "bad_request", "invalid X-Tenant-ID header")
				return
			}
			ctx = context.WithValue(ctx, tenantIDKey, &id)
		}

		if r.Header.Get("X-Admin") == "true" {
			ctx = context.WithValue(ctx, adminKey, true)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireInternalSecret guards the internal process-now endpoint with a
// constant-time comparison against the configured shared secret, so a
// timing side channel can't be used to brute-force it (§6).
func RequireInternalSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Internal-Secret")
			if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid internal secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
