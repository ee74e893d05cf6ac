package api

import (
	"context"
	"net/http"
	"strconv"
)

// tenantContextKey is the context key carrying the resolved tenant id.
type tenantContextKey struct{}

// TenantMiddleware resolves the X-Tenant-ID header. Every data route
// requires it; a missing or malformed header is a 401.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Tenant-ID")
		if raw == "" {
			respondError(w, http.StatusUnauthorized, "tenant context required")
			return
		}
		tenantID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || tenantID <= 0 {
			respondError(w, http.StatusUnauthorized, "invalid tenant id")
			return
		}
		ctx := context.WithValue(r.Context(), tenantContextKey{}, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantFromContext returns the tenant id set by TenantMiddleware.
func TenantFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(tenantContextKey{}).(int64); ok {
		return id
	}
	return 0
}
