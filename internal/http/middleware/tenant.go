package middleware

import (
	"net/http"
	"strings"

	"github.com/fagerlund/salon-platform/internal/tenancy"
)

// RequireTenant pulls the tenant id from the X-Tenant-Id header and puts it
// on the request context. Every data-plane route runs behind it; webhook
// routes resolve their tenant from the gateway payload instead.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
			if tenantID == "" {
				http.Error(w, "missing X-Tenant-Id header", http.StatusBadRequest)
				return
			}
			ctx := tenancy.WithTenantID(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
