// pkg/middleware/org.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"fleetgate/pkg/organizations"
)

type ctxOrgKey struct{}

// WithOrganization resolves the organization from the X-Organization-ID
// header (id or slug-as-host) or the request host and stores it in context.
func WithOrganization(prov organizations.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow health/metrics without org context
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			if id := strings.TrimSpace(r.Header.Get("X-Organization-ID")); id != "" {
				if o, err := prov.ResolveByID(r.Context(), id); err == nil {
					next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxOrgKey{}, o)))
					return
				}
				http.Error(w, "unknown organization", http.StatusNotFound)
				return
			}
			host := r.Host
			if i := strings.Index(host, ":"); i > 0 {
				host = host[:i]
			}
			// Inside Docker different hostnames may reach the same local
			// service; allow common local synonyms to resolve that org.
			tryHosts := []string{host}
			switch host {
			case "127.0.0.1", "host.docker.internal", "fleet", "admin-api":
				tryHosts = append(tryHosts, "localhost")
			}
			var o organizations.Organization
			var err error
			for _, h := range tryHosts {
				o, err = prov.ResolveByHost(r.Context(), h)
				if err == nil {
					break
				}
			}
			if err != nil {
				http.Error(w, "unknown organization", http.StatusNotFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxOrgKey{}, o)))
		})
	}
}

func OrganizationFrom(ctx context.Context) organizations.Organization {
	if v := ctx.Value(ctxOrgKey{}); v != nil {
		return v.(organizations.Organization)
	}
	return organizations.Organization{}
}
