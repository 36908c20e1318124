package api

import (
	"net/http"
	"strings"

	"github.com/clubdues/clubdues/pkg/audit"
	"github.com/clubdues/clubdues/pkg/observability"
)

// ActorHeader carries the caller identity resolved by the upstream gateway
const ActorHeader = "X-Actor"

// ActorMiddleware stores the gateway supplied caller identity in the request context
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			r = r.WithContext(observability.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// AuditMiddleware makes the audit logger available to handlers
func AuditMiddleware(logger audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(audit.WithLogger(r.Context(), logger)))
		})
	}
}
