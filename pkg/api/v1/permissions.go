package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ticketbridge/ticketbridge/pkg/resolver"
	"github.com/ticketbridge/ticketbridge/pkg/session"
)

// PermissionsRouter serves the authenticated caller's permission set, fetched
// from the authority with the caller's own ticket. Requests pass through the
// validation middleware first.
func PermissionsRouter(res *resolver.Resolver, cookie *TicketCookie, store session.Store, cfg MiddlewareConfig) http.Handler {
	routes := &permissionsRoutes{resolver: res}
	r := chi.NewRouter()
	r.Use(RequireAuth(res, cookie, store, cfg))
	r.Get("/", routes.getPermissions)
	return r
}

type permissionsRoutes struct {
	resolver *resolver.Resolver
}

func (h *permissionsRoutes) getPermissions(w http.ResponseWriter, r *http.Request) {
	creds, ok := CredentialsFromContext(r.Context())
	if !ok || creds.Ticket.IsZero() {
		// The bearer path carries no ticket to query permissions with.
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "no ticket on this session"})
		return
	}

	raw, err := h.resolver.Permissions(r.Context(), creds.Ticket)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}
