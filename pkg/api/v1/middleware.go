package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ticketbridge/ticketbridge/pkg/resolver"
	"github.com/ticketbridge/ticketbridge/pkg/session"
	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

// credentialsContextKey is the key used to store validated credentials in the
// request context. An empty struct type prevents collisions with other
// context keys.
type credentialsContextKey struct{}

// Credentials are the validated credentials attached to a request after the
// middleware accepted it.
type Credentials struct {
	// Ticket is the validated session ticket, zero for the bearer path.
	Ticket ticket.Ticket

	// Raw is the credential payload as the authority returned it.
	Raw json.RawMessage
}

// WithCredentials stores validated credentials in the context.
func WithCredentials(ctx context.Context, creds *Credentials) context.Context {
	if creds == nil {
		return ctx
	}
	return context.WithValue(ctx, credentialsContextKey{}, creds)
}

// CredentialsFromContext retrieves the validated credentials from the
// context. ok is false when the request did not pass the middleware.
func CredentialsFromContext(ctx context.Context) (*Credentials, bool) {
	creds, ok := ctx.Value(credentialsContextKey{}).(*Credentials)
	return creds, ok
}

// MiddlewareConfig tunes the validation middleware.
type MiddlewareConfig struct {
	// SkipAuthorityRoundTrip accepts a session ticket on its locally
	// recorded expiry alone, without asking the authority. This trades
	// staleness (a revoked grant stays accepted until expiry) for a saved
	// round trip; the authority-is-source-of-truth round trip is the
	// default.
	SkipAuthorityRoundTrip bool
}

// RequireAuth returns middleware that authenticates every request through
// the resolver's validation hook: the slot ticket is round-tripped to the
// authority, or a bare authorization header is validated out-of-band.
// Rejected requests get a 401; accepted requests carry Credentials in their
// context. store may be nil when slots live in the cookie itself.
func RequireAuth(res *resolver.Resolver, cookie *TicketCookie, store session.Store, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionTicket := loadSlotTicket(r, cookie, store)

			if cfg.SkipAuthorityRoundTrip && !sessionTicket.IsZero() && !sessionTicket.Expired(time.Now()) {
				raw, err := json.Marshal(sessionTicket)
				if err != nil {
					writeError(w, err)
					return
				}
				ctx := WithCredentials(r.Context(), &Credentials{Ticket: sessionTicket, Raw: raw})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			result, err := res.Validate(r.Context(), sessionTicket, r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, err)
				return
			}

			ctx := WithCredentials(r.Context(), &Credentials{Ticket: result.Ticket, Raw: result.Credentials})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
