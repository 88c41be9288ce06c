package v1

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

// cookieTTL is how long a ticket cookie survives in the browser. The ticket
// inside expires on the authority's schedule regardless; the cookie just has
// to outlive it so reissue can pick it up.
const cookieTTL = 365 * 24 * time.Hour

// TicketCookie encodes tickets into a named cookie, base64 over JSON. The
// cookie is one implementation of the session slot; server-side stores are
// the other.
type TicketCookie struct {
	// Name is the cookie name, derived from the app identity.
	Name string

	// Secure marks the cookie as HTTPS-only.
	Secure bool
}

// Read loads the ticket from the request's cookie. Returns a zero ticket
// and false when the cookie is absent or undecodable; a garbled cookie is
// treated as no ticket, the authority re-authenticates either way.
func (c *TicketCookie) Read(r *http.Request) (ticket.Ticket, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ticket.Ticket{}, false
	}

	data, err := base64.StdEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ticket.Ticket{}, false
	}

	var t ticket.Ticket
	if err := json.Unmarshal(data, &t); err != nil || t.IsZero() {
		return ticket.Ticket{}, false
	}
	return t, true
}

// Write stores the ticket in the response's cookie.
func (c *TicketCookie) Write(w http.ResponseWriter, t ticket.Ticket) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding ticket cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:    c.Name,
		Value:   base64.StdEncoding.EncodeToString(data),
		Path:    "/",
		Expires: time.Now().Add(cookieTTL),
		Secure:  c.Secure,
	})
	return nil
}

// Clear deletes the cookie. This is not a global signout; the ticket's grant
// stays live at the authority.
func (c *TicketCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   c.Name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
		Secure: c.Secure,
	})
}
