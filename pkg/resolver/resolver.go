// Package resolver turns the credential material presented by an inbound
// request into either a validated session ticket or a rejection. It is the
// single parameterized implementation of the authentication decision table;
// deployments toggle the accepted credential kinds through Config instead of
// duplicating the orchestration.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ticketbridge/ticketbridge/pkg/appticket"
	"github.com/ticketbridge/ticketbridge/pkg/authority"
	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

// ErrUnauthenticated is returned when a request presents no credential
// material at all. Callers map it to their unauthorized response.
var ErrUnauthenticated = errors.New("no credentials presented")

// Config selects which credential kinds a deployment accepts.
type Config struct {
	// AllowAssertions accepts external identity assertions (signed UID or
	// token pair) and exchanges them for a voucher at /rsvp.
	AllowAssertions bool

	// AllowVouchers accepts raw one-time vouchers.
	AllowVouchers bool

	// AllowBearer accepts an out-of-band authorization header, validated
	// against the authority without touching the session slot.
	AllowBearer bool

	// SignRSVP signs the /rsvp exchange with the current app ticket.
	// Whether the authority requires this is a deployment property.
	SignRSVP bool
}

// DefaultConfig accepts every credential kind and sends /rsvp unsigned.
func DefaultConfig() Config {
	return Config{
		AllowAssertions: true,
		AllowVouchers:   true,
		AllowBearer:     true,
	}
}

// Result is the outcome of a successful authentication or validation.
type Result struct {
	// Ticket is the session ticket produced by the exchange. Zero when the
	// disposition did not produce one (bearer validation).
	Ticket ticket.Ticket

	// Credentials is the raw credential payload as returned by the
	// authority (or the ticket itself where the ticket is the credential).
	Credentials json.RawMessage

	// Store reports whether Ticket must replace the session slot content.
	Store bool
}

// Resolver implements the authentication decision logic against one
// authority client and the shared app ticket snapshot.
type Resolver struct {
	client  *authority.Client
	tickets *appticket.Manager
	cfg     Config
}

// New creates a resolver.
func New(client *authority.Client, tickets *appticket.Manager, cfg Config) *Resolver {
	return &Resolver{
		client:  client,
		tickets: tickets,
		cfg:     cfg,
	}
}

// Authenticate resolves a login-style request. First matching rule wins:
//
//  1. A voucher or external assertion is exchanged for a new user ticket,
//     which the caller must store in the session slot.
//  2. An existing session ticket is reissued, refreshing it and implicitly
//     re-validating that its grant is still active.
//  3. A bare authorization header is validated out-of-band; the resulting
//     credentials are returned but never stored.
//  4. Nothing presented: ErrUnauthenticated.
//
// Authority and transport errors propagate to the caller unmodified; the
// resolver never retries on behalf of an inbound request.
func (r *Resolver) Authenticate(ctx context.Context, in *Inbound, session ticket.Ticket) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	switch {
	case in.HasVoucher() || in.HasAssertion():
		return r.exchange(ctx, in)
	case !session.IsZero():
		return r.reissue(ctx, session)
	case in != nil && in.Authorization != "" && r.cfg.AllowBearer:
		return r.validateBearer(ctx, in.Authorization)
	default:
		return nil, ErrUnauthenticated
	}
}

// Validate is the inbound-request validation hook, distinct from login. The
// authority is the source of truth for liveness: a locally-unexpired session
// ticket is still round-tripped to /validate before being trusted.
func (r *Resolver) Validate(ctx context.Context, session ticket.Ticket, authorization string) (*Result, error) {
	switch {
	case !session.IsZero():
		if _, err := r.client.Send(ctx, http.MethodGet, authority.PathValidate, nil, session); err != nil {
			return nil, err
		}
		credentials, err := json.Marshal(session)
		if err != nil {
			return nil, fmt.Errorf("encoding session ticket: %w", err)
		}
		return &Result{Ticket: session, Credentials: credentials}, nil
	case authorization != "" && r.cfg.AllowBearer:
		return r.validateBearer(ctx, authorization)
	default:
		return nil, ErrUnauthenticated
	}
}

// Permissions fetches the permission set attached to a ticket.
func (r *Resolver) Permissions(ctx context.Context, t ticket.Ticket) (json.RawMessage, error) {
	return r.client.Send(ctx, http.MethodGet, authority.PathPermissions, nil, t)
}

// exchange turns a voucher or external assertion into a user ticket. An
// assertion is first exchanged for a voucher at /rsvp; the voucher is then
// exchanged for a ticket at /ticket/user, signed with the app ticket.
func (r *Resolver) exchange(ctx context.Context, in *Inbound) (*Result, error) {
	if in.HasVoucher() && !r.cfg.AllowVouchers {
		return nil, &ValidationError{Message: "vouchers are not accepted"}
	}
	if in.HasAssertion() && !r.cfg.AllowAssertions {
		return nil, &ValidationError{Message: "external assertions are not accepted"}
	}

	var voucher any
	if in.HasVoucher() {
		voucher = map[string]string{"rsvp": in.RSVP}
	} else {
		payload := in.assertionPayload()
		payload["app"] = r.client.AppID()

		cred := ticket.Credential(ticket.NoCredential{})
		if r.cfg.SignRSVP {
			appTicket, ok := r.tickets.Current()
			if !ok {
				return nil, appticket.ErrNotReady
			}
			cred = appTicket
		}

		raw, err := r.client.Send(ctx, http.MethodPost, authority.PathRSVP, payload, cred)
		if err != nil {
			return nil, err
		}
		var rsvp map[string]any
		if err := json.Unmarshal(raw, &rsvp); err != nil {
			return nil, fmt.Errorf("decoding rsvp response: %w", err)
		}
		voucher = rsvp
	}

	appTicket, ok := r.tickets.Current()
	if !ok {
		return nil, appticket.ErrNotReady
	}

	raw, err := r.client.Send(ctx, http.MethodPost, authority.PathTicketUser, voucher, appTicket)
	if err != nil {
		return nil, err
	}

	return storableResult(raw)
}

// reissue refreshes a session ticket. The authority rejects reissue for
// revoked grants, so success doubles as a liveness check.
func (r *Resolver) reissue(ctx context.Context, session ticket.Ticket) (*Result, error) {
	raw, err := r.client.Send(ctx, http.MethodPost, authority.PathTicketReissue, nil, session)
	if err != nil {
		return nil, err
	}
	return storableResult(raw)
}

// validateBearer validates an out-of-band credential asserted by the caller.
// The result is credentials only; it is never written to the session slot.
func (r *Resolver) validateBearer(ctx context.Context, authorization string) (*Result, error) {
	appTicket, ok := r.tickets.Current()
	if !ok {
		return nil, appticket.ErrNotReady
	}

	raw, err := r.client.Send(ctx, http.MethodPost, authority.PathValidate,
		map[string]string{"authorization": authorization}, appTicket)
	if err != nil {
		return nil, err
	}
	return &Result{Credentials: raw}, nil
}

func storableResult(raw json.RawMessage) (*Result, error) {
	var t ticket.Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decoding ticket: %w", err)
	}
	return &Result{Ticket: t, Credentials: raw, Store: true}, nil
}
