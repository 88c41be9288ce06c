// Package v1 exposes the authentication flow over HTTP: the /authenticate
// routes for login, logout and ticket refresh, and the middleware hook that
// validates inbound requests. It is a thin facade over the resolver; all
// decision logic lives there.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ticketbridge/ticketbridge/pkg/appticket"
	"github.com/ticketbridge/ticketbridge/pkg/authority"
	"github.com/ticketbridge/ticketbridge/pkg/logger"
	"github.com/ticketbridge/ticketbridge/pkg/resolver"
	"github.com/ticketbridge/ticketbridge/pkg/session"
	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

// AuthRouter sets up the /authenticate routes. store may be nil, in which
// case tickets live in the cookie itself; with a store, the cookie holds an
// opaque slot id and tickets live server-side.
func AuthRouter(res *resolver.Resolver, cookie *TicketCookie, store session.Store) http.Handler {
	routes := &authRoutes{resolver: res, cookie: cookie, store: store}
	r := chi.NewRouter()
	r.Post("/", routes.postAuthenticate)
	r.Get("/", routes.getAuthenticate)
	r.Delete("/", routes.deleteAuthenticate)
	return r
}

type authRoutes struct {
	resolver *resolver.Resolver
	cookie   *TicketCookie
	store    session.Store
}

// authenticateRequest is the accepted body for POST /authenticate: either
// fresh credential material or a previously issued ticket to reissue.
type authenticateRequest struct {
	resolver.Inbound
	ticket.Ticket
}

func (h *authRoutes) postAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	h.authenticate(w, r, &req.Inbound, req.Ticket)
}

func (h *authRoutes) getAuthenticate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := resolver.Inbound{
		RSVP:               q.Get("rsvp"),
		UID:                q.Get("UID"),
		UIDSignature:       q.Get("UIDSignature"),
		SignatureTimestamp: q.Get("signatureTimestamp"),
		IDToken:            q.Get("id_token"),
		AccessToken:        q.Get("access_token"),
	}

	h.authenticate(w, r, &in, ticket.Ticket{})
}

// authenticate runs the decision table against the presented material plus
// the session slot and writes the disposition.
func (h *authRoutes) authenticate(w http.ResponseWriter, r *http.Request, in *resolver.Inbound, bodyTicket ticket.Ticket) {
	in.Authorization = r.Header.Get("Authorization")

	// A ticket already held in the slot wins over one supplied in the body.
	sessionTicket := h.loadSession(r)
	if sessionTicket.IsZero() && !bodyTicket.IsZero() {
		sessionTicket = bodyTicket
	}

	result, err := h.resolver.Authenticate(r.Context(), in, sessionTicket)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.Store {
		if err := h.saveSession(w, r, result.Ticket); err != nil {
			logger.Errorw("failed to persist session ticket", "error", err)
			http.Error(w, "failed to persist session", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, result.Credentials)
}

func (h *authRoutes) deleteAuthenticate(w http.ResponseWriter, r *http.Request) {
	h.clearSession(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *authRoutes) loadSession(r *http.Request) ticket.Ticket {
	return loadSlotTicket(r, h.cookie, h.store)
}

// loadSlotTicket reads the slot ticket for a request, however the slot is
// backed. Absent or undecodable slots read as a zero ticket.
func loadSlotTicket(r *http.Request, cookie *TicketCookie, store session.Store) ticket.Ticket {
	if store == nil {
		t, _ := cookie.Read(r)
		return t
	}

	sid, err := r.Cookie(cookie.Name)
	if err != nil || sid.Value == "" {
		return ticket.Ticket{}
	}
	t, err := store.Load(r.Context(), sid.Value)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			logger.Warnw("failed to load session slot", "error", err)
		}
		return ticket.Ticket{}
	}
	return t
}

func (h *authRoutes) saveSession(w http.ResponseWriter, r *http.Request, t ticket.Ticket) error {
	if h.store == nil {
		return h.cookie.Write(w, t)
	}

	slot := ""
	if sid, err := r.Cookie(h.cookie.Name); err == nil {
		slot = sid.Value
	}
	if slot == "" {
		slot = uuid.NewString()
	}

	if err := h.store.Store(r.Context(), slot, t); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    slot,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
	})
	return nil
}

func (h *authRoutes) clearSession(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if sid, err := r.Cookie(h.cookie.Name); err == nil && sid.Value != "" {
			if err := h.store.Clear(r.Context(), sid.Value); err != nil {
				logger.Warnw("failed to clear session slot", "error", err)
			}
		}
	}
	h.cookie.Clear(w)
}

// writeError maps resolver and authority failures onto HTTP responses. The
// authority's own envelope passes through verbatim so callers see the same
// status, message and validation detail the authority produced.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *resolver.ValidationError
	var authorityErr *authority.AuthorityError
	var transportErr *authority.TransportError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": validationErr.Message})
	case errors.Is(err, resolver.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthenticated"})
	case errors.Is(err, appticket.ErrNotReady):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "service is not ready"})
	case errors.As(err, &authorityErr):
		status := authorityErr.StatusCode
		if status < 300 || status > 599 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, authorityErr)
	case errors.As(err, &transportErr):
		logger.Errorw("authority unreachable", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"message": "authority unreachable"})
	default:
		logger.Errorw("authentication failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to encode response", "error", err)
	}
}
