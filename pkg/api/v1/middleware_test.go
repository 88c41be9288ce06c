package v1

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketbridge/ticketbridge/pkg/authority"
	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

func protectedEndpoint(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, ok := CredentialsFromContext(r.Context())
		require.True(t, ok, "credentials must be in context past the middleware")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(creds.Raw)
	})
}

func TestRequireAuthRoundTripsTicket(t *testing.T) {
	t.Parallel()

	var validated atomic.Int64
	res := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, authority.PathValidate, r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		validated.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	cookie := &TicketCookie{Name: testCookieName}
	handler := RequireAuth(res, cookie, nil, MiddlewareConfig{})(protectedEndpoint(t))

	tk := ticket.Ticket{
		ID: "s1", Key: "sk", Algorithm: "sha256", App: "my-app",
		User: "u1", Exp: time.Now().Add(time.Hour).UnixMilli(),
	}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(encodeTicketCookie(t, tk))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), validated.Load(), "strict validation always round-trips")
	assert.Contains(t, rec.Body.String(), `"s1"`)
}

func TestRequireAuthRejectsWithoutCredentials(t *testing.T) {
	t.Parallel()

	res := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no network call expected")
		w.WriteHeader(http.StatusTeapot)
	})

	handler := RequireAuth(res, &TicketCookie{Name: testCookieName}, nil, MiddlewareConfig{})(protectedEndpoint(t))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsRevokedTicket(t *testing.T) {
	t.Parallel()

	res := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"statusCode":401,"error":"Unauthorized","message":"Invalid ticket"}`)
	})

	handler := RequireAuth(res, &TicketCookie{Name: testCookieName}, nil, MiddlewareConfig{})(protectedEndpoint(t))

	// Locally unexpired, but the authority says no.
	tk := ticket.Ticket{
		ID: "s1", Key: "sk", Algorithm: "sha256", App: "my-app",
		Exp: time.Now().Add(time.Hour).UnixMilli(),
	}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(encodeTicketCookie(t, tk))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthBearerHeader(t *testing.T) {
	t.Parallel()

	res := newTestResolver(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, authority.PathValidate, r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{"app":"other-app"}`)
	})

	handler := RequireAuth(res, &TicketCookie{Name: testCookieName}, nil, MiddlewareConfig{})(protectedEndpoint(t))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer service-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"app":"other-app"}`, rec.Body.String())
}

func TestRequireAuthSkipRoundTrip(t *testing.T) {
	t.Parallel()

	res := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("shortcut must not call the authority")
		w.WriteHeader(http.StatusTeapot)
	})

	cfg := MiddlewareConfig{SkipAuthorityRoundTrip: true}
	handler := RequireAuth(res, &TicketCookie{Name: testCookieName}, nil, cfg)(protectedEndpoint(t))

	tk := ticket.Ticket{
		ID: "s1", Key: "sk", Algorithm: "sha256", App: "my-app",
		Exp: time.Now().Add(time.Hour).UnixMilli(),
	}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(encodeTicketCookie(t, tk))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthSkipRoundTripStillRejectsExpired(t *testing.T) {
	t.Parallel()

	var validated atomic.Int64
	res := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		// A locally expired ticket falls back to the strict path, which
		// the authority rejects.
		validated.Add(1)
		fmt.Fprint(w, `{"statusCode":401,"error":"Unauthorized","message":"Expired ticket"}`)
	})

	cfg := MiddlewareConfig{SkipAuthorityRoundTrip: true}
	handler := RequireAuth(res, &TicketCookie{Name: testCookieName}, nil, cfg)(protectedEndpoint(t))

	tk := ticket.Ticket{
		ID: "s1", Key: "sk", Algorithm: "sha256", App: "my-app",
		Exp: time.Now().Add(-time.Minute).UnixMilli(),
	}
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(encodeTicketCookie(t, tk))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int64(1), validated.Load())
}

func TestTicketCookieGarbledValue(t *testing.T) {
	t.Parallel()

	cookie := &TicketCookie{Name: testCookieName}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "not-base64!!"})
	_, ok := cookie.Read(req)
	assert.False(t, ok)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: testCookieName, Value: "bm90IGpzb24="}) // "not json"
	_, ok = cookie.Read(req)
	assert.False(t, ok)
}

func TestTicketCookieRoundTrip(t *testing.T) {
	t.Parallel()

	cookie := &TicketCookie{Name: testCookieName}
	tk := ticket.Ticket{ID: "s1", Key: "sk", Algorithm: "sha256", App: "my-app", Exp: 1700000000000}

	rec := httptest.NewRecorder()
	require.NoError(t, cookie.Write(rec, tk))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	got, ok := cookie.Read(req)
	require.True(t, ok)
	assert.Equal(t, tk, got)
}
