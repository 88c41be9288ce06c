package authority

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "my-app", ticket.NewHawkSigner(), opts...)
	require.NoError(t, err)
	return client, server
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ticket/app", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Empty(t, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"a1","key":"k","algorithm":"sha256","exp":1700000000000}`))
	}))

	raw, err := client.Send(context.Background(), http.MethodPost, PathTicketApp,
		map[string]any{}, ticket.AppCredential{ID: "my-app", Key: "secret", Algorithm: "sha256"})
	require.NoError(t, err)

	var tk ticket.Ticket
	require.NoError(t, json.Unmarshal(raw, &tk))
	assert.Equal(t, "a1", tk.ID)
}

func TestSendSignsWithCredential(t *testing.T) {
	t.Parallel()

	var header atomic.Value
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := client.Send(context.Background(), http.MethodPost, PathTicketApp,
		nil, ticket.AppCredential{ID: "my-app", Key: "secret", Algorithm: "sha256"})
	require.NoError(t, err)
	got, _ := header.Load().(string)
	assert.True(t, strings.HasPrefix(got, "Hawk "), "expected a Hawk authorization header, got %q", got)
	assert.Contains(t, got, `app="my-app"`)
}

func TestSendUnsignedWithNoCredential(t *testing.T) {
	t.Parallel()

	var header atomic.Value
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"rsvp":"voucher-1"}`))
	}))

	_, err := client.Send(context.Background(), http.MethodPost, PathRSVP,
		map[string]string{"UID": "u1"}, ticket.NoCredential{})
	require.NoError(t, err)
	got, _ := header.Load().(string)
	assert.Empty(t, got)
}

func TestSendRejectsEmptyTicket(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := client.Send(context.Background(), http.MethodPost, PathTicketReissue, nil, ticket.Ticket{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty ticket")
	assert.Zero(t, calls.Load(), "no request should reach the authority")
}

func TestSendAuthorityErrorEnvelope(t *testing.T) {
	t.Parallel()

	// The authority encodes failures in the body even under transport 200.
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"statusCode":400,"error":"Bad Request","message":"invalid rsvp","validation":{"keys":["rsvp"]}}`))
	}))

	_, err := client.Send(context.Background(), http.MethodPost, PathTicketUser,
		map[string]string{"rsvp": "nope"}, ticket.Ticket{ID: "a1", Key: "k"})
	require.Error(t, err)

	var authErr *AuthorityError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 400, authErr.StatusCode)
	assert.Equal(t, "Bad Request", authErr.Kind)
	assert.Equal(t, "invalid rsvp", authErr.Message)
	assert.JSONEq(t, `{"keys":["rsvp"]}`, string(authErr.Validation))
	assert.True(t, IsAuthorityError(err, 400))
	assert.False(t, IsAuthorityError(err, 401))
}

func TestSendExpiredTicketTriggersHook(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"statusCode":401,"error":"Unauthorized","message":"Expired ticket"}`))
	}))

	fired := make(chan struct{}, 1)
	client.OnExpiredTicket(func() { fired <- struct{}{} })

	_, err := client.Send(context.Background(), http.MethodGet, PathValidate,
		nil, ticket.Ticket{ID: "a1", Key: "k"})

	// The hook fires and the original error still reaches the caller.
	var authErr *AuthorityError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, authErr.ExpiredTicket())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expired-ticket hook was not fired")
	}
}

func TestSendOtherUnauthorizedDoesNotTriggerHook(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"statusCode":401,"error":"Unauthorized","message":"Bad mac"}`))
	}))

	var fired atomic.Bool
	client.OnExpiredTicket(func() { fired.Store(true) })

	_, err := client.Send(context.Background(), http.MethodGet, PathValidate,
		nil, ticket.Ticket{ID: "a1", Key: "k"})
	require.True(t, IsAuthorityError(err, 401))
	assert.False(t, fired.Load())
}

func TestSendProtocolError(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>definitely not json</html>`))
	}))

	_, err := client.Send(context.Background(), http.MethodGet, PathValidate, nil, ticket.NoCredential{})
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestSendTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client, err := NewClient(server.URL, "my-app", ticket.NewHawkSigner())
	require.NoError(t, err)
	server.Close()

	_, err = client.Send(context.Background(), http.MethodGet, PathValidate, nil, ticket.NoCredential{})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestSendEmptyBodyErrorStatus(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.Send(context.Background(), http.MethodGet, PathValidate, nil, ticket.NoCredential{})
	require.True(t, IsAuthorityError(err, http.StatusBadGateway))
}

func TestSendEmptyBodySuccess(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	raw, err := client.Send(context.Background(), http.MethodGet, PathValidate,
		nil, ticket.Ticket{ID: "a1", Key: "k"})
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient("ftp://authority.example.com", "my-app", ticket.NewHawkSigner())
	require.Error(t, err)

	_, err = NewClient("://nope", "my-app", ticket.NewHawkSigner())
	require.Error(t, err)
}

func TestErrorsUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	assert.ErrorIs(t, &TransportError{URL: "u", Err: cause}, cause)
	assert.ErrorIs(t, &ProtocolError{URL: "u", Err: cause}, cause)
}
