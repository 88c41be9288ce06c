// Package authority implements the signed request client for the remote
// authority: it attaches MAC authorization headers to outbound calls and
// interprets the authority's JSON response envelope.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/ticketbridge/ticketbridge/pkg/logger"
	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

// Authority endpoints consumed by this module.
const (
	PathTicketApp     = "/ticket/app"
	PathTicketReissue = "/ticket/reissue"
	PathTicketUser    = "/ticket/user"
	PathRSVP          = "/rsvp"
	PathValidate      = "/validate"
	PathPermissions   = "/permissions"
)

const (
	// defaultTimeout is the timeout for authority requests. Deployments
	// override it through WithTimeout.
	defaultTimeout = 30 * time.Second

	// maxResponseBodySize is the maximum size for reading response bodies (1 MB)
	maxResponseBodySize = 1 << 20
)

// Client sends requests to the authority, optionally signing them with a
// credential. It performs no retries of its own; retry policy belongs to the
// app ticket manager and to callers.
type Client struct {
	baseURL *url.URL
	appID   string
	signer  ticket.Signer
	httpc   *http.Client

	// onExpiredTicket is invoked (fire and forget) when the authority
	// reports an expired ticket. Wired to the ticket manager after both
	// exist; reads must tolerate it being unset.
	onExpiredTicket atomic.Pointer[func()]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Intended for tests and
// for deployments that need custom transport settings.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// WithTimeout sets the request timeout on the underlying HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpc.Timeout = d
	}
}

// NewClient creates a signed request client for the authority at baseURL.
// appID is bound into every signed header so the authority can attribute
// requests to this service.
func NewClient(baseURL, appID string, signer ticket.Signer, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid authority URL %q: %w", baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("authority URL %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL: parsed,
		appID:   appID,
		signer:  signer,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// OnExpiredTicket registers the hook fired when the authority rejects a
// request because the signing ticket expired. The hook must not block.
func (c *Client) OnExpiredTicket(hook func()) {
	c.onExpiredTicket.Store(&hook)
}

// AppID returns the app identity this client signs on behalf of.
func (c *Client) AppID() string {
	return c.appID
}

// Send performs one request against the authority. A nil payload sends an
// empty body; otherwise payload is serialized as JSON. The credential decides
// signing: NoCredential sends the request unsigned, an AppCredential or
// Ticket produces a MAC authorization header over the method and URL.
//
// The returned bytes are the raw JSON success payload. Failures are one of
// *TransportError, *ProtocolError or *AuthorityError.
func (c *Client) Send(
	ctx context.Context, method, path string, payload any, cred ticket.Credential,
) (json.RawMessage, error) {
	target := c.baseURL.JoinPath(path).String()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	header, err := c.authorizationHeader(method, target, cred)
	if err != nil {
		return nil, err
	}
	if header != "" {
		req.Header.Set("Authorization", header)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, target)
}

// authorizationHeader resolves the credential union at the signing boundary.
// The switch is exhaustive over the three credential shapes.
func (c *Client) authorizationHeader(method, target string, cred ticket.Credential) (string, error) {
	var sign ticket.SignRequest

	switch v := cred.(type) {
	case nil, ticket.NoCredential:
		return "", nil
	case ticket.AppCredential:
		sign = ticket.SignRequest{ID: v.ID, Key: v.Key, Algorithm: v.Algorithm}
	case ticket.Ticket:
		if v.IsZero() {
			return "", fmt.Errorf("cannot sign %s %s: empty ticket", method, target)
		}
		sign = ticket.SignRequest{ID: v.ID, Key: v.Key, Algorithm: v.Algorithm}
	default:
		return "", fmt.Errorf("unknown credential type %T", cred)
	}

	sign.Method = method
	sign.URL = target
	sign.App = c.appID

	header, err := c.signer.Header(sign)
	if err != nil {
		return "", fmt.Errorf("signing %s %s: %w", method, target, err)
	}
	return header, nil
}

func (c *Client) parseResponse(resp *http.Response, target string) (json.RawMessage, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}

	if len(data) == 0 {
		// The authority encodes failures in its envelope; an empty body with
		// an error-class HTTP status means something in front of it failed.
		if resp.StatusCode >= 300 {
			return nil, &AuthorityError{StatusCode: resp.StatusCode, Kind: http.StatusText(resp.StatusCode)}
		}
		return nil, nil
	}

	if !json.Valid(data) {
		return nil, &ProtocolError{URL: target, Err: fmt.Errorf("response is not valid JSON")}
	}

	var envelope AuthorityError
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.StatusCode >= 300 {
		if envelope.ExpiredTicket() {
			c.fireExpiredTicket()
		}
		return nil, &envelope
	}

	return json.RawMessage(data), nil
}

// fireExpiredTicket triggers app ticket re-acquisition without blocking the
// request that observed the expiry.
func (c *Client) fireExpiredTicket() {
	hook := c.onExpiredTicket.Load()
	if hook == nil {
		return
	}
	logger.Debug("authority reported expired app ticket, triggering re-acquisition")
	(*hook)()
}
