// Package appticket maintains this service's own ticket with the authority:
// initial acquisition, renewal ahead of expiry, and fixed-cadence retry on
// failure. A single goroutine owns the ticket; everything else reads
// snapshots.
package appticket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ticketbridge/ticketbridge/pkg/authority"
	"github.com/ticketbridge/ticketbridge/pkg/logger"
	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

const (
	// defaultTicketBuffer is the safety margin before expiry at which the
	// ticket is renewed, so renewal lands strictly before the authority
	// considers the ticket expired.
	defaultTicketBuffer = 10 * time.Second

	// defaultRetryInterval is the fixed delay between consecutive failed
	// acquisition attempts. There is no backoff growth; the cadence is
	// bounded and predictable.
	defaultRetryInterval = 5 * time.Minute
)

// ErrNotReady is returned by callers that need the app ticket before the
// first acquisition has succeeded. Dependent calls fail fast rather than
// block on bootstrap.
var ErrNotReady = errors.New("app ticket not yet acquired")

// Sender is the slice of the authority client the manager needs.
type Sender interface {
	Send(ctx context.Context, method, path string, payload any, cred ticket.Credential) (json.RawMessage, error)
}

// Manager owns the app's current ticket. Construct with NewManager, start
// the lifecycle with Run, and read snapshots with Current. Reacquire
// requests an immediate re-acquisition, typically wired as the signed
// request client's expired-ticket hook.
type Manager struct {
	client        Sender
	cred          ticket.AppCredential
	ticketBuffer  time.Duration
	retryInterval time.Duration

	mu      sync.RWMutex
	current ticket.Ticket
	valid   bool

	// reacquire carries at most one pending trigger; further triggers
	// coalesce so that only one authority call is ever in flight.
	reacquire chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTicketBuffer overrides the renewal safety margin.
func WithTicketBuffer(d time.Duration) Option {
	return func(m *Manager) {
		m.ticketBuffer = d
	}
}

// WithRetryInterval overrides the fixed delay between failed attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.retryInterval = d
	}
}

// NewManager creates a manager for the given app credential. Run must be
// called for the ticket to ever become available.
func NewManager(client Sender, cred ticket.AppCredential, opts ...Option) *Manager {
	m := &Manager{
		client:        client,
		cred:          cred,
		ticketBuffer:  defaultTicketBuffer,
		retryInterval: defaultRetryInterval,
		reacquire:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns a snapshot of the app ticket. ok is false until the first
// acquisition succeeds. The snapshot may be briefly stale around a renewal;
// the authority reports expiry authoritatively either way.
func (m *Manager) Current() (ticket.Ticket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.valid
}

// Reacquire requests an immediate re-acquisition of the app ticket. It never
// blocks; triggers arriving while an attempt is in flight coalesce into a
// single follow-up attempt.
func (m *Manager) Reacquire() {
	select {
	case m.reacquire <- struct{}{}:
	default:
	}
}

type attemptMode int

const (
	modeAcquire attemptMode = iota
	modeRenew
)

// Run drives the acquisition/renewal loop until ctx is cancelled. It is the
// only writer of the current ticket, and it schedules the next attempt only
// after the previous one resolves, so attempts are strictly serialized.
func (m *Manager) Run(ctx context.Context) error {
	retry := backoff.NewConstantBackOff(m.retryInterval)

	// First acquisition fires immediately on startup.
	timer := time.NewTimer(0)
	defer timer.Stop()

	mode := modeAcquire
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-m.reacquire:
			// Expired-ticket trigger: the existing ticket may itself be
			// invalid, so go through the acquisition path right away.
			stopTimer(timer)
			mode = modeAcquire
		}

		next, err := m.attempt(ctx, mode)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Errorw("app ticket attempt failed, will retry",
				"app", m.cred.ID, "retry_in", m.retryInterval.String(), "error", err)
			mode = modeAcquire
			timer.Reset(retry.NextBackOff())
			continue
		}

		mode = modeRenew
		timer.Reset(next)
	}
}

// attempt performs one acquisition or renewal and, on success, returns the
// delay until the next renewal.
func (m *Manager) attempt(ctx context.Context, mode attemptMode) (time.Duration, error) {
	var (
		raw json.RawMessage
		err error
	)
	switch mode {
	case modeAcquire:
		raw, err = m.client.Send(ctx, http.MethodPost, authority.PathTicketApp, map[string]any{}, m.cred)
	case modeRenew:
		current, ok := m.Current()
		if !ok {
			// Renewal without a ticket cannot happen through the normal
			// state machine; recover by acquiring.
			return m.attempt(ctx, modeAcquire)
		}
		raw, err = m.client.Send(ctx, http.MethodPost, authority.PathTicketReissue, nil, current)
	}
	if err != nil {
		return 0, err
	}

	var t ticket.Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.current = t
	m.valid = true
	m.mu.Unlock()

	next := m.renewIn(t)
	logger.Infow("app ticket acquired", "app", m.cred.ID, "exp", t.ExpiresAt(), "renew_in", next.String())
	return next, nil
}

// renewIn computes exp - now - ticketBuffer, clamped at zero for tickets
// already inside the buffer window.
func (m *Manager) renewIn(t ticket.Ticket) time.Duration {
	d := time.Until(t.ExpiresAt()) - m.ticketBuffer
	if d < 0 {
		return 0
	}
	return d
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
