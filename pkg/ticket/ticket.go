// Package ticket defines the credential material exchanged with the
// authority: the static app credential, issued tickets, and the tagged
// credential union used at the signing boundary.
package ticket

import (
	"fmt"
	"time"
)

// AppCredential is this service's own identity with the authority.
// It is loaded once at startup and immutable for the process lifetime.
type AppCredential struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	Algorithm string `json:"algorithm"`
}

// String returns a representation with the key redacted to prevent
// accidental leakage when the credential is logged.
func (c AppCredential) String() string {
	return fmt.Sprintf("AppCredential{ID:%q, Algorithm:%q}", c.ID, c.Algorithm)
}

// Ticket is a time-limited credential issued by the authority. Two logical
// variants share this shape: an app ticket (User empty) representing the
// service itself, and a user ticket (User set, Grant identifying the
// delegation) representing the service acting for an end user.
//
// The Key and Algorithm fields are opaque signing material; nothing in this
// module interprets them beyond handing them to the signer.
type Ticket struct {
	ID        string   `json:"id"`
	Key       string   `json:"key"`
	Algorithm string   `json:"algorithm"`
	App       string   `json:"app"`
	Grant     string   `json:"grant,omitempty"`
	User      string   `json:"user,omitempty"`
	Exp       int64    `json:"exp"`
	Scope     []string `json:"scope,omitempty"`
}

// String redacts the ticket key.
func (t Ticket) String() string {
	return fmt.Sprintf("Ticket{ID:%q, App:%q, User:%q, Exp:%d}", t.ID, t.App, t.User, t.Exp)
}

// IsZero reports whether the ticket carries no credential material.
func (t Ticket) IsZero() bool {
	return t.ID == "" && t.Key == ""
}

// ExpiresAt returns the authority-issued expiry. Exp is a millisecond
// UNIX timestamp on the wire.
func (t Ticket) ExpiresAt() time.Time {
	return time.UnixMilli(t.Exp)
}

// Expired reports whether the ticket's recorded expiry has passed. The
// authority remains the source of truth for liveness; this only gates local
// use of the ticket as signing material.
func (t Ticket) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// Credential is the tagged union handed to the signing boundary. Exactly
// three shapes exist: NoCredential (send unsigned), an AppCredential (the
// static app secret, used only for bootstrap acquisition), or a Ticket.
type Credential interface {
	credential()
}

// NoCredential marks a request that must be sent unsigned.
type NoCredential struct{}

func (NoCredential) credential()  {}
func (AppCredential) credential() {}
func (Ticket) credential()       {}
