// Package session provides the named-slot storage boundary for session
// tickets. The core treats a slot as an opaque read/write/clear cell scoped
// to one session; backends decide where the cell lives.
package session

import (
	"context"
	"errors"

	"github.com/ticketbridge/ticketbridge/pkg/ticket"
)

// ErrNotFound is returned by Load when the slot holds no ticket.
var ErrNotFound = errors.New("no ticket in slot")

// SlotName derives the session slot name from the app identity, e.g.
// "my-app_ticket". The same name is used for the cookie variant.
func SlotName(appID string) string {
	return appID + "_ticket"
}

// Store is the session ticket slot boundary.
type Store interface {
	// Store writes a ticket under the named slot, replacing any previous
	// content.
	Store(ctx context.Context, name string, t ticket.Ticket) error

	// Load retrieves the ticket held under the named slot. Returns
	// ErrNotFound if the slot is empty.
	Load(ctx context.Context, name string) (ticket.Ticket, error)

	// Clear empties the named slot. Clearing an empty slot is not an error.
	Clear(ctx context.Context, name string) error

	// Close releases backend resources.
	Close() error
}
