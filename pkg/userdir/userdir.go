// Package userdir defines the user directory port. Platform accounts live in
// an external service; the engine resolves bearer tokens and looks up display
// data through this port and never stores credentials itself.
package userdir

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Platform account roles.
const (
	RoleLandlord = "landlord"
	RoleTenant   = "tenant"
	RoleAdmin    = "admin"
)

// User is the directory view of a platform account.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Phone string    `json:"phone,omitempty"`
	Role  string    `json:"role"`
}

// ErrUnauthorized is returned when a bearer token resolves to no account.
var ErrUnauthorized = errors.New("unknown or expired token")

// ErrNotFound is returned when no account has the given id.
var ErrNotFound = errors.New("user not found")

// Directory is the user directory port.
type Directory interface {
	// Authenticate resolves a platform bearer token into the account it
	// belongs to, or ErrUnauthorized.
	Authenticate(ctx context.Context, token string) (*User, error)

	// Get returns the account with the given id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*User, error)
}
