// Package access restricts privileged policy operations to one administrator.
package access

import (
	"errors"
	"strings"
)

// Errors returned by Guard. The root package re-exports them.
var (
	ErrUnauthorized = errors.New("policymaker: unauthorized")
	ErrNoAdmin      = errors.New("policymaker: administrator identity is required")
)

// Guard admits a single administrator identity, fixed at construction.
// There is no transfer operation.
type Guard struct {
	admin string
}

// New creates a Guard for admin. Identities are compared verbatim after
// trimming surrounding whitespace.
func New(admin string) (*Guard, error) {
	admin = strings.TrimSpace(admin)
	if admin == "" {
		return nil, ErrNoAdmin
	}
	return &Guard{admin: admin}, nil
}

// Admin returns the administrator identity.
func (g *Guard) Admin() string { return g.admin }

// Authorize returns ErrUnauthorized unless caller is the administrator.
func (g *Guard) Authorize(caller string) error {
	if strings.TrimSpace(caller) != g.admin {
		return ErrUnauthorized
	}
	return nil
}
