// Package member resolves the member records that claim links are issued for.
//
// General member CRUD lives elsewhere; this package only reads.
package member

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("member not found")
)

// Member is the subset of a member record the claim flow needs.
type Member struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// FullName returns "{first} {last}", the value a declaration signature must match.
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName) + " " + strings.TrimSpace(m.LastName)
}

// Directory looks members up by ID.
type Directory interface {
	GetMember(ctx context.Context, id string) (Member, error)
}
