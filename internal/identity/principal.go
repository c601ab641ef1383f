package identity

import (
	"context"
	"slices"
	"strings"
)

const RoleAdmin = "Admin"

// Principal is the authenticated caller. Core operations receive it explicitly.
type Principal struct {
	UserID   string   `json:"user_id"`
	Email    string   `json:"email"`
	UserName string   `json:"user_name"`
	Roles    []string `json:"roles"`
}

// HasRole compares role names case-insensitively.
func (p Principal) HasRole(role string) bool {
	return slices.ContainsFunc(p.Roles, func(r string) bool {
		return strings.EqualFold(r, role)
	})
}

func (p Principal) IsAdmin() bool {
	return p.HasRole(RoleAdmin)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by the Authenticate middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
