package auth

import (
	"context"

	"famfinance/internal/core"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   string
	FamilyID string
	Role     core.Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == core.RoleAdmin
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
