package auth

import "context"

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Role   string
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}

// HasRole reports whether the principal holds one of roles.
func (p Principal) HasRole(roles ...string) bool {
	for _, role := range roles {
		if role != "" && p.Role == role {
			return true
		}
	}
	return false
}
