// Package auth implements the two-stage call gate: bearer-token
// authentication against a static keyring, followed by role-based
// authorization against a policy table. Authentication produces an
// explicit tri-state Result rather than raising on failure; the
// transport middleware decides whether a rejection is fatal for the
// method being invoked.
package auth

import "context"

// Principal is an authenticated caller identity. Values are immutable
// once issued by the keyring.
type Principal struct {
	// UserID identifies the caller.
	UserID string
	// Role selects the policy row the caller is authorized under.
	Role string
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal attached by WithPrincipal. The
// second return is false when the call was never authenticated.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
