package auth

import "context"

type identityKey struct{}

// ContextWithIdentity attaches the authenticated payload to ctx.
func ContextWithIdentity(ctx context.Context, p *Payload) context.Context {
	return context.WithValue(ctx, identityKey{}, p)
}

// IdentityFromContext returns the payload stored by ContextWithIdentity.
func IdentityFromContext(ctx context.Context) (*Payload, bool) {
	p, ok := ctx.Value(identityKey{}).(*Payload)
	return p, ok && p != nil
}
