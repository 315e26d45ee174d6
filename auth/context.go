package auth

import "context"

type identityKey struct{}

// AnonymousActor is the audit actor for callers with no identity.
const AnonymousActor = "anonymous"

// WithIdentity attaches id to ctx. A nil id leaves ctx unchanged.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached by WithIdentity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// PrincipalFromContext returns the caller's principal, or "".
func PrincipalFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Principal
	}
	return ""
}

// TenantIDFromContext returns the caller's tenant, or "".
func TenantIDFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.TenantID
	}
	return ""
}

// Actor names the caller in an audit trail. Unverified identities keep their
// client identifier; a context without identity yields AnonymousActor.
func Actor(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != "" {
		return p
	}
	return AnonymousActor
}
