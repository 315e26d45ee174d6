package auth

import (
	"slices"
	"time"
)

// Method indicates how a caller was identified.
type Method string

const (
	MethodAPIKey    Method = "api_key"
	MethodAnonymous Method = "anonymous"
)

// Identity is the caller an operation runs on behalf of.
type Identity struct {
	// Principal is the unique caller identifier.
	Principal string

	// TenantID is the tenant the caller belongs to, if any.
	TenantID string

	// Roles granted to the caller.
	Roles []string

	// Method records how the identity was established.
	Method Method

	// KeyID is the ID of the API key used, for MethodAPIKey.
	KeyID string

	// ExpiresAt is when the credentials expire; zero means never.
	ExpiresAt time.Time
}

// HasRole reports whether the identity has the role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// ExpiredAt reports whether the identity is expired at now.
func (id *Identity) ExpiredAt(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

// IsAnonymous reports whether the identity carries no verified principal.
func (id *Identity) IsAnonymous() bool {
	return id.Method == MethodAnonymous || id.Principal == ""
}

// Anonymous returns an unverified identity for a caller known only by a
// client identifier such as a remote address.
func Anonymous(clientID string) *Identity {
	return &Identity{Principal: clientID, Method: MethodAnonymous}
}
