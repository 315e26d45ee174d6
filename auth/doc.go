// Package auth identifies the caller an operation runs on behalf of.
//
// It resolves API keys to identities, carries the identity in a context and
// performs role checks. Failures are reported with sentinel errors that the
// fault classifier maps to authentication and authorization kinds.
package auth
