package auth

import "errors"

// Authentication failures. The fault classifier maps all three to the
// Authentication kind, so callers see one generic message.
var (
	ErrMissingCredentials = errors.New("auth: no api key presented")
	ErrInvalidCredentials = errors.New("auth: unknown api key")
	ErrCredentialsExpired = errors.New("auth: api key expired")
)

// ErrForbidden is matched by every authorization failure, including
// *DeniedError.
var ErrForbidden = errors.New("auth: access denied")
