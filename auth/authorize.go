package auth

import "fmt"

// DeniedError describes an authorization failure. It matches ErrForbidden
// with errors.Is.
type DeniedError struct {
	Subject  string
	Resource string
	Reason   string
}

// Error returns the error message.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("authorization denied: subject=%q resource=%q reason=%q",
		e.Subject, e.Resource, e.Reason)
}

// Is reports whether this error matches the target.
func (e *DeniedError) Is(target error) bool {
	return target == ErrForbidden
}

// RequireRole returns nil when id holds at least one of roles. An empty role
// list only requires a non-anonymous identity.
func RequireRole(id *Identity, resource string, roles ...string) error {
	if id == nil || id.IsAnonymous() {
		return ErrMissingCredentials
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if id.HasRole(r) {
			return nil
		}
	}
	return &DeniedError{
		Subject:  id.Principal,
		Resource: resource,
		Reason:   fmt.Sprintf("requires one of %v", roles),
	}
}
