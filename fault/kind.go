package fault

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind is the closed set of failure categories an operation can end in.
type Kind int

const (
	// KindSystem covers internal failures and anything unrecognized.
	KindSystem Kind = iota
	// KindValidation is malformed or rejected input.
	KindValidation
	// KindAuthentication is a failure to establish who the caller is.
	KindAuthentication
	// KindAuthorization is an authenticated caller lacking permission.
	KindAuthorization
	// KindBusinessLogic is a domain rule violation.
	KindBusinessLogic
	// KindExternalService is a failure of a dependency outside the process.
	KindExternalService
)

var kindNames = map[Kind]string{
	KindSystem:          "system",
	KindValidation:      "validation",
	KindAuthentication:  "authentication",
	KindAuthorization:   "authorization",
	KindBusinessLogic:   "business_logic",
	KindExternalService: "external_service",
}

var kindCodes = map[Kind]string{
	KindSystem:          "INTERNAL_ERROR",
	KindValidation:      "VALIDATION_ERROR",
	KindAuthentication:  "AUTHENTICATION_ERROR",
	KindAuthorization:   "AUTHORIZATION_ERROR",
	KindBusinessLogic:   "BUSINESS_LOGIC_ERROR",
	KindExternalService: "EXTERNAL_SERVICE_ERROR",
}

var kindStatus = map[Kind]int{
	KindSystem:          http.StatusInternalServerError,
	KindValidation:      http.StatusBadRequest,
	KindAuthentication:  http.StatusUnauthorized,
	KindAuthorization:   http.StatusForbidden,
	KindBusinessLogic:   http.StatusUnprocessableEntity,
	KindExternalService: http.StatusServiceUnavailable,
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindValidation,
		KindAuthentication,
		KindAuthorization,
		KindBusinessLogic,
		KindExternalService,
		KindSystem,
	}
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Code returns the stable machine-readable code exposed to callers.
func (k Kind) Code() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindSystem]
}

// HTTPStatus returns the HTTP status code for the kind.
func (k Kind) HTTPStatus() int {
	if status, ok := kindStatus[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind parses a kind name. Matching ignores case, and both
// "external_service" and "ExternalService" forms are accepted.
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for k, name := range kindNames {
		if norm == name || norm == strings.ReplaceAll(name, "_", "") {
			return k, nil
		}
	}
	return KindSystem, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// KindSet is an unordered set of kinds.
type KindSet map[Kind]struct{}

// NewKindSet builds a set from the given kinds.
func NewKindSet(kinds ...Kind) KindSet {
	set := make(KindSet, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

// ParseKindSet parses a list of kind names.
func ParseKindSet(names []string) (KindSet, error) {
	set := make(KindSet, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		set[k] = struct{}{}
	}
	return set, nil
}

// Has reports whether k is in the set. A nil set contains nothing.
func (s KindSet) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

// Clone returns an independent copy of the set.
func (s KindSet) Clone() KindSet {
	out := make(KindSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Slice returns the kinds sorted by their numeric value.
func (s KindSet) Slice() []Kind {
	out := make([]Kind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted kind names.
func (s KindSet) Strings() []string {
	kinds := s.Slice()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}
