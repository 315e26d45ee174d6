package fault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/opguard/auth"
)

var fixedNow = time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC)

func newTestClassifier(opts ...ClassifierOption) *Classifier {
	base := []ClassifierOption{
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewClassifier(append(base, opts...)...)
}

func TestClassify_TypedError(t *testing.T) {
	c := newTestClassifier()

	err := FieldError("email", "must contain @").WithSeverity(SeverityLow)
	rec := c.Classify(fmt.Errorf("signup: %w", err))

	assert.Equal(t, KindValidation, rec.Kind())
	assert.Equal(t, SeverityLow, rec.Severity())
	assert.Equal(t, "validation failed", rec.Message())
	assert.Equal(t, map[string]any{"email": "must contain @"}, rec.Details())
	assert.Equal(t, fixedNow, rec.Timestamp())
	require.Len(t, rec.Causes(), 2)
	assert.Equal(t, "fault.Error", rec.Causes()[1].Type)
}

func TestClassify_DefaultSeverityIsMedium(t *testing.T) {
	rec := newTestClassifier().Classify(BusinessLogic("order already shipped"))

	assert.Equal(t, KindBusinessLogic, rec.Kind())
	assert.Equal(t, SeverityMedium, rec.Severity())
}

func TestClassify_UnknownKindFallsBackToSystem(t *testing.T) {
	rec := newTestClassifier().Classify(New(Kind(42), "odd"))

	assert.Equal(t, KindSystem, rec.Kind())
}

func TestClassify_UnrecognizedError(t *testing.T) {
	rec := newTestClassifier().Classify(errors.New("disk quota exceeded on /var/data"))

	assert.Equal(t, KindSystem, rec.Kind())
	assert.Equal(t, SeverityHigh, rec.Severity())
	assert.NotContains(t, rec.Message(), "disk quota")
	assert.Equal(t, "disk quota exceeded on /var/data", rec.Context()["error"])
	assert.Equal(t, "errors.errorString", rec.Context()["type"])
	assert.Empty(t, rec.Details())
}

func TestClassify_NilError(t *testing.T) {
	rec := newTestClassifier().Classify(nil)

	assert.Equal(t, KindSystem, rec.Kind())
	assert.Equal(t, SeverityLow, rec.Severity())
}

func TestClassify_PanickingMatcherDegradesToSystem(t *testing.T) {
	c := newTestClassifier(WithoutDefaultMatchers(), WithMatchers(func(error) (Match, bool) {
		panic("boom")
	}))

	var rec Record
	require.NotPanics(t, func() { rec = c.Classify(errors.New("x")) })
	assert.Equal(t, KindSystem, rec.Kind())
	assert.Equal(t, SeverityHigh, rec.Severity())
	assert.Equal(t, "boom", rec.Context()["classifier_panic"])
	assert.NotEmpty(t, rec.ID())
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier()
	errs := []error{
		errors.New("plain"),
		Validation("bad"),
		context.DeadlineExceeded,
		&pq.Error{Code: "23505"},
	}
	for _, err := range errs {
		first := c.Classify(err)
		for i := 0; i < 5; i++ {
			again := c.Classify(err)
			assert.Equal(t, first.Kind(), again.Kind(), "kind for %v", err)
			assert.Equal(t, first.Severity(), again.Severity(), "severity for %v", err)
		}
	}
}

func TestClassify_Drivers(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		severity Severity
	}{
		{"context canceled", context.Canceled, KindSystem, SeverityLow},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindExternalService, SeverityMedium},
		{"auth forbidden", auth.ErrForbidden, KindAuthorization, SeverityMedium},
		{"auth invalid", auth.ErrInvalidCredentials, KindAuthentication, SeverityMedium},
		{"jwt expired", fmt.Errorf("%w: %w", jwt.ErrTokenInvalidClaims, jwt.ErrTokenExpired), KindAuthentication, SeverityMedium},
		{"pq unique", &pq.Error{Code: "23505"}, KindBusinessLogic, SeverityMedium},
		{"pq connection", &pq.Error{Code: "08006"}, KindExternalService, SeverityHigh},
		{"pq bad input", &pq.Error{Code: "22P02"}, KindValidation, SeverityLow},
		{"pq auth", &pq.Error{Code: "28P01"}, KindSystem, SeverityCritical},
		{"pgx deadlock", &pgconn.PgError{Code: "40P01"}, KindExternalService, SeverityMedium},
		{"pgx cancel", &pgconn.PgError{Code: "57014"}, KindExternalService, SeverityMedium},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, KindBusinessLogic, SeverityMedium},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, KindExternalService, SeverityMedium},
		{"mysql bad conn", mysql.ErrInvalidConn, KindExternalService, SeverityHigh},
		{"no rows", sql.ErrNoRows, KindBusinessLogic, SeverityLow},
		{"conn done", sql.ErrConnDone, KindExternalService, SeverityHigh},
		{"net", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindExternalService, SeverityMedium},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.Classify(tt.err)
			assert.Equal(t, tt.kind, rec.Kind())
			assert.Equal(t, tt.severity, rec.Severity())
			assert.NotEmpty(t, rec.Context()["type"])
		})
	}
}

func TestClassify_TypedErrorWinsOverMatchers(t *testing.T) {
	err := ExternalService("ledger", "write failed").WithCause(&pq.Error{Code: "23505"})

	rec := newTestClassifier().Classify(err)

	assert.Equal(t, KindExternalService, rec.Kind())
	assert.Equal(t, "ledger", rec.Context()["service"])
}

func TestNewID_Format(t *testing.T) {
	id := NewID(fixedNow)

	assert.True(t, strings.HasPrefix(id, "error_20240309_"), id)
	assert.Len(t, id, len("error_20240309_")+8)
	assert.NotEqual(t, id, NewID(fixedNow))
}

func TestRecord_AccessorsReturnCopies(t *testing.T) {
	rec := NewRecord(RecordInput{
		ID:      "error_1",
		Kind:    KindValidation,
		Context: map[string]any{"a": 1},
		Details: map[string]any{"field": "bad"},
		Causes:  []Cause{{Type: "x", Message: "y"}},
	})

	rec.Context()["a"] = 2
	rec.Details()["field"] = "changed"
	rec.Causes()[0].Message = "changed"

	assert.Equal(t, 1, rec.Context()["a"])
	assert.Equal(t, "bad", rec.Details()["field"])
	assert.Equal(t, "y", rec.Causes()[0].Message)
	assert.Equal(t, SeverityMedium, rec.Severity())
}

func TestRecord_InputMapsAreCopied(t *testing.T) {
	ctx := map[string]any{"k": "v"}
	rec := NewRecord(RecordInput{Context: ctx})

	ctx["k"] = "mutated"

	assert.Equal(t, "v", rec.Context()["k"])
}

func TestCauseChain_Joined(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")

	chain := causeChain(errors.Join(a, b))

	require.Len(t, chain, 3)
	assert.Equal(t, "a", chain[1].Message)
	assert.Equal(t, "b", chain[2].Message)
}

func TestCategorize_MatchesClassify(t *testing.T) {
	c := newTestClassifier()
	errs := []error{
		nil,
		Validation("bad"),
		ExternalService("billing", "timeout").WithSeverity(SeverityHigh),
		context.DeadlineExceeded,
		auth.ErrForbidden,
		errors.New("unknown"),
	}
	for _, err := range errs {
		kind, sev := c.Categorize(err)
		rec := c.Classify(err)
		assert.Equal(t, rec.Kind(), kind, "%v", err)
		assert.Equal(t, rec.Severity(), sev, "%v", err)
	}
}
