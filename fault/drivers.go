package fault

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/opguard/auth"
)

// DefaultMatchers returns the matchers installed by NewClassifier, in the
// order they are consulted.
func DefaultMatchers() []Matcher {
	return []Matcher{
		MatchContext,
		MatchAuth,
		MatchJWT,
		MatchPostgres,
		MatchMySQL,
		MatchRedis,
		MatchSQL,
		MatchNet,
	}
}

// MatchContext recognizes context cancellation and deadlines.
func MatchContext(err error) (Match, bool) {
	switch {
	case errors.Is(err, context.Canceled):
		return Match{Kind: KindSystem, Severity: SeverityLow, Message: "operation cancelled"}, true
	case errors.Is(err, context.DeadlineExceeded):
		return Match{Kind: KindExternalService, Severity: SeverityMedium, Message: "operation deadline exceeded"}, true
	}
	return Match{}, false
}

// MatchAuth recognizes the auth package sentinels.
func MatchAuth(err error) (Match, bool) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return Match{Kind: KindAuthorization, Severity: SeverityMedium, Message: "access denied"}, true
	case errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrCredentialsExpired):
		return Match{Kind: KindAuthentication, Severity: SeverityMedium, Message: "authentication failed"}, true
	}
	return Match{}, false
}

var jwtAuthErrors = []error{
	jwt.ErrTokenMalformed,
	jwt.ErrTokenUnverifiable,
	jwt.ErrTokenSignatureInvalid,
	jwt.ErrTokenRequiredClaimMissing,
	jwt.ErrTokenInvalidAudience,
	jwt.ErrTokenExpired,
	jwt.ErrTokenUsedBeforeIssued,
	jwt.ErrTokenInvalidIssuer,
	jwt.ErrTokenInvalidSubject,
	jwt.ErrTokenNotValidYet,
	jwt.ErrTokenInvalidId,
	jwt.ErrTokenInvalidClaims,
}

// MatchJWT recognizes token validation errors from golang-jwt.
func MatchJWT(err error) (Match, bool) {
	for _, target := range jwtAuthErrors {
		if errors.Is(err, target) {
			return Match{
				Kind:     KindAuthentication,
				Severity: SeverityMedium,
				Message:  "authentication failed",
				Context:  map[string]any{"jwt_reason": target.Error()},
			}, true
		}
	}
	if errors.Is(err, jwt.ErrInvalidKey) || errors.Is(err, jwt.ErrInvalidKeyType) || errors.Is(err, jwt.ErrHashUnavailable) {
		return Match{Kind: KindSystem, Severity: SeverityHigh, Message: "token signing misconfigured"}, true
	}
	return Match{}, false
}

// MatchPostgres recognizes lib/pq and pgx server errors by SQLSTATE.
func MatchPostgres(err error) (Match, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		m := sqlStateMatch(string(pqErr.Code))
		m.Context = map[string]any{"sqlstate": string(pqErr.Code), "driver": "pq"}
		return m, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		m := sqlStateMatch(pgErr.Code)
		m.Context = map[string]any{"sqlstate": pgErr.Code, "driver": "pgx", "constraint": pgErr.ConstraintName}
		return m, true
	}
	if pgconn.Timeout(err) {
		return Match{Kind: KindExternalService, Severity: SeverityMedium, Message: "database timeout"}, true
	}
	return Match{}, false
}

func sqlStateMatch(code string) Match {
	switch {
	case code == "57014":
		return Match{Kind: KindExternalService, Severity: SeverityMedium, Message: "database query cancelled"}
	case strings.HasPrefix(code, "08"):
		return Match{Kind: KindExternalService, Severity: SeverityHigh, Message: "database connection failed"}
	case strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57P"):
		return Match{Kind: KindExternalService, Severity: SeverityHigh, Message: "database unavailable"}
	case strings.HasPrefix(code, "40"):
		return Match{Kind: KindExternalService, Severity: SeverityMedium, Message: "database transaction conflict"}
	case strings.HasPrefix(code, "23"):
		return Match{Kind: KindBusinessLogic, Severity: SeverityMedium, Message: "request conflicts with existing data"}
	case strings.HasPrefix(code, "22"):
		return Match{Kind: KindValidation, Severity: SeverityLow, Message: "request contains invalid data"}
	case strings.HasPrefix(code, "28"), code == "42501":
		return Match{Kind: KindSystem, Severity: SeverityCritical, Message: "database access denied"}
	}
	return Match{Kind: KindSystem, Severity: SeverityHigh, Message: "database error"}
}

// MatchMySQL recognizes go-sql-driver/mysql server errors by error number.
func MatchMySQL(err error) (Match, bool) {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return Match{Kind: KindExternalService, Severity: SeverityHigh, Message: "database connection failed"}, true
	}
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return Match{}, false
	}
	var m Match
	switch myErr.Number {
	case 1062, 1451, 1452:
		m = Match{Kind: KindBusinessLogic, Severity: SeverityMedium, Message: "request conflicts with existing data"}
	case 1264, 1366, 1406:
		m = Match{Kind: KindValidation, Severity: SeverityLow, Message: "request contains invalid data"}
	case 1040, 1205, 1213:
		m = Match{Kind: KindExternalService, Severity: SeverityMedium, Message: "database busy"}
	case 1044, 1045, 1142:
		m = Match{Kind: KindSystem, Severity: SeverityCritical, Message: "database access denied"}
	default:
		m = Match{Kind: KindSystem, Severity: SeverityHigh, Message: "database error"}
	}
	m.Context = map[string]any{"mysql_errno": myErr.Number, "driver": "mysql"}
	return m, true
}

// MatchRedis recognizes go-redis errors. redis.Nil is a cache miss, not a
// failure, and is left to the caller.
func MatchRedis(err error) (Match, bool) {
	if errors.Is(err, redis.Nil) {
		return Match{}, false
	}
	if errors.Is(err, redis.ErrClosed) {
		return Match{Kind: KindExternalService, Severity: SeverityHigh, Message: "cache unavailable"}, true
	}
	var rErr redis.Error
	if errors.As(err, &rErr) {
		return Match{Kind: KindExternalService, Severity: SeverityMedium, Message: "cache error", Context: map[string]any{"driver": "redis"}}, true
	}
	return Match{}, false
}

// MatchSQL recognizes database/sql sentinels.
func MatchSQL(err error) (Match, bool) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Match{Kind: KindBusinessLogic, Severity: SeverityLow, Message: "resource not found"}, true
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return Match{Kind: KindExternalService, Severity: SeverityHigh, Message: "database connection failed"}, true
	case errors.Is(err, sql.ErrTxDone):
		return Match{Kind: KindSystem, Severity: SeverityHigh, Message: "transaction already closed"}, true
	}
	return Match{}, false
}

// MatchNet recognizes network errors.
func MatchNet(err error) (Match, bool) {
	var netErr net.Error
	if !errors.As(err, &netErr) {
		return Match{}, false
	}
	if netErr.Timeout() {
		return Match{Kind: KindExternalService, Severity: SeverityMedium, Message: "network timeout"}, true
	}
	return Match{Kind: KindExternalService, Severity: SeverityMedium, Message: "network error"}, true
}
