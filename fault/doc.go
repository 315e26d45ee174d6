// Package fault classifies operation failures and renders them for callers.
//
// Every failure that leaves an operation is reduced to a Record: a kind from
// a closed set, a severity, an identifier and the internal diagnostics. A
// Formatter turns a Record into the error envelope returned to callers,
// exposing detail only where it is safe to do so.
//
// # Raising
//
// Operations raise typed failures with the kind constructors:
//
//	return fault.FieldError("email", "must be a valid address")
//	return fault.ExternalService("billing", "upstream timeout").WithCause(err)
//
// # Classifying
//
// Errors that are not *Error values are recognized by Matchers. The default
// set understands context errors, the auth package sentinels, golang-jwt
// token errors, Postgres (lib/pq and pgx), MySQL, Redis, database/sql and
// network errors. Anything else becomes a high-severity system record whose
// original message is kept only in the record context.
//
//	classifier := fault.NewClassifier()
//	rec := classifier.Classify(err)
//	resp := fault.NewFormatter().Format(rec)
//	// resp.HTTPStatus(), resp.JSON()
package fault
