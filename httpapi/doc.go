// Package httpapi exposes the resilience envelope over HTTP with a chi
// router. Failures are written as the {"error": {...}} envelope with the
// status derived from the failure kind.
package httpapi
