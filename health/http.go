package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// requestTimeout bounds the probes run for one HTTP request, on top of the
// per-probe timeout.
const requestTimeout = 10 * time.Second

// Mux is satisfied by *http.ServeMux and chi routers. Patterns use
// {name} wildcards, which both expose through Request.PathValue.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// RegisterHandlers mounts /healthz, /readyz, /health and /health/{name}.
func RegisterHandlers(mux Mux, c *Checker) {
	mux.Handle("/healthz", LivenessHandler())
	mux.Handle("/readyz", ReadinessHandler(c))
	mux.Handle("/health", DetailedHandler(c))
	mux.Handle("/health/{name}", CheckHandler(c))
}

// LivenessHandler answers 200 OK while the process serves requests. It runs
// no probes.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "OK")
	}
}

// ReadinessHandler runs every probe and answers 200 OK, or 503 with the
// names of the failed probes.
func ReadinessHandler(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		report := c.RunChecks(ctx)
		if report.Healthy() {
			writeText(w, http.StatusOK, "OK")
			return
		}
		failed := report.Failed()
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Name
		}
		writeText(w, http.StatusServiceUnavailable, "UNHEALTHY: "+strings.Join(names, ", "))
	}
}

// DetailedHandler writes the full JSON report, with 503 when unhealthy.
func DetailedHandler(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		report := c.RunChecks(ctx)
		writeJSON(w, statusFor(report.Healthy()), report)
	}
}

// CheckHandler runs the probe named by the {name} path wildcard.
func CheckHandler(c *Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SingleCheckHandler(c, r.PathValue("name")).ServeHTTP(w, r)
	}
}

// SingleCheckHandler runs the probe registered under name. Unknown names
// answer 404.
func SingleCheckHandler(c *Checker, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		result, err := c.Check(ctx, name)
		if errors.Is(err, ErrCheckerNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, statusFor(result.Passed()), result)
	}
}

func statusFor(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
