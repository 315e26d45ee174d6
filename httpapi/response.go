package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/jonwraymond/opguard/fault"
	"github.com/jonwraymond/opguard/resilience"
)

// Result is the success envelope.
type Result struct {
	Data     any `json:"data"`
	Attempts int `json:"attempts"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteResponse writes a failure envelope. Rate limit rejections carry a
// Retry-After header.
func WriteResponse(w http.ResponseWriter, resp fault.Response) {
	if secs, ok := resp.Error.Details["retry_after_seconds"].(int); ok && secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	WriteJSON(w, resp.HTTPStatus(), resp)
}

// WriteOutcome writes the result of an executor invocation.
func WriteOutcome(w http.ResponseWriter, out resilience.Outcome) {
	if out.OK() {
		WriteJSON(w, http.StatusOK, Result{Data: out.Value, Attempts: out.Attempts})
		return
	}
	if out.Response != nil {
		WriteResponse(w, *out.Response)
		return
	}
	WriteResponse(w, fault.NewFormatter().Format(fault.NewClassifier().Classify(out.Err)))
}
