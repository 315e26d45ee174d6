package httpapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jonwraymond/opguard/audit"
	"github.com/jonwraymond/opguard/auth"
	"github.com/jonwraymond/opguard/fault"
	"github.com/jonwraymond/opguard/observe"
)

// Header names read by the API.
const (
	HeaderClientID = "X-Client-ID"
	HeaderAPIKey   = "X-API-Key"
)

// ClientID identifies the caller for rate limiting: the authenticated
// principal, then the remote host. X-Client-ID is never consulted here; see
// Config.TrustClientHeader.
func ClientID(r *http.Request) string {
	if id := auth.IdentityFromContext(r.Context()); id != nil && !id.IsAnonymous() {
		return id.Principal
	}
	return remoteHost(r)
}

// clientIDFunc returns ClientID, or a variant that honours X-Client-ID
// ahead of the remote host when a trusted proxy sets it.
func clientIDFunc(trustHeader bool) func(*http.Request) string {
	if !trustHeader {
		return ClientID
	}
	return func(r *http.Request) string {
		if id := auth.IdentityFromContext(r.Context()); id != nil && !id.IsAnonymous() {
			return id.Principal
		}
		if id := strings.TrimSpace(r.Header.Get(HeaderClientID)); id != "" {
			return id
		}
		return remoteHost(r)
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestContext copies chi's request ID into the observe context so logs
// and audit events carry it.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = observe.WithRequestID(ctx, id)
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// apiKey extracts the key from X-API-Key or a bearer Authorization header.
func apiKey(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// authenticator attaches an identity to each request.
type authenticator struct {
	keys       *auth.KeyAuthenticator
	required   bool
	classifier *fault.Classifier
	formatter  *fault.Formatter
	auditor    *audit.Logger
	logger     observe.Logger
	clientID   func(*http.Request) string
}

func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := apiKey(r)

		if key == "" && !a.required {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(ctx, auth.Anonymous(a.clientID(r)))))
			return
		}

		id, err := a.keys.Authenticate(ctx, key)
		if err != nil {
			rec := a.classifier.Classify(err)
			observe.LogRecord(ctx, a.logger, "authentication failed", rec,
				observe.Field{Key: "path", Value: r.URL.Path})
			ev := audit.FailureEvent(rec, r.URL.Path, r.Method)
			ev.Details["client_id"] = a.clientID(r)
			a.auditor.Record(ctx, ev)
			WriteResponse(w, a.formatter.Format(rec))
			return
		}

		ctx = auth.WithIdentity(ctx, id)
		a.auditor.Record(ctx, audit.Event{
			Type:     audit.EventAuthSuccess,
			Resource: r.URL.Path,
			Action:   r.Method,
			Outcome:  audit.OutcomeSuccess,
			Details:  map[string]any{"key_id": id.KeyID},
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
