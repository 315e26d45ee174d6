package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/opguard/audit"
	"github.com/jonwraymond/opguard/auth"
	"github.com/jonwraymond/opguard/fault"
	"github.com/jonwraymond/opguard/health"
	"github.com/jonwraymond/opguard/observe"
	"github.com/jonwraymond/opguard/resilience"
)

// Config wires the router's collaborators. Executor is required; every other
// field is optional.
type Config struct {
	Executor *resilience.Executor
	Checker  *health.Checker

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	// Keys enables API key authentication on /v1.
	Keys auth.KeyStore

	// RequireAuth rejects /v1 requests without a key. Without it, keyless
	// callers proceed as anonymous identities.
	RequireAuth bool

	// Roles, when set, are required to probe dependencies.
	Roles []string

	// TrustClientHeader lets X-Client-ID name unauthenticated callers for
	// rate limiting. Only enable it behind a proxy that sets the header.
	TrustClientHeader bool

	Auditor    *audit.Logger
	Logger     observe.Logger
	Classifier *fault.Classifier
	Formatter  *fault.Formatter
}

// Handler serves operations through a resilience executor.
type Handler struct {
	exec       *resilience.Executor
	checker    *health.Checker
	roles      []string
	classifier *fault.Classifier
	formatter  *fault.Formatter
	logger     observe.Logger
	clientID   func(*http.Request) string
}

// NewHandler creates a handler from cfg.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		exec:       cfg.Executor,
		checker:    cfg.Checker,
		roles:      cfg.Roles,
		classifier: cfg.Classifier,
		formatter:  cfg.Formatter,
		logger:     cfg.Logger,
		clientID:   clientIDFunc(cfg.TrustClientHeader),
	}
	if h.exec == nil {
		h.exec = resilience.NewExecutor()
	}
	if h.classifier == nil {
		h.classifier = fault.NewClassifier()
	}
	if h.formatter == nil {
		h.formatter = fault.NewFormatter()
	}
	if h.logger == nil {
		h.logger = observe.NopLogger()
	}
	if h.checker == nil {
		h.checker = health.NewChecker(health.CheckerConfig{Logger: h.logger})
	}
	return h
}

// Builder turns a request into an operation. A builder error is reported
// without running the executor.
type Builder func(r *http.Request) (resilience.Operation, error)

// Invoke adapts an operation to HTTP. The request runs under meta with the
// caller's client ID and the outcome is written as JSON.
func (h *Handler) Invoke(meta observe.OperationMeta, build Builder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := observe.WithOperation(r.Context(), meta)
		r = r.WithContext(ctx)

		op, err := build(r)
		if err != nil {
			rec := h.classifier.Classify(err)
			observe.LogRecord(ctx, h.logger, "request rejected", rec)
			WriteResponse(w, h.formatter.Format(rec))
			return
		}
		WriteOutcome(w, h.exec.Do(ctx, h.clientID(r), op))
	}
}

// Dependency probes the named health check through the executor, so a
// flapping dependency is retried and a caller that polls too often is
// rate limited.
func (h *Handler) Dependency(r *http.Request) (resilience.Operation, error) {
	name := chi.URLParam(r, "name")
	if name == "" {
		return nil, fault.FieldError("name", "dependency name is required")
	}
	if !slices.Contains(h.checker.Names(), name) {
		return nil, fault.BusinessLogic(fmt.Sprintf("unknown dependency %q", name)).
			WithCause(health.ErrCheckerNotFound)
	}

	return func(ctx context.Context) (any, error) {
		if len(h.roles) > 0 {
			if err := auth.RequireRole(auth.IdentityFromContext(ctx), "dependencies", h.roles...); err != nil {
				return nil, err
			}
		}
		res, err := h.checker.Check(ctx, name)
		if err != nil {
			return nil, err
		}
		if !res.Passed() {
			return nil, fault.ExternalService(name, res.Error).WithContext("latency", res.Latency.String())
		}
		return res, nil
	}, nil
}

// NewRouter builds the HTTP surface:
//
//	GET /healthz, /readyz, /health   health checks
//	GET /metrics                     prometheus, when a gatherer is set
//	GET /v1/dependencies/{name}      probe one dependency through the executor
func NewRouter(cfg Config) chi.Router {
	h := NewHandler(cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)

	health.RegisterHandlers(r, h.checker)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.Keys != nil {
			a := &authenticator{
				keys:       auth.NewKeyAuthenticator(cfg.Keys),
				required:   cfg.RequireAuth,
				classifier: h.classifier,
				formatter:  h.formatter,
				auditor:    cfg.Auditor,
				logger:     h.logger,
				clientID:   h.clientID,
			}
			r.Use(a.middleware)
		}
		r.Get("/dependencies/{name}", h.Invoke(
			observe.OperationMeta{Namespace: "dependencies", Name: "probe"},
			h.Dependency,
		))
	})

	return r
}
