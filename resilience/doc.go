// Package resilience runs operations inside a failure-handling envelope.
//
// # Components
//
//   - RateLimiter: per-client sliding-window admission. A rejected call is
//     not recorded and never reaches the operation.
//
//   - Retry: repeats an Operation under a Policy with exponential backoff
//     and optional jitter. Only failures whose classified kind is in
//     Policy.RetryableKinds are retried; everything else returns at once,
//     unchanged. The backoff wait is the only suspension point and it
//     honours context cancellation.
//
//   - Timeout: bounds a single attempt. A timed-out attempt counts as an
//     external service failure.
//
//   - Bulkhead: caps concurrent invocations.
//
//   - Executor: composes the above and turns terminal failures into a
//     classified fault.Record, a caller-safe fault.Response, a log entry and
//     an audit event.
//
// # Usage
//
//	limiter, err := resilience.NewRateLimiter(resilience.RateLimiterConfig{
//	    MaxRequests: 100,
//	    Window:      time.Minute,
//	})
//	if err != nil {
//	    return err
//	}
//
//	exec := resilience.NewExecutor(
//	    resilience.WithRateLimiter(limiter),
//	    resilience.WithTimeout(5*time.Second),
//	    resilience.WithAuditor(auditLog),
//	)
//
//	ctx = observe.WithOperation(ctx, observe.OperationMeta{Namespace: "billing", Name: "charge"})
//	out := exec.Invoke(ctx, clientID, func(ctx context.Context) (any, error) {
//	    return gateway.Charge(ctx, req)
//	}, resilience.DefaultPolicy())
//	if !out.OK() {
//	    httpapi.WriteResponse(w, *out.Response)
//	}
package resilience
