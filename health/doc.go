// Package health aggregates dependency probes into a service health report.
//
// A Probe returns nil when its dependency is usable. A Checker runs every
// registered probe in parallel, each under its own timeout and with panics
// recovered, and reports the results in registration order. The report is
// Unhealthy when any probe failed.
//
// # Basic Usage
//
//	checker := health.NewChecker(health.CheckerConfig{Timeout: 2 * time.Second})
//	checker.RegisterCheck("postgres", health.SQLProbe(db))
//	checker.RegisterCheck("redis", health.RedisProbe(rdb))
//	checker.RegisterCheck("memory", health.NewMemoryProbe(health.MemoryProbeConfig{}))
//
//	report := checker.RunChecks(ctx)
//	if !report.Healthy() {
//	    for _, c := range report.Failed() {
//	        log.Printf("%s: %s", c.Name, c.Error)
//	    }
//	}
//
// # HTTP
//
// RegisterHandlers mounts /healthz (liveness), /readyz (plain readiness),
// /health (JSON report) and /health/{name} (one probe) on an http.ServeMux or
// chi router.
package health
