package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonwraymond/opguard/resilience"
)

// registerGauges exposes admission state that otel instruments do not
// cover: bulkhead occupancy and the number of tracked rate limit clients.
func registerGauges(reg prometheus.Registerer, b *resilience.Bulkhead, rl *resilience.RateLimiter) error {
	var collectors []prometheus.Collector
	if b != nil {
		collectors = append(collectors,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "opguard",
				Subsystem: "bulkhead",
				Name:      "active",
				Help:      "Operations currently holding a bulkhead slot.",
			}, func() float64 { return float64(b.Stats().Active) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "opguard",
				Subsystem: "bulkhead",
				Name:      "peak",
				Help:      "Highest number of concurrent slots held since start.",
			}, func() float64 { return float64(b.Stats().Peak) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "opguard",
				Subsystem: "bulkhead",
				Name:      "rejected_total",
				Help:      "Invocations rejected because the bulkhead was full.",
			}, func() float64 { return float64(b.Stats().Rejected) }),
		)
	}
	if rl != nil {
		collectors = append(collectors,
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "opguard",
				Subsystem: "ratelimit",
				Name:      "clients",
				Help:      "Clients tracked by the rate limiter.",
			}, func() float64 { return float64(len(rl.Clients())) }),
		)
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
