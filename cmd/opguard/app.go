package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/jonwraymond/opguard/audit"
	"github.com/jonwraymond/opguard/config"
	"github.com/jonwraymond/opguard/health"
	"github.com/jonwraymond/opguard/observe"
	"github.com/jonwraymond/opguard/resilience"
)

// app holds every long-lived component built from a Config.
type app struct {
	cfg      *config.Config
	obs      observe.Observer
	logger   observe.Logger
	registry *prometheus.Registry
	auditor  *audit.Logger
	memory   *audit.MemorySink
	limiter  *resilience.RateLimiter
	bulkhead *resilience.Bulkhead
	checker  *health.Checker
	executor *resilience.Executor

	redis    *redis.Client
	postgres *sqlx.DB
	mysql    *sqlx.DB
	kafka    *kgo.Client
}

// newApp wires components. Backends are opened lazily by their drivers, so a
// dependency that is down at start shows up in health checks rather than
// failing the process.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (_ *app, err error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
		}
	}()

	oc := cfg.ObserveConfig()
	oc.Metrics.Registerer = a.registry
	oc.Logging.Output = logOut
	// Keep stdout for command output.
	oc.TelemetryOutput = logOut
	if a.obs, err = observe.NewObserver(ctx, oc); err != nil {
		return nil, fmt.Errorf("observer: %w", err)
	}
	a.logger = a.obs.Logger()

	if err := a.openBackends(); err != nil {
		return nil, err
	}

	sink, err := a.auditSink(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit sink: %w", err)
	}
	a.auditor = audit.NewLogger(sink, audit.WithLogger(a.logger))

	a.checker = health.NewChecker(cfg.CheckerConfig(a.logger))
	a.registerProbes()

	policy, err := cfg.RetryPolicy()
	if err != nil {
		return nil, err
	}
	instr, err := observe.InstrumentationFromObserver(a.obs)
	if err != nil {
		return nil, fmt.Errorf("instrumentation: %w", err)
	}
	opts := []resilience.ExecutorOption{
		resilience.WithDefaultPolicy(policy),
		resilience.WithAuditor(a.auditor),
		resilience.WithInstrumentation(instr),
		resilience.WithSuccessAudit(cfg.Audit.Successes),
	}
	if cfg.RateLimit.Enabled {
		if a.limiter, err = resilience.NewRateLimiter(cfg.RateLimiterConfig()); err != nil {
			return nil, err
		}
		opts = append(opts, resilience.WithRateLimiter(a.limiter))
	}
	if cfg.Bulkhead.MaxConcurrent > 0 {
		a.bulkhead = resilience.NewBulkhead(cfg.BulkheadConfig())
		opts = append(opts, resilience.WithBulkhead(a.bulkhead))
	}
	if cfg.Retry.AttemptTimeout > 0 {
		opts = append(opts, resilience.WithTimeout(cfg.Retry.AttemptTimeout))
	}
	a.executor = resilience.NewExecutor(opts...)

	if err := registerGauges(a.registry, a.bulkhead, a.limiter); err != nil {
		return nil, fmt.Errorf("gauges: %w", err)
	}

	return a, nil
}

func (a *app) openBackends() error {
	cfg := a.cfg
	if cfg.Redis.URL != "" {
		opts, err := cfg.RedisOptions()
		if err != nil {
			return err
		}
		a.redis = redis.NewClient(opts)
	}

	var err error
	if cfg.Postgres.Enabled() {
		if a.postgres, err = openDB(cfg.Postgres); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if cfg.MySQL.Enabled() {
		mc := cfg.MySQL
		mc.Driver = "mysql"
		if a.mysql, err = openDB(mc); err != nil {
			return fmt.Errorf("mysql: %w", err)
		}
	}
	if cfg.Kafka.Enabled() {
		a.kafka, err = kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.RequiredAcks(kgo.AllISRAcks()),
		)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

func openDB(c config.SQLConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(c.Driver, c.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	return db, nil
}

func (a *app) auditSink(ctx context.Context) (audit.Sink, error) {
	var sinks audit.MultiSink
	for _, name := range a.cfg.Audit.Sinks {
		sink, err := a.namedSink(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if sink != nil {
			sinks = append(sinks, sink)
		}
	}
	switch len(sinks) {
	case 0:
		return audit.Discard(), nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

func (a *app) namedSink(ctx context.Context, name string) (audit.Sink, error) {
	switch name {
	case "stdout":
		return audit.NewWriterSink(os.Stdout), nil
	case "stderr":
		return audit.NewWriterSink(os.Stderr), nil
	case "file":
		return audit.OpenFileSink(a.cfg.Audit.Path)
	case "memory":
		if a.memory == nil {
			a.memory = audit.NewMemorySink()
		}
		return a.memory, nil
	case "redis":
		return audit.NewRedisStreamSink(a.redis, a.cfg.Audit.Stream, a.cfg.Audit.StreamMaxLen)
	case "kafka":
		topic := a.cfg.Audit.Topic
		if topic == "" {
			topic = a.cfg.Kafka.Topic
		}
		return audit.NewKafkaSink(a.kafka, topic)
	case "postgres", "mysql":
		db := a.postgres
		if name == "mysql" {
			db = a.mysql
		}
		sink, err := audit.NewSQLSink(db)
		if err != nil {
			return nil, err
		}
		if err := sink.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return sink, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownSink, name)
	}
}

func (a *app) registerProbes() {
	a.checker.RegisterCheck("memory", health.NewMemoryProbe(a.cfg.MemoryProbeConfig()))
	if a.redis != nil {
		a.checker.RegisterCheck("redis", health.RedisProbe(a.redis))
	}
	if a.postgres != nil {
		a.checker.RegisterCheck("postgres", health.SQLProbe(a.postgres.DB))
	}
	if a.mysql != nil {
		a.checker.RegisterCheck("mysql", health.SQLProbe(a.mysql.DB))
	}
	if a.kafka != nil {
		a.checker.RegisterCheck("kafka", health.KafkaProbe(a.kafka))
	}
	for _, ep := range a.cfg.Health.Endpoints {
		a.checker.RegisterCheck(ep.Name, health.HTTPProbe(nil, ep.URL))
	}
}

// close flushes audit and telemetry, then releases backends. Audit goes
// first because sinks may write through the backends.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if err := a.auditor.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audit: %w", err))
	}
	if a.obs != nil {
		if err := a.obs.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
	for name, db := range map[string]*sqlx.DB{"postgres": a.postgres, "mysql": a.mysql} {
		if db != nil {
			if err := db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
