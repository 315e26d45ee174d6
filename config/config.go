package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/opguard/auth"
	"github.com/jonwraymond/opguard/fault"
	"github.com/jonwraymond/opguard/health"
	"github.com/jonwraymond/opguard/observe"
	"github.com/jonwraymond/opguard/resilience"
)

// Config is the full runtime configuration of an opguard process.
type Config struct {
	Service   string          `yaml:"service"`
	Version   string          `yaml:"version"`
	Retry     RetryConfig     `yaml:"retry"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Bulkhead  BulkheadConfig  `yaml:"bulkhead"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Health    HealthConfig    `yaml:"health"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  SQLConfig       `yaml:"postgres"`
	MySQL     SQLConfig       `yaml:"mysql"`
	Kafka     KafkaConfig     `yaml:"kafka"`

	// APIKeys are the keys accepted by the HTTP surface.
	APIKeys []auth.KeyRecord `yaml:"apiKeys"`
}

// RetryConfig mirrors resilience.Policy in a file-friendly form.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"maxAttempts"`
	BaseDelay      time.Duration `yaml:"baseDelay"`
	MaxDelay       time.Duration `yaml:"maxDelay"`
	Multiplier     float64       `yaml:"multiplier"`
	JitterEnabled  bool          `yaml:"jitterEnabled"`
	RetryableKinds []string      `yaml:"retryableKinds"`

	// AttemptTimeout bounds each attempt. Zero disables the bound.
	AttemptTimeout time.Duration `yaml:"attemptTimeout"`
}

// RateLimitConfig configures the per-client sliding window.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxRequests   int           `yaml:"maxRequests"`
	Window        time.Duration `yaml:"window"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// BulkheadConfig bounds concurrent invocations. MaxConcurrent of zero
// disables the bulkhead.
type BulkheadConfig struct {
	MaxConcurrent int           `yaml:"maxConcurrent"`
	MaxWait       time.Duration `yaml:"maxWait"`
}

// AuditConfig selects where audit events go.
type AuditConfig struct {
	// Sinks names one or more of AuditSinks. Several sinks fan out.
	Sinks []string `yaml:"sinks"`

	// Path is the JSON lines file for the "file" sink.
	Path string `yaml:"path"`

	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"streamMaxLen"`
	Topic        string `yaml:"topic"`

	// Successes also records successful invocations.
	Successes bool `yaml:"successes"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig configures OpenTelemetry exporters.
type TelemetryConfig struct {
	TracingExporter string  `yaml:"tracingExporter"`
	SamplePct       float64 `yaml:"samplePct"`
	MetricsExporter string  `yaml:"metricsExporter"`
	OTLPEndpoint    string  `yaml:"otlpEndpoint"`
}

// HealthConfig configures the health checker and its probes.
type HealthConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	Concurrency     int           `yaml:"concurrency"`
	MemoryThreshold float64       `yaml:"memoryThreshold"`

	// Endpoints are probed with GET; any status below 400 passes.
	Endpoints []Endpoint `yaml:"endpoints"`
}

// Endpoint is a named HTTP dependency.
type Endpoint struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// TrustClientHeader keys rate limits on X-Client-ID for callers without
	// an API key. Set it only when a proxy in front owns that header.
	TrustClientHeader bool `yaml:"trustClientHeader"`
}

// RedisConfig configures the Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"poolSize"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// SQLConfig configures a database handle. An empty DSN disables it.
type SQLConfig struct {
	// Driver is "postgres" or "pgx" for Postgres and "mysql" for MySQL.
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// Enabled reports whether a DSN is configured.
func (c SQLConfig) Enabled() bool { return c.DSN != "" }

// KafkaConfig configures the Kafka client. No brokers disables Kafka.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	policy := resilience.DefaultPolicy()
	return Config{
		Service: "opguard",
		Version: "dev",
		Retry: RetryConfig{
			MaxAttempts:    policy.MaxAttempts,
			BaseDelay:      policy.BaseDelay,
			MaxDelay:       policy.MaxDelay,
			Multiplier:     policy.Multiplier,
			JitterEnabled:  policy.Jitter,
			RetryableKinds: policy.RetryableKinds.Strings(),
			AttemptTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxRequests:   100,
			Window:        time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Bulkhead: BulkheadConfig{MaxConcurrent: 64},
		Audit:    AuditConfig{Sinks: []string{"stdout"}},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Telemetry: TelemetryConfig{
			TracingExporter: "none",
			SamplePct:       1.0,
			MetricsExporter: "prometheus",
		},
		Health: HealthConfig{
			Timeout:         5 * time.Second,
			Concurrency:     4,
			MemoryThreshold: 0.95,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Redis: RedisConfig{PoolSize: 10, DialTimeout: 5 * time.Second},
		Postgres: SQLConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		MySQL: SQLConfig{
			Driver:          "mysql",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
	}
}

// Validate checks cross-field constraints. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Service == "" {
		add("service name is required")
	}
	if _, err := c.RetryPolicy(); err != nil {
		errs = append(errs, err)
	}
	if c.Retry.AttemptTimeout < 0 {
		add("retry.attemptTimeout must not be negative")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRequests < 0 {
			add("rateLimit.maxRequests must not be negative")
		}
		if c.RateLimit.Window <= 0 {
			add("rateLimit.window must be positive")
		}
	}
	if c.Bulkhead.MaxConcurrent < 0 {
		add("bulkhead.maxConcurrent must not be negative")
	}

	for _, sink := range c.Audit.Sinks {
		if !slices.Contains(AuditSinks, sink) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownSink, sink))
			continue
		}
		switch {
		case sink == "file" && c.Audit.Path == "":
			add("audit.path is required for the file sink")
		case sink == "redis" && c.Redis.URL == "":
			add("redis.url is required for the redis sink")
		case sink == "kafka" && !c.Kafka.Enabled():
			add("kafka.brokers is required for the kafka sink")
		case sink == "postgres" && !c.Postgres.Enabled():
			add("postgres.dsn is required for the postgres sink")
		case sink == "mysql" && !c.MySQL.Enabled():
			add("mysql.dsn is required for the mysql sink")
		}
	}
	if c.Postgres.Driver != "postgres" && c.Postgres.Driver != "pgx" {
		add("postgres.driver must be postgres or pgx, got %q", c.Postgres.Driver)
	}

	if !slices.Contains(observe.ValidLogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("%w: %q", observe.ErrInvalidLogLevel, c.Logging.Level))
	}
	if !slices.Contains(observe.ValidLogFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("%w: %q", observe.ErrInvalidLogFormat, c.Logging.Format))
	}
	if !slices.Contains(observe.ValidTracingExporters, c.Telemetry.TracingExporter) {
		errs = append(errs, fmt.Errorf("%w: %q", observe.ErrInvalidTracingExporter, c.Telemetry.TracingExporter))
	}
	if !slices.Contains(observe.ValidMetricsExporters, c.Telemetry.MetricsExporter) {
		errs = append(errs, fmt.Errorf("%w: %q", observe.ErrInvalidMetricsExporter, c.Telemetry.MetricsExporter))
	}
	if c.Telemetry.SamplePct < 0 || c.Telemetry.SamplePct > 1 {
		errs = append(errs, observe.ErrInvalidSamplePct)
	}

	if c.Health.MemoryThreshold <= 0 || c.Health.MemoryThreshold > 1 {
		add("health.memoryThreshold must be in (0, 1], got %v", c.Health.MemoryThreshold)
	}
	for _, ep := range c.Health.Endpoints {
		if ep.Name == "" || ep.URL == "" {
			add("health.endpoints entries need a name and a url")
			break
		}
	}
	if c.Server.Addr == "" {
		add("server.addr is required")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// RetryPolicy converts the retry section into a validated policy.
func (c *Config) RetryPolicy() (resilience.Policy, error) {
	kinds, err := fault.ParseKindSet(c.Retry.RetryableKinds)
	if err != nil {
		return resilience.Policy{}, fmt.Errorf("retry.retryableKinds: %w", err)
	}
	p := resilience.Policy{
		MaxAttempts:    c.Retry.MaxAttempts,
		BaseDelay:      c.Retry.BaseDelay,
		MaxDelay:       c.Retry.MaxDelay,
		Multiplier:     c.Retry.Multiplier,
		Jitter:         c.Retry.JitterEnabled,
		RetryableKinds: kinds,
	}
	if err := p.Validate(); err != nil {
		return resilience.Policy{}, err
	}
	return p, nil
}

// RateLimiterConfig converts the rate limit section.
func (c *Config) RateLimiterConfig() resilience.RateLimiterConfig {
	return resilience.RateLimiterConfig{
		MaxRequests: c.RateLimit.MaxRequests,
		Window:      c.RateLimit.Window,
	}
}

// BulkheadConfig converts the bulkhead section.
func (c *Config) BulkheadConfig() resilience.BulkheadConfig {
	return resilience.BulkheadConfig{
		MaxConcurrent: c.Bulkhead.MaxConcurrent,
		MaxWait:       c.Bulkhead.MaxWait,
	}
}

// ObserveConfig converts the logging and telemetry sections.
func (c *Config) ObserveConfig() observe.Config {
	return observe.Config{
		ServiceName: c.Service,
		Version:     c.Version,
		Tracing: observe.TracingConfig{
			Enabled:   c.Telemetry.TracingExporter != "none" && c.Telemetry.TracingExporter != "",
			Exporter:  c.Telemetry.TracingExporter,
			SamplePct: c.Telemetry.SamplePct,
			Endpoint:  c.Telemetry.OTLPEndpoint,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Telemetry.MetricsExporter != "none" && c.Telemetry.MetricsExporter != "",
			Exporter: c.Telemetry.MetricsExporter,
			Endpoint: c.Telemetry.OTLPEndpoint,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Logging.Level,
			Format:  c.Logging.Format,
		},
	}
}

// CheckerConfig converts the health section.
func (c *Config) CheckerConfig(logger observe.Logger) health.CheckerConfig {
	return health.CheckerConfig{
		Timeout:     c.Health.Timeout,
		Concurrency: c.Health.Concurrency,
		Logger:      logger,
	}
}

// MemoryProbeConfig converts the memory threshold.
func (c *Config) MemoryProbeConfig() health.MemoryProbeConfig {
	return health.MemoryProbeConfig{Threshold: c.Health.MemoryThreshold}
}

// RedisOptions parses the Redis URL and applies pool settings.
func (c *Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if c.Redis.PoolSize > 0 {
		opts.PoolSize = c.Redis.PoolSize
	}
	if c.Redis.DialTimeout > 0 {
		opts.DialTimeout = c.Redis.DialTimeout
	}
	if c.Redis.ReadTimeout > 0 {
		opts.ReadTimeout = c.Redis.ReadTimeout
	}
	if c.Redis.WriteTimeout > 0 {
		opts.WriteTimeout = c.Redis.WriteTimeout
	}
	return opts, nil
}

// KeyStore returns an in-memory store holding the configured API keys.
func (c *Config) KeyStore() *auth.MemoryKeyStore {
	return auth.NewMemoryKeyStore(c.APIKeys...)
}

// AuditsTo reports whether sink is among the configured audit sinks.
func (c *Config) AuditsTo(sink string) bool {
	return slices.ContainsFunc(c.Audit.Sinks, func(s string) bool {
		return strings.EqualFold(s, sink)
	})
}
