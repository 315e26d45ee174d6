package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OPGUARD_"

// Options controls Load.
type Options struct {
	// Path is the YAML file. Empty skips the file.
	Path string

	// EnvFiles are dotenv files loaded before the YAML file is expanded.
	// Missing files are ignored. Variables already set are not replaced.
	// Default: [".env"]
	EnvFiles []string
}

// Load builds a Config from defaults, the YAML file at path, a .env file in
// the working directory and OPGUARD_* variables, then validates it.
func Load(path string) (*Config, error) {
	return LoadWithOptions(Options{Path: path})
}

// LoadWithOptions is Load with explicit options.
func LoadWithOptions(opts Options) (*Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	cfg := Default()
	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := Decode(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode expands ${VAR} references in data and unmarshals it over cfg.
// Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands $VAR and ${VAR} in s. A ${VAR} naming an unset
// variable is an error; $$ yields a literal $.
func ExpandEnvStrict(s string) (string, error) {
	const dollar = "\x00OPGUARD_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollar)

	missing := make(map[string]struct{})
	for _, m := range envVarPattern.FindAllStringSubmatch(s, -1) {
		if _, ok := os.LookupEnv(m[1]); !ok {
			missing[m[1]] = struct{}{}
		}
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for k := range missing {
			names = append(names, k)
		}
		sort.Strings(names)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(names, ", "))
	}

	return strings.ReplaceAll(os.ExpandEnv(s), dollar, "$"), nil
}

// env applies OPGUARD_* overrides, collecting parse failures.
type env struct {
	errs []error
}

func (e *env) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *env) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidEnv, EnvPrefix, key, value, err))
}

func (e *env) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *env) setInt(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *env) setFloat(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *env) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

func (e *env) setDuration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = d
	}
}

func (e *env) setList(key string, dst *[]string) {
	if v, ok := e.lookup(key); ok {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
}

func applyEnv(cfg *Config) error {
	var e env

	e.setString("SERVICE", &cfg.Service)
	e.setString("VERSION", &cfg.Version)

	e.setInt("RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	e.setDuration("RETRY_BASE_DELAY", &cfg.Retry.BaseDelay)
	e.setDuration("RETRY_MAX_DELAY", &cfg.Retry.MaxDelay)
	e.setFloat("RETRY_MULTIPLIER", &cfg.Retry.Multiplier)
	e.setBool("RETRY_JITTER_ENABLED", &cfg.Retry.JitterEnabled)
	e.setList("RETRY_KINDS", &cfg.Retry.RetryableKinds)
	e.setDuration("RETRY_ATTEMPT_TIMEOUT", &cfg.Retry.AttemptTimeout)

	e.setBool("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	e.setInt("RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.MaxRequests)
	e.setDuration("RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)

	e.setInt("BULKHEAD_MAX_CONCURRENT", &cfg.Bulkhead.MaxConcurrent)
	e.setDuration("BULKHEAD_MAX_WAIT", &cfg.Bulkhead.MaxWait)

	e.setList("AUDIT_SINKS", &cfg.Audit.Sinks)
	e.setString("AUDIT_PATH", &cfg.Audit.Path)
	e.setBool("AUDIT_SUCCESSES", &cfg.Audit.Successes)

	e.setString("LOG_LEVEL", &cfg.Logging.Level)
	e.setString("LOG_FORMAT", &cfg.Logging.Format)

	e.setString("TRACING_EXPORTER", &cfg.Telemetry.TracingExporter)
	e.setFloat("TRACING_SAMPLE_PCT", &cfg.Telemetry.SamplePct)
	e.setString("METRICS_EXPORTER", &cfg.Telemetry.MetricsExporter)
	e.setString("OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)

	e.setDuration("HEALTH_TIMEOUT", &cfg.Health.Timeout)

	e.setString("SERVER_ADDR", &cfg.Server.Addr)
	e.setBool("SERVER_TRUST_CLIENT_HEADER", &cfg.Server.TrustClientHeader)

	e.setString("REDIS_URL", &cfg.Redis.URL)
	e.setString("POSTGRES_DRIVER", &cfg.Postgres.Driver)
	e.setString("POSTGRES_DSN", &cfg.Postgres.DSN)
	e.setString("MYSQL_DSN", &cfg.MySQL.DSN)
	e.setList("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	e.setString("KAFKA_TOPIC", &cfg.Kafka.Topic)

	return errors.Join(e.errs...)
}
