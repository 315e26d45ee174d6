// Package config loads opguard's runtime configuration.
//
// Values are layered, later layers winning:
//
//  1. Default()
//  2. a YAML file, with ${VAR} references expanded strictly
//  3. OPGUARD_* environment variables
//
// Dotenv files are loaded into the process environment first, so they feed
// both the ${VAR} expansion and the overrides without replacing variables
// that are already set.
//
// Documented option names map onto the file and environment like so:
//
//	maxAttempts           retry.maxAttempts      OPGUARD_RETRY_MAX_ATTEMPTS
//	baseDelay             retry.baseDelay        OPGUARD_RETRY_BASE_DELAY
//	maxDelay              retry.maxDelay         OPGUARD_RETRY_MAX_DELAY
//	jitterEnabled         retry.jitterEnabled    OPGUARD_RETRY_JITTER_ENABLED
//	retryableKinds        retry.retryableKinds   OPGUARD_RETRY_KINDS
//	rateLimitMaxRequests  rateLimit.maxRequests  OPGUARD_RATE_LIMIT_MAX_REQUESTS
//	rateLimitWindow       rateLimit.window       OPGUARD_RATE_LIMIT_WINDOW
//
// Example file:
//
//	service: billing-gateway
//	retry:
//	  maxAttempts: 5
//	  baseDelay: 200ms
//	  jitterEnabled: true
//	  retryableKinds: [external_service]
//	rateLimit:
//	  maxRequests: 50
//	  window: 1m
//	audit:
//	  sinks: [stdout, postgres]
//	postgres:
//	  dsn: ${DATABASE_URL}
package config
