// Package config loads application configuration from environment
// variables.  Required variables are enforced by must() and missing
// values cause the program to exit with a fatal log message; tunables
// have defaults suitable for development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	RabbitURL  string // AMQP broker URL; empty disables the relay and booking consumers
	JWTSecret  string // secret for decoding optional subscriber tokens; empty disables identity
	InstanceID string // unique per-process ID stamped on relayed events

	LockPrefix      string        // Redis key namespace for seat locks
	LockDefaultTTL  time.Duration // TTL applied when a request omits ttlMs
	LockMinTTL      time.Duration // lower clamp for requested TTLs
	LockMaxTTL      time.Duration // upper clamp for requested TTLs
	LockOpTimeout   time.Duration // deadline for one lock store operation
	LockFailureOpen bool          // true opts into fail-open acquires (availability over correctness)

	ProjectionTimeout time.Duration // budget for one full seat-map projection

	BroadcastQueueSize int // bounded orchestrator job queue
	BroadcastWorkers   int // orchestrator worker pool size

	RateLimitEnabled bool          // rate limiting on lock mutation routes
	RateLimitMax     int           // requests allowed per window per client
	RateLimitWindow  time.Duration // fixed window length
}

// Load reads configuration values from environment variables and returns
// a Config.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		RabbitURL:  rabbitURL(),
		JWTSecret:  os.Getenv("JWT_SECRET"),
		InstanceID: os.Getenv("INSTANCE_ID"),

		LockPrefix:      os.Getenv("SEAT_LOCK_PREFIX"),
		LockDefaultTTL:  envMillis("LOCK_TTL_MS", 180_000),
		LockMinTTL:      envMillis("LOCK_TTL_MIN_MS", 5_000),
		LockMaxTTL:      envMillis("LOCK_TTL_MAX_MS", 600_000),
		LockOpTimeout:   envMillis("LOCK_OP_TIMEOUT_MS", 1_000),
		LockFailureOpen: envBool("LOCK_FAILURE_MODE_OPEN", false),

		ProjectionTimeout: envMillis("PROJECTION_TIMEOUT_MS", 2_000),

		BroadcastQueueSize: envInt("BROADCAST_QUEUE_SIZE", 256),
		BroadcastWorkers:   envInt("BROADCAST_WORKERS", 2),

		RateLimitEnabled: envBool("RATE_LIMIT_ENABLED", true),
		RateLimitMax:     envInt("RATE_LIMIT_MAX", 30),
		RateLimitWindow:  envMillis("RATE_LIMIT_WINDOW_MS", 10_000),
	}
}

// rabbitURL resolves the broker URL from either env name the deployment
// tooling has historically used.  Empty means "run without a broker".
func rabbitURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

func envMillis(key string, defMs int) time.Duration {
	return time.Duration(envInt(key, defMs)) * time.Millisecond
}

func envBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "1", "true", "TRUE", "True", "yes", "on":
		return true
	case "0", "false", "FALSE", "False", "no", "off":
		return false
	}
	return def
}
