// Package pg wraps a pgx connection pool with retrying connect, embedded-SQL
// migrations, transaction helpers, and a slow-query tracer. Adapted from the
// teacher's pkg/db package, generalized to this project's configuration.
package pg

import "time"

// Config holds PostgreSQL connection parameters.
type Config struct {
	ConnectionString string `env:"DATABASE_URL,required"`

	MigrationsTable string `env:"DATABASE_MIGRATIONS_TABLE" envDefault:"schema_migrations"`

	HealthCheckPeriod time.Duration `env:"DATABASE_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"DATABASE_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"DATABASE_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts int           `env:"DATABASE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"DATABASE_RETRY_INTERVAL" envDefault:"5s"`

	MaxOpenConns int32 `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MinConns     int32 `env:"DATABASE_MIN_CONNS" envDefault:"5"`

	// SSLMode is validated separately from the connection string so production
	// deployments can be rejected before a connection is even attempted
	// (SPEC_FULL.md §6 Configuration: production forbids disable/unverified require).
	SSLMode string `env:"DB_SSL_MODE" envDefault:"require"`
}

// SlowQueryThreshold is the wall-clock duration above which a statement emits
// the slow_query_detected warning (§5).
const SlowQueryThreshold = 200 * time.Millisecond
