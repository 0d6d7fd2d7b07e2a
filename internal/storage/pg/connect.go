package pg

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Option configures the pool opened by Open.
type Option func(*options)

type options struct {
	migrations *embed.FS
	logger     *slog.Logger
	cfg        Config
	tracer     *SlowQueryTracer
}

func defaultOptions() *options {
	return &options{
		cfg: Config{
			HealthCheckPeriod: time.Minute,
			MaxConnIdleTime:   10 * time.Minute,
			MaxConnLifetime:   30 * time.Minute,
			RetryAttempts:     3,
			RetryInterval:     5 * time.Second,
			MaxOpenConns:      10,
			MinConns:          5,
		},
	}
}

// WithMigrations enables automatic migrations using embedded SQL files.
func WithMigrations(fs embed.FS) Option {
	return func(o *options) { o.migrations = &fs }
}

// WithLogger sets the logger used for migration output and connection retries.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithConfig overrides the pool's tunables from a loaded Config.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithSlowQueryTracer installs a pgx.QueryTracer that flags statements slower
// than SlowQueryThreshold (§5 "Slow-query observability").
func WithSlowQueryTracer(t *SlowQueryTracer) Option {
	return func(o *options) { o.tracer = t }
}

// Open creates a PostgreSQL connection pool with retrying connect and
// optional migrations, mirroring the teacher's pkg/db.Open shape.
func Open(ctx context.Context, connString string, opts ...Option) (*pgxpool.Pool, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	connConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseDBConfig, err)
	}

	connConfig.MaxConns = o.cfg.MaxOpenConns
	connConfig.MinConns = o.cfg.MinConns
	connConfig.HealthCheckPeriod = o.cfg.HealthCheckPeriod
	connConfig.MaxConnIdleTime = o.cfg.MaxConnIdleTime
	connConfig.MaxConnLifetime = o.cfg.MaxConnLifetime
	if o.tracer != nil {
		connConfig.ConnConfig.Tracer = o.tracer
	}

	pool, err := connect(ctx, connConfig, o.cfg.RetryAttempts, o.cfg.RetryInterval)
	if err != nil {
		return nil, err
	}

	if o.migrations != nil {
		if err := Migrate(ctx, pool, *o.migrations, o.logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return pool, nil
}

func connect(ctx context.Context, cfg *pgxpool.Config, attempts int, interval time.Duration) (*pgxpool.Pool, error) {
	attempts = max(attempts, 1)

	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			if waitErr := wait(ctx, time.Duration(i+1)*interval); waitErr != nil {
				return nil, errors.Join(ErrFailedToOpenDBConnection, waitErr)
			}
			continue
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			if waitErr := wait(ctx, time.Duration(i+1)*interval); waitErr != nil {
				return nil, errors.Join(ErrFailedToOpenDBConnection, waitErr)
			}
			continue
		}

		return pool, nil
	}

	return nil, ErrFailedToOpenDBConnection
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Shutdown returns a function that gracefully closes the pool.
func Shutdown(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		pool.Close()
		return nil
	}
}
