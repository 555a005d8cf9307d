package repository

import (
	"time"

	"github.com/okian/shiftmetrics/pkg/logger"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// PostgresOption applies a configuration option to the PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresLogger sets the logger used for schema and conflict diagnostics.
func WithPostgresLogger(l logger.Logger) PostgresOption {
	return func(s *PostgresStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxConns caps the connection pool.
func WithMaxConns(n int) PostgresOption {
	return func(s *PostgresStore) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithSchema controls whether the store creates its tables on open.
func WithSchema(ensure bool) PostgresOption {
	return func(s *PostgresStore) {
		s.ensureSchema = ensure
	}
}

// BadgerOption applies a configuration option to the BadgerStore.
type BadgerOption func(*BadgerStore)

// WithBadgerLogger sets the logger used for retries and background GC.
func WithBadgerLogger(l logger.Logger) BadgerOption {
	return func(s *BadgerStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConflictRetries bounds the retries of an insert that lost a transaction race.
func WithConflictRetries(n int) BadgerOption {
	return func(s *BadgerStore) {
		if n > 0 {
			s.retries = n
		}
	}
}

// WithGCInterval sets how often the value log is garbage collected. Zero disables it.
func WithGCInterval(interval time.Duration) BadgerOption {
	return func(s *BadgerStore) {
		s.gcInterval = interval
	}
}
