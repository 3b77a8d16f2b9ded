package platform

import (
	"database/sql"
	"log/slog"
)

// Options collects construction-time overrides.
type Options struct {
	logger *slog.Logger
	db     *sql.DB
}

// Option customizes platform construction.
type Option func(*Options)

// WithLogger sets the logger the platform and its components use.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

// WithDB injects an already-open database handle instead of opening one from
// the configured DSN. The platform takes ownership and closes it on Stop.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.db = db
	}
}

func applyOptions(opts []Option) *Options {
	options := &Options{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
