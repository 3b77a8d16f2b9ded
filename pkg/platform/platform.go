package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"github.com/sightline-io/sightline/internal/server"
	"github.com/sightline-io/sightline/pkg/database/migrate"
	"github.com/sightline-io/sightline/pkg/health"
	"github.com/sightline-io/sightline/pkg/metrics"
	"github.com/sightline-io/sightline/pkg/narrative"
	narrativepg "github.com/sightline-io/sightline/pkg/narrative/postgres"
	"github.com/sightline-io/sightline/pkg/presence"
	"github.com/sightline-io/sightline/pkg/pseudonym"
	"github.com/sightline-io/sightline/pkg/seencache"
	sightingpg "github.com/sightline-io/sightline/pkg/sighting/postgres"
)

// Platform assembles the service: database, stores, derivation engines, and
// the HTTP surface, tied together by an ordered lifecycle.
type Platform struct {
	cfg *Config
	log *slog.Logger

	db        *sql.DB
	sightings *sightingpg.Store
	catalog   *narrativepg.Catalog
	patterns  *narrativepg.PatternStore

	hasher  *pseudonym.Hasher
	welcome *seencache.Cache
	checker *health.Checker

	httpServer *http.Server
	serveErr   chan error

	lifecycle *Lifecycle
}

// New creates a platform from the given configuration. The configuration
// must already be validated.
func New(cfg *Config, opts ...Option) (*Platform, error) {
	options := applyOptions(opts)

	p := &Platform{
		cfg:       cfg,
		log:       options.logger,
		db:        options.db,
		serveErr:  make(chan error, 1),
		lifecycle: NewLifecycle(),
		checker:   health.NewChecker(),
	}

	if p.db == nil {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		p.db = db
	}

	hasher, err := pseudonym.NewHasher(cfg.Pseudonym.Key, cfg.Pseudonym.Length)
	if err != nil {
		return nil, fmt.Errorf("building pseudonym hasher: %w", err)
	}
	p.hasher = hasher

	p.sightings = sightingpg.New(p.db, sightingpg.Config{Retention: cfg.Database.Retention})
	p.catalog = narrativepg.NewCatalog(p.db)
	p.patterns = narrativepg.NewPatternStore(p.db)
	p.welcome = seencache.New(cfg.Welcome.TTL, cfg.Welcome.MaxEntries)
	p.checker.SetProbe(p.db.Ping)

	p.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      p.buildHandler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	p.registerLifecycle()
	return p, nil
}

// buildHandler assembles the HTTP surface from the configured components.
func (p *Platform) buildHandler() http.Handler {
	cfg := p.cfg

	srv := server.New(server.Config{
		MaxLookback:     cfg.Presence.MaxLookback,
		EventWindow:     cfg.Metrics.EventWindow,
		ActivityWindow:  cfg.Profiles.ActivityWindow,
		RoutineLimit:    cfg.Profiles.RoutineLimit,
		CoLocationPairs: cfg.Profiles.CoLocationPairs,
	}, server.Deps{
		Logger:    p.log,
		Sightings: p.sightings,
		Hasher:    p.hasher,
		Presence: presence.Engine{
			RecentWindow: cfg.Presence.RecentWindow,
			NewWindow:    cfg.Presence.NewWindow,
		},
		Metrics: metrics.New(p.sightings, metrics.Config{
			LiveWindow:      cfg.Metrics.LiveWindow,
			DailyResetHour:  cfg.Metrics.DailyResetHour,
			HistogramWindow: cfg.Metrics.HistogramWindow,
			HistogramBins:   cfg.Metrics.HistogramBins,
			NameWindow:      cfg.Metrics.NameWindow,
		}),
		Narrative: narrative.Engine{MaxProfiles: cfg.Profiles.MaxProfiles},
		Catalog:   p.catalog,
		Patterns:  p.patterns,
		Welcome:   p.welcome,
		Health:    p.checker,
	})
	return srv.Handler()
}

// registerLifecycle orders startup: database, schema, retention, HTTP, and
// finally readiness. Shutdown runs the same steps in reverse.
func (p *Platform) registerLifecycle() {
	p.lifecycle.OnStart(func(ctx context.Context) error {
		if err := p.db.PingContext(ctx); err != nil {
			return fmt.Errorf("pinging database: %w", err)
		}
		return nil
	})
	p.lifecycle.RegisterCloser(p.db)

	p.lifecycle.OnStart(func(_ context.Context) error {
		return migrate.Run(p.db)
	})
	p.lifecycle.OnStop(func(_ context.Context) error { return nil })

	p.lifecycle.OnStart(func(_ context.Context) error {
		p.sightings.StartCleanupRoutine(p.cfg.Database.CleanupInterval)
		return nil
	})
	p.lifecycle.OnStop(func(_ context.Context) error {
		return p.sightings.Close()
	})

	p.lifecycle.OnStart(func(_ context.Context) error {
		go func() {
			err := p.httpServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.serveErr <- err
			}
		}()
		p.log.Info("http server listening", "address", p.cfg.Server.Address)
		return nil
	})
	p.lifecycle.OnStop(func(ctx context.Context) error {
		p.checker.SetDraining()
		shutdownCtx, cancel := context.WithTimeout(ctx, p.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})

	p.lifecycle.OnStart(func(_ context.Context) error {
		p.checker.SetReady()
		return nil
	})
	p.lifecycle.OnStop(func(_ context.Context) error { return nil })
}

// Start brings the platform up. On failure, components that already started
// are stopped again.
func (p *Platform) Start(ctx context.Context) error {
	return p.lifecycle.Start(ctx)
}

// Stop shuts the platform down in reverse startup order.
func (p *Platform) Stop(ctx context.Context) error {
	return p.lifecycle.Stop(ctx)
}

// ServeErr reports a fatal HTTP serve error, if one occurs after startup.
func (p *Platform) ServeErr() <-chan error {
	return p.serveErr
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.cfg
}

// DB exposes the underlying database handle, primarily for tests.
func (p *Platform) DB() *sql.DB {
	return p.db
}
