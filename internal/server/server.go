// Package server mounts the HTTP surface: sighting ingest, presence and
// metric read views, pattern feeds, and narrative profile synthesis.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sightline-io/sightline/pkg/health"
	"github.com/sightline-io/sightline/pkg/metrics"
	"github.com/sightline-io/sightline/pkg/narrative"
	"github.com/sightline-io/sightline/pkg/presence"
	"github.com/sightline-io/sightline/pkg/pseudonym"
	"github.com/sightline-io/sightline/pkg/seencache"
	"github.com/sightline-io/sightline/pkg/sighting"
)

// Config tunes the read windows the handlers query with.
type Config struct {
	// MaxLookback bounds the event fetch behind the presence view.
	MaxLookback time.Duration

	// EventWindow bounds the raw device event feed.
	EventWindow time.Duration

	// ActivityWindow decides which pseudonyms count as currently active for
	// real activity markers and name overrides.
	ActivityWindow time.Duration

	// RoutineLimit caps the routine fragment feed.
	RoutineLimit int

	// CoLocationPairs caps fabricated co-location records per response.
	CoLocationPairs int
}

// Deps collects the components the handlers delegate to.
type Deps struct {
	Logger    *slog.Logger
	Sightings sighting.Store
	Hasher    *pseudonym.Hasher
	Presence  presence.Engine
	Metrics   *metrics.Engine
	Narrative narrative.Engine
	Catalog   narrative.Catalog
	Patterns  narrative.PatternStore
	Welcome   *seencache.Cache
	Health    *health.Checker
}

// Server routes HTTP requests to the presence, metrics, and narrative
// components.
type Server struct {
	cfg  Config
	deps Deps
	mux  *http.ServeMux
	now  func() time.Time
}

// New creates a server and registers its routes.
func New(cfg Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
		now:  time.Now,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/device-log", s.handleDeviceLog)
	s.mux.HandleFunc("GET /api/visible-devices", s.handleVisibleDevices)
	s.mux.HandleFunc("GET /api/live-count", s.handleLiveCount)
	s.mux.HandleFunc("GET /api/daily-unique", s.handleDailyUnique)
	s.mux.HandleFunc("GET /api/rssi-histogram", s.handleRSSIHistogram)
	s.mux.HandleFunc("GET /api/event-histogram", s.handleEventHistogram)
	s.mux.HandleFunc("GET /api/rssi-current-groups", s.handleRSSICurrentGroups)
	s.mux.HandleFunc("GET /api/current-devices", s.handleCurrentDevices)
	s.mux.HandleFunc("GET /api/class-distribution", s.handleClassDistribution)
	s.mux.HandleFunc("GET /api/name-analysis", s.handleNameAnalysis)
	s.mux.HandleFunc("GET /api/device-events", s.handleDeviceEvents)
	s.mux.HandleFunc("GET /api/pattern-last-seen", s.handlePatternLastSeen)
	s.mux.HandleFunc("GET /api/pattern-cooccur", s.handlePatternCoOccur)
	s.mux.HandleFunc("GET /api/pattern-routine", s.handlePatternRoutine)
	s.mux.HandleFunc("POST /api/surveillance-profiles", s.handleProfiles)

	if s.deps.Health != nil {
		s.mux.HandleFunc("GET /healthz", s.deps.Health.LivenessHandler())
		s.mux.HandleFunc("GET /readyz", s.deps.Health.ReadinessHandler())
	}
}

// Handler returns the full middleware-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRecovery(s.withLogging(s.withRequestID(s.mux)))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// failSoft logs a read-path failure and serves the empty payload instead.
// Dashboard reads degrade rather than error.
func (s *Server) failSoft(w http.ResponseWriter, r *http.Request, err error, empty any) {
	s.deps.Logger.Error("read degraded to empty payload",
		"path", r.URL.Path, "error", err, "request_id", requestID(r.Context()))
	writeJSON(w, http.StatusOK, empty)
}
