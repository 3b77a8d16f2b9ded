// Package platform wires configuration, storage, engines, and the HTTP
// surface into a runnable service.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Pseudonym PseudonymConfig `yaml:"pseudonym"`
	Presence  PresenceConfig  `yaml:"presence"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	Welcome   WelcomeConfig   `yaml:"welcome"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection and the sighting
// retention horizon.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// PseudonymConfig configures MAC pseudonymization. Key is the secret hash
// key; rotate it to unlink all prior pseudonyms.
type PseudonymConfig struct {
	Key    string `yaml:"key"`
	Length int    `yaml:"length"`
}

// PresenceConfig tunes the presence derivation windows.
type PresenceConfig struct {
	// RecentWindow bounds how stale a sighting may be and still count as
	// currently visible.
	RecentWindow time.Duration `yaml:"recent_window"`

	// NewWindow bounds the first-seen streak lookback; devices with no
	// sighting older than it are flagged new.
	NewWindow time.Duration `yaml:"new_window"`

	// MaxLookback caps how far back the presence read fetches events.
	MaxLookback time.Duration `yaml:"max_lookback"`
}

// MetricsConfig tunes the aggregate read views.
type MetricsConfig struct {
	LiveWindow      time.Duration `yaml:"live_window"`
	DailyResetHour  int           `yaml:"daily_reset_hour"`
	HistogramWindow time.Duration `yaml:"histogram_window"`
	HistogramBins   int           `yaml:"histogram_bins"`
	NameWindow      time.Duration `yaml:"name_window"`
	EventWindow     time.Duration `yaml:"event_window"`
}

// ProfilesConfig tunes narrative synthesis.
type ProfilesConfig struct {
	// MaxProfiles caps the synthesized feed.
	MaxProfiles int `yaml:"max_profiles"`

	// ActivityWindow decides which pseudonyms count as currently active for
	// real-name overrides and activity markers.
	ActivityWindow time.Duration `yaml:"activity_window"`

	// RoutineLimit caps the routine fragment feed.
	RoutineLimit int `yaml:"routine_limit"`

	// CoLocationPairs caps the fabricated co-location records per response.
	CoLocationPairs int `yaml:"colocation_pairs"`
}

// WelcomeConfig tunes the first-glimpse cache behind the welcome flag.
type WelcomeConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the
// administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "sightline"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.Retention == 0 {
		cfg.Database.Retention = 24 * time.Hour
	}
	if cfg.Database.CleanupInterval == 0 {
		cfg.Database.CleanupInterval = time.Hour
	}
	if cfg.Pseudonym.Length == 0 {
		cfg.Pseudonym.Length = 12
	}
	if cfg.Presence.RecentWindow == 0 {
		cfg.Presence.RecentWindow = 11 * time.Second
	}
	if cfg.Presence.NewWindow == 0 {
		cfg.Presence.NewWindow = 15 * time.Minute
	}
	if cfg.Presence.MaxLookback == 0 {
		cfg.Presence.MaxLookback = 2 * time.Hour
	}
	if cfg.Metrics.LiveWindow == 0 {
		cfg.Metrics.LiveWindow = 20 * time.Second
	}
	if cfg.Metrics.DailyResetHour == 0 {
		cfg.Metrics.DailyResetHour = 9
	}
	if cfg.Metrics.HistogramWindow == 0 {
		cfg.Metrics.HistogramWindow = 15 * time.Minute
	}
	if cfg.Metrics.HistogramBins == 0 {
		cfg.Metrics.HistogramBins = 6
	}
	if cfg.Metrics.NameWindow == 0 {
		cfg.Metrics.NameWindow = 10 * time.Minute
	}
	if cfg.Metrics.EventWindow == 0 {
		cfg.Metrics.EventWindow = 15 * time.Minute
	}
	if cfg.Profiles.MaxProfiles == 0 {
		cfg.Profiles.MaxProfiles = 12
	}
	if cfg.Profiles.ActivityWindow == 0 {
		cfg.Profiles.ActivityWindow = 2 * time.Minute
	}
	if cfg.Profiles.RoutineLimit == 0 {
		cfg.Profiles.RoutineLimit = 5
	}
	if cfg.Profiles.CoLocationPairs == 0 {
		cfg.Profiles.CoLocationPairs = 3
	}
	if cfg.Welcome.TTL == 0 {
		cfg.Welcome.TTL = 10 * time.Minute
	}
	if cfg.Welcome.MaxEntries == 0 {
		cfg.Welcome.MaxEntries = 512
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}
	if c.Pseudonym.Key == "" {
		errs = append(errs, "pseudonym.key is required")
	}
	if c.Metrics.DailyResetHour < 0 || c.Metrics.DailyResetHour > 23 {
		errs = append(errs, "metrics.daily_reset_hour must be between 0 and 23")
	}
	if c.Metrics.HistogramBins < 1 {
		errs = append(errs, "metrics.histogram_bins must be at least 1")
	}
	if c.Presence.MaxLookback < c.Presence.NewWindow {
		errs = append(errs, "presence.max_lookback must not be shorter than presence.new_window")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
