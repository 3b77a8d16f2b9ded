// Package postgres provides PostgreSQL storage for the sighting log.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/sightline-io/sightline/pkg/sighting"
)

const defaultRetention = 24 * time.Hour

// unknownNamePattern matches placeholder names the scanner emits for devices
// that never advertised one.
const unknownNamePattern = "%(Unknown)%"

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// sightingColumns lists columns returned by sighting SELECT queries.
var sightingColumns = []string{
	"pseudonym", "device_name", "signal_strength",
	"scanner_location", "major_class", "last_seen",
}

// Store implements sighting.Store using PostgreSQL.
type Store struct {
	db        *sql.DB
	retention time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// Config configures the PostgreSQL sighting store.
type Config struct {
	Retention time.Duration
}

// New creates a PostgreSQL sighting store.
func New(db *sql.DB, cfg Config) *Store {
	if cfg.Retention == 0 {
		cfg.Retention = defaultRetention
	}
	return &Store{
		db:        db,
		retention: cfg.Retention,
	}
}

// Record appends a sighting. Re-reporting the same (pseudonym, name) within
// the same second refreshes signal and location on the existing row.
func (s *Store) Record(ctx context.Context, sg sighting.Sighting) error {
	query := `
		INSERT INTO device_sightings
		(pseudonym, device_name, signal_strength, scanner_location, major_class, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pseudonym, device_name, last_seen)
		DO UPDATE SET signal_strength = EXCLUDED.signal_strength,
		              scanner_location = EXCLUDED.scanner_location
	`

	_, err := s.db.ExecContext(ctx, query,
		sg.Pseudonym,
		sg.DeviceName,
		sg.RSSI,
		sg.Location,
		sg.MajorClass,
		sg.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("inserting sighting: %w", err)
	}
	return nil
}

// RecentWindow returns all sightings in [now-lookback, now], oldest first.
func (s *Store) RecentWindow(ctx context.Context, now time.Time, lookback time.Duration) ([]sighting.Sighting, error) {
	qb := psq.Select(sightingColumns...).
		From("device_sightings").
		Where(sq.GtOrEq{"last_seen": now.Add(-lookback)}).
		Where(sq.LtOrEq{"last_seen": now}).
		OrderBy("last_seen ASC")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building window query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sightings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sightings []sighting.Sighting
	for rows.Next() {
		var sg sighting.Sighting
		err := rows.Scan(&sg.Pseudonym, &sg.DeviceName, &sg.RSSI, &sg.Location, &sg.MajorClass, &sg.LastSeen)
		if err != nil {
			return nil, fmt.Errorf("scanning sighting row: %w", err)
		}
		sightings = append(sightings, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sighting rows: %w", err)
	}
	return sightings, nil
}

// EventTimestamps returns raw event timestamps in [now-window, now], oldest
// first.
func (s *Store) EventTimestamps(ctx context.Context, now time.Time, window time.Duration) ([]time.Time, error) {
	qb := psq.Select("last_seen").
		From("device_sightings").
		Where(sq.GtOrEq{"last_seen": now.Add(-window)}).
		Where(sq.LtOrEq{"last_seen": now}).
		OrderBy("last_seen ASC")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building timestamp query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying event timestamps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stamps []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scanning timestamp row: %w", err)
		}
		stamps = append(stamps, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating timestamp rows: %w", err)
	}
	return stamps, nil
}

// DistinctCount counts distinct pseudonyms seen strictly after since.
func (s *Store) DistinctCount(ctx context.Context, since time.Time) (int, error) {
	qb := psq.Select("COUNT(DISTINCT pseudonym)").
		From("device_sightings").
		Where(sq.Gt{"last_seen": since})

	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting pseudonyms: %w", err)
	}
	return count, nil
}

// NamesInWindow returns device names seen in [now-window, now]. A zero window
// means no lower bound.
func (s *Store) NamesInWindow(ctx context.Context, now time.Time, window time.Duration) ([]string, error) {
	return s.columnInWindow(ctx, "device_name", now, window)
}

// ClassesInWindow returns major_class values seen in [now-window, now].
func (s *Store) ClassesInWindow(ctx context.Context, now time.Time, window time.Duration) ([]string, error) {
	return s.columnInWindow(ctx, "major_class", now, window)
}

func (s *Store) columnInWindow(ctx context.Context, column string, now time.Time, window time.Duration) ([]string, error) {
	qb := psq.Select(column).
		From("device_sightings").
		Where(sq.LtOrEq{"last_seen": now})
	if window > 0 {
		qb = qb.Where(sq.GtOrEq{"last_seen": now.Add(-window)})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building %s query: %w", column, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s values: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", column, err)
		}
		values = append(values, v.String)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", column, err)
	}
	return values, nil
}

// ActiveDevices returns distinct (pseudonym, name) pairs active in
// [now-window, now], excluding unresolved names.
func (s *Store) ActiveDevices(ctx context.Context, now time.Time, window time.Duration) ([]sighting.DeviceName, error) {
	qb := psq.Select("pseudonym", "device_name").
		From("device_sightings").
		Where(sq.GtOrEq{"last_seen": now.Add(-window)}).
		Where(sq.LtOrEq{"last_seen": now}).
		Where(sq.NotLike{"device_name": unknownNamePattern}).
		GroupBy("pseudonym", "device_name")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building active device query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying active devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var devices []sighting.DeviceName
	for rows.Next() {
		var d sighting.DeviceName
		if err := rows.Scan(&d.Pseudonym, &d.Name); err != nil {
			return nil, fmt.Errorf("scanning active device row: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating active device rows: %w", err)
	}
	return devices, nil
}

// RealLastSeen returns the most recent sighting per (pseudonym, name) pair
// active in [now-window, now], newest first, excluding unresolved names.
func (s *Store) RealLastSeen(ctx context.Context, now time.Time, window time.Duration) ([]sighting.Activity, error) {
	qb := psq.Select("pseudonym", "device_name", "MAX(last_seen) AS last_seen").
		From("device_sightings").
		Where(sq.LtOrEq{"last_seen": now}).
		Where(sq.NotLike{"device_name": unknownNamePattern}).
		GroupBy("pseudonym", "device_name").
		Having(sq.GtOrEq{"MAX(last_seen)": now.Add(-window)}).
		OrderBy("last_seen DESC")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building activity query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying device activity: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var activities []sighting.Activity
	for rows.Next() {
		var a sighting.Activity
		if err := rows.Scan(&a.Pseudonym, &a.Name, &a.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}
	return activities, nil
}

// RSSIInWindow returns signal readings in [now-window, now].
func (s *Store) RSSIInWindow(ctx context.Context, now time.Time, window time.Duration) ([]int, error) {
	qb := psq.Select("signal_strength").
		From("device_sightings").
		Where(sq.GtOrEq{"last_seen": now.Add(-window)}).
		Where(sq.LtOrEq{"last_seen": now})

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building signal query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying signal readings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var readings []int
	for rows.Next() {
		var r int
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scanning signal row: %w", err)
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signal rows: %w", err)
	}
	return readings, nil
}

// Close cancels the cleanup goroutine and waits for it to exit. It is safe
// to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Cleanup removes sightings older than the retention horizon.
func (s *Store) Cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention)
	query := `DELETE FROM device_sightings WHERE last_seen < $1`
	if _, err := s.db.ExecContext(ctx, query, cutoff); err != nil {
		return fmt.Errorf("cleaning up sightings: %w", err)
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically prunes
// old sightings. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Cleanup(ctx)
			}
		}
	}()
}

// Verify interface compliance.
var _ sighting.Store = (*Store)(nil)
