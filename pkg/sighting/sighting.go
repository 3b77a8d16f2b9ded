// Package sighting defines the sighting event model and the storage
// interface for the append-only sighting log.
package sighting

import (
	"context"
	"time"
)

// Sighting is one timestamped observation of a device. Sightings are
// append-only: once recorded they are never updated or deleted by the read
// path (retention cleanup prunes whole rows past the retention horizon).
type Sighting struct {
	Pseudonym  string    `json:"pseudonym"`
	DeviceName string    `json:"device_name"`
	RSSI       int       `json:"rssi"`
	Location   string    `json:"location"`
	MajorClass string    `json:"major_class"`
	LastSeen   time.Time `json:"last_seen"`
}

// DeviceName pairs a pseudonym with the name it most recently reported.
type DeviceName struct {
	Pseudonym string `json:"pseudonym"`
	Name      string `json:"name"`
}

// Activity is the most recent sighting of a (pseudonym, name) pair.
type Activity struct {
	Pseudonym string    `json:"pseudonym"`
	Name      string    `json:"name"`
	LastSeen  time.Time `json:"last_seen"`
}

// Store is the persistence boundary for sightings.
type Store interface {
	// Record appends a sighting. A re-report of the same (pseudonym, name)
	// within the same second refreshes signal and location in place instead
	// of duplicating the row.
	Record(ctx context.Context, s Sighting) error

	// RecentWindow returns all sightings with last_seen in
	// [now-lookback, now], oldest first.
	RecentWindow(ctx context.Context, now time.Time, lookback time.Duration) ([]Sighting, error)

	// EventTimestamps returns raw event timestamps in [now-window, now],
	// oldest first.
	EventTimestamps(ctx context.Context, now time.Time, window time.Duration) ([]time.Time, error)

	// DistinctCount counts distinct pseudonyms seen strictly after since.
	DistinctCount(ctx context.Context, since time.Time) (int, error)

	// NamesInWindow returns device names seen in [now-window, now]. A zero
	// window means no lower bound.
	NamesInWindow(ctx context.Context, now time.Time, window time.Duration) ([]string, error)

	// ClassesInWindow returns major_class values seen in [now-window, now].
	ClassesInWindow(ctx context.Context, now time.Time, window time.Duration) ([]string, error)

	// ActiveDevices returns the distinct (pseudonym, name) pairs active in
	// [now-window, now], excluding unresolved "(Unknown)" names.
	ActiveDevices(ctx context.Context, now time.Time, window time.Duration) ([]DeviceName, error)

	// RealLastSeen returns the most recent sighting per (pseudonym, name)
	// pair active in [now-window, now], newest first, excluding unresolved
	// "(Unknown)" names.
	RealLastSeen(ctx context.Context, now time.Time, window time.Duration) ([]Activity, error)

	// RSSIInWindow returns signal readings in [now-window, now].
	RSSIInWindow(ctx context.Context, now time.Time, window time.Duration) ([]int, error)

	// Cleanup removes sightings older than the retention horizon.
	Cleanup(ctx context.Context) error
}
