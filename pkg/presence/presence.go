// Package presence derives the visible-device view from the raw sighting log.
//
// The engine is a pure computation over a snapshot of recent sightings: it
// holds no state between invocations and performs no writes. Callers fetch a
// lookback of at least NewWindow so the newness rule can be decided from the
// provided events alone.
package presence

import (
	"sort"
	"time"

	"github.com/sightline-io/sightline/pkg/proximity"
	"github.com/sightline-io/sightline/pkg/sighting"
)

// Session is the bounded, continuous-looking streak of sightings for one
// device within the lookback window. Sessions are recomputed fresh on every
// poll and have no persisted identity.
type Session struct {
	Pseudonym string          `json:"pseudonym"`
	Name      string          `json:"name"`
	RSSI      int             `json:"rssi"`
	FirstSeen time.Time       `json:"first_seen"`
	LastSeen  time.Time       `json:"last_seen"`
	Duration  time.Duration   `json:"-"`
	IsNew     bool            `json:"is_new"`
	Group     proximity.Group `json:"group"`
}

// Engine computes visible-device sessions over a sighting snapshot.
type Engine struct {
	// RecentWindow bounds which devices count as currently visible.
	RecentWindow time.Duration

	// NewWindow bounds the session streak and the newness rule: a device is
	// new iff it has no sighting strictly older than now-NewWindow.
	NewWindow time.Duration
}

// Visible returns one session per (pseudonym, name) pair with a sighting in
// [now-RecentWindow, now]. Output is ordered by name, then pseudonym.
//
// For each visible pair, RSSI is the strongest reading and LastSeen the
// latest timestamp inside the recent window. FirstSeen is the earliest
// sighting of the pseudonym inside [now-NewWindow, now], which bounds the
// current streak rather than all-time history; Duration is LastSeen-FirstSeen
// clamped to zero.
func (e Engine) Visible(now time.Time, events []sighting.Sighting) []Session {
	recentCutoff := now.Add(-e.RecentWindow)
	newCutoff := now.Add(-e.NewWindow)

	type pairKey struct{ pseudonym, name string }
	type pairAgg struct {
		rssi     int
		lastSeen time.Time
	}
	pairs := make(map[pairKey]*pairAgg)

	// Per-pseudonym streak bounds across all provided events.
	firstInStreak := make(map[string]time.Time)
	hasOlder := make(map[string]bool)

	for _, ev := range events {
		if ev.LastSeen.After(now) {
			continue
		}
		if ev.LastSeen.Before(newCutoff) {
			hasOlder[ev.Pseudonym] = true
		} else {
			first, ok := firstInStreak[ev.Pseudonym]
			if !ok || ev.LastSeen.Before(first) {
				firstInStreak[ev.Pseudonym] = ev.LastSeen
			}
		}

		if ev.LastSeen.Before(recentCutoff) {
			continue
		}
		key := pairKey{ev.Pseudonym, ev.DeviceName}
		agg, ok := pairs[key]
		if !ok {
			pairs[key] = &pairAgg{rssi: ev.RSSI, lastSeen: ev.LastSeen}
			continue
		}
		if ev.RSSI > agg.rssi {
			agg.rssi = ev.RSSI
		}
		if ev.LastSeen.After(agg.lastSeen) {
			agg.lastSeen = ev.LastSeen
		}
	}

	sessions := make([]Session, 0, len(pairs))
	for key, agg := range pairs {
		firstSeen, ok := firstInStreak[key.pseudonym]
		if !ok || firstSeen.After(agg.lastSeen) {
			firstSeen = agg.lastSeen
		}
		duration := agg.lastSeen.Sub(firstSeen)
		if duration < 0 {
			duration = 0
		}
		sessions = append(sessions, Session{
			Pseudonym: key.pseudonym,
			Name:      key.name,
			RSSI:      agg.rssi,
			FirstSeen: firstSeen,
			LastSeen:  agg.lastSeen,
			Duration:  duration,
			IsNew:     !hasOlder[key.pseudonym],
			Group:     proximity.Classify(agg.rssi),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].Name != sessions[j].Name {
			return sessions[i].Name < sessions[j].Name
		}
		return sessions[i].Pseudonym < sessions[j].Pseudonym
	})

	return sessions
}
