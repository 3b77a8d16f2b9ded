// Package metrics derives aggregate read views from the sighting log: live
// and daily counts, event histograms, signal bands, and device name
// breakdowns.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sightline-io/sightline/pkg/proximity"
)

// Store is the slice of sighting storage the metrics engine reads.
type Store interface {
	DistinctCount(ctx context.Context, since time.Time) (int, error)
	EventTimestamps(ctx context.Context, now time.Time, window time.Duration) ([]time.Time, error)
	NamesInWindow(ctx context.Context, now time.Time, window time.Duration) ([]string, error)
	ClassesInWindow(ctx context.Context, now time.Time, window time.Duration) ([]string, error)
	RSSIInWindow(ctx context.Context, now time.Time, window time.Duration) ([]int, error)
}

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultLiveWindow      = 20 * time.Second
	DefaultDailyResetHour  = 9
	DefaultHistogramWindow = 15 * time.Minute
	DefaultHistogramBins   = 6
	DefaultNameWindow      = 10 * time.Minute
)

// Config tunes the metric windows.
type Config struct {
	// LiveWindow is the trailing window for the live device count.
	LiveWindow time.Duration

	// DailyResetHour is the local hour at which the daily unique count
	// resets.
	DailyResetHour int

	// HistogramWindow and HistogramBins shape the event histogram. The same
	// window bounds the signal band view.
	HistogramWindow time.Duration
	HistogramBins   int

	// NameWindow is the trailing window for the name and class analysis.
	NameWindow time.Duration
}

// Engine computes aggregate views over the sighting log.
type Engine struct {
	store Store
	cfg   Config
}

// New creates a metrics engine, filling zero config fields with defaults.
func New(store Store, cfg Config) *Engine {
	if cfg.LiveWindow == 0 {
		cfg.LiveWindow = DefaultLiveWindow
	}
	if cfg.DailyResetHour == 0 {
		cfg.DailyResetHour = DefaultDailyResetHour
	}
	if cfg.HistogramWindow == 0 {
		cfg.HistogramWindow = DefaultHistogramWindow
	}
	if cfg.HistogramBins == 0 {
		cfg.HistogramBins = DefaultHistogramBins
	}
	if cfg.NameWindow == 0 {
		cfg.NameWindow = DefaultNameWindow
	}
	return &Engine{store: store, cfg: cfg}
}

// LiveCount returns the number of distinct pseudonyms seen within the live
// window.
func (e *Engine) LiveCount(ctx context.Context, now time.Time) (int, error) {
	count, err := e.store.DistinctCount(ctx, now.Add(-e.cfg.LiveWindow))
	if err != nil {
		return 0, fmt.Errorf("computing live count: %w", err)
	}
	return count, nil
}

// DailyUnique returns the number of distinct pseudonyms seen since the most
// recent daily reset. The reset boundary is the configured local hour of
// now's location; before that hour the count covers yesterday's boundary
// onward.
func (e *Engine) DailyUnique(ctx context.Context, now time.Time) (int, error) {
	count, err := e.store.DistinctCount(ctx, ResetTime(now, e.cfg.DailyResetHour))
	if err != nil {
		return 0, fmt.Errorf("computing daily unique count: %w", err)
	}
	return count, nil
}

// ResetTime returns the most recent occurrence of the reset hour at or
// before now, in now's location.
func ResetTime(now time.Time, hour int) time.Time {
	reset := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if reset.After(now) {
		reset = reset.AddDate(0, 0, -1)
	}
	return reset
}

// Bin is one histogram bucket. Start is the inclusive lower bound of the
// bucket's time range.
type Bin struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// EventHistogram buckets raw sighting events over the histogram window into
// equal-width bins, oldest first.
func (e *Engine) EventHistogram(ctx context.Context, now time.Time) ([]Bin, error) {
	stamps, err := e.store.EventTimestamps(ctx, now, e.cfg.HistogramWindow)
	if err != nil {
		return nil, fmt.Errorf("computing event histogram: %w", err)
	}
	return BinTimestamps(stamps, now, e.cfg.HistogramWindow, e.cfg.HistogramBins), nil
}

// BinTimestamps distributes timestamps across binCount equal-width bins
// covering [now-window, now], oldest bin first. Timestamps outside the
// range are dropped.
func BinTimestamps(stamps []time.Time, now time.Time, window time.Duration, binCount int) []Bin {
	if binCount <= 0 {
		return []Bin{}
	}

	start := now.Add(-window)
	width := window / time.Duration(binCount)

	bins := make([]Bin, binCount)
	for i := range bins {
		bins[i].Start = start.Add(width * time.Duration(i))
	}

	for _, ts := range stamps {
		if ts.Before(start) || ts.After(now) {
			continue
		}
		idx := int(ts.Sub(start) / width)
		if idx >= binCount {
			idx = binCount - 1
		}
		bins[idx].Count++
	}
	return bins
}

// ClassShare is one slice of the device class distribution.
type ClassShare struct {
	Name    string `json:"name"`
	Percent int    `json:"value"`
}

// classBuckets maps device name keywords to distribution buckets, checked
// in order.
var classBuckets = []struct {
	name     string
	keywords []string
}{
	{"Phones", []string{"phone"}},
	{"Headphones", []string{"bud", "ear"}},
	{"Peripherals", []string{"mouse", "keyboard", "pad"}},
}

const otherBucket = "Other"

// ClassDistribution buckets every recorded device name by keyword and
// returns each bucket's share as a rounded percentage. Buckets appear in a
// fixed order; shares of an empty log are all zero.
func (e *Engine) ClassDistribution(ctx context.Context, now time.Time) ([]ClassShare, error) {
	names, err := e.store.NamesInWindow(ctx, now, 0)
	if err != nil {
		return nil, fmt.Errorf("computing class distribution: %w", err)
	}
	return DistributeClasses(names), nil
}

// DistributeClasses assigns names to keyword buckets and converts counts to
// rounded percentages of the total.
func DistributeClasses(names []string) []ClassShare {
	counts := make(map[string]int, len(classBuckets)+1)
	for _, name := range names {
		counts[classify(name)]++
	}

	total := len(names)
	if total == 0 {
		total = 1
	}

	shares := make([]ClassShare, 0, len(classBuckets)+1)
	for _, bucket := range classBuckets {
		shares = append(shares, ClassShare{
			Name:    bucket.name,
			Percent: percent(counts[bucket.name], total),
		})
	}
	shares = append(shares, ClassShare{
		Name:    otherBucket,
		Percent: percent(counts[otherBucket], total),
	})
	return shares
}

func classify(name string) string {
	lower := strings.ToLower(name)
	for _, bucket := range classBuckets {
		for _, kw := range bucket.keywords {
			if strings.Contains(lower, kw) {
				return bucket.name
			}
		}
	}
	return otherBucket
}

func percent(count, total int) int {
	return int(float64(count)/float64(total)*100 + 0.5)
}

// NameAnalysis summarizes device naming over the trailing name window.
type NameAnalysis struct {
	// CommonClass is the most frequent major device class.
	CommonClass string `json:"commonClass"`

	// Initials counts device names by lowercased first character; nameless
	// devices fall into the "other" bucket.
	Initials map[string]int `json:"initials"`

	// Keywords counts names containing each class keyword.
	Keywords map[string]int `json:"keywords"`
}

// AnalyzeNames runs the engine's name analysis over the trailing window.
func (e *Engine) AnalyzeNames(ctx context.Context, now time.Time) (NameAnalysis, error) {
	classes, err := e.store.ClassesInWindow(ctx, now, e.cfg.NameWindow)
	if err != nil {
		return NameAnalysis{}, fmt.Errorf("analyzing device classes: %w", err)
	}
	names, err := e.store.NamesInWindow(ctx, now, e.cfg.NameWindow)
	if err != nil {
		return NameAnalysis{}, fmt.Errorf("analyzing device names: %w", err)
	}

	return NameAnalysis{
		CommonClass: MostCommon(classes),
		Initials:    CountInitials(names),
		Keywords:    CountKeywords(names),
	}, nil
}

// MostCommon returns the most frequent non-empty value, breaking count ties
// lexicographically. Empty input yields "".
func MostCommon(values []string) string {
	counts := make(map[string]int, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		counts[v]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// CountInitials counts names by lowercased first character. Empty names are
// bucketed under "other".
func CountInitials(names []string) map[string]int {
	counts := make(map[string]int)
	for _, name := range names {
		if name == "" {
			counts["other"]++
			continue
		}
		counts[strings.ToLower(name[:1])]++
	}
	return counts
}

// CountKeywords counts names containing each class keyword.
func CountKeywords(names []string) map[string]int {
	counts := make(map[string]int)
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, bucket := range classBuckets {
			for _, kw := range bucket.keywords {
				if strings.Contains(lower, kw) {
					counts[kw]++
				}
			}
		}
	}
	return counts
}

// Bands counts signal readings by proximity group.
type Bands struct {
	Near int `json:"near"`
	Mid  int `json:"mid"`
	Far  int `json:"far"`
}

// RSSIBands counts signal readings over the histogram window by proximity
// group.
func (e *Engine) RSSIBands(ctx context.Context, now time.Time) (Bands, error) {
	readings, err := e.store.RSSIInWindow(ctx, now, e.cfg.HistogramWindow)
	if err != nil {
		return Bands{}, fmt.Errorf("computing signal bands: %w", err)
	}
	return CountBands(readings), nil
}

// CountBands classifies each reading into its proximity group.
func CountBands(readings []int) Bands {
	var b Bands
	for _, r := range readings {
		switch proximity.Classify(r) {
		case proximity.Near:
			b.Near++
		case proximity.Mid:
			b.Mid++
		case proximity.Far:
			b.Far++
		}
	}
	return b
}
