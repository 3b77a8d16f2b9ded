// Package proximity maps signal strength readings to coarse distance buckets
// and to radial plot positions.
//
// RSSI is a proxy for distance, nothing more. The placement returned by Place
// is a visualization aid and must not be read as a triangulated position.
package proximity

import "math"

// Group is a coarse proximity bucket.
type Group string

const (
	Near Group = "near"
	Mid  Group = "mid"
	Far  Group = "far"
)

// Plot bounds in dBm. Readings are clamped into this range before placement.
const (
	plotStrongest = -30
	plotWeakest   = -90
)

// Classify maps an RSSI reading in dBm to a proximity group.
// Boundary readings resolve to the weaker bucket: -50 is mid, -70 is far.
func Classify(rssi int) Group {
	switch {
	case rssi > -50:
		return Near
	case rssi > -70:
		return Mid
	default:
		return Far
	}
}

// Placement is a polar position on a radial plot centered on the scanner.
// Distance is normalized to [0,1] where 0 is the center (strongest signal)
// and 1 the edge. Angle is in radians.
type Placement struct {
	Distance float64 `json:"distance"`
	Angle    float64 `json:"angle"`
}

// Place positions the i-th of total plotted devices. Stronger signals land
// closer to the center; devices are spread angularly by index so overlapping
// readings remain distinguishable.
func Place(rssi, index, total int) Placement {
	if total < 1 {
		total = 1
	}

	clamped := float64(rssi)
	if clamped > plotStrongest {
		clamped = plotStrongest
	}
	if clamped < plotWeakest {
		clamped = plotWeakest
	}

	norm := (clamped - plotWeakest) / float64(plotStrongest-plotWeakest)
	angleDeg := (360.0/float64(total))*float64(index) + 45.0

	return Placement{
		Distance: 1 - norm,
		Angle:    angleDeg * math.Pi / 180.0,
	}
}
