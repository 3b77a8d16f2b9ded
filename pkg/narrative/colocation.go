package narrative

import "math/rand"

// CoLocation is an illustrative pairwise co-occurrence record. Values are
// simulated and non-causal; only the structure is meaningful.
type CoLocation struct {
	DeviceA   string `json:"device_a"`
	DeviceB   string `json:"device_b"`
	Frequency int    `json:"frequency"`
	Location  string `json:"location"`
}

// coLocationSpots are the campus areas co-location records cite.
var coLocationSpots = []string{
	"Amphitheater C",
	"Lab D1",
	"Lab D2",
	"Library",
	"Cafeteria",
	"Academic Zone",
	"Courtyard",
}

const (
	minPairFrequency = 2
	maxPairFrequency = 9
)

// CoLocationPairs fabricates up to n pairwise frequency records from the
// given profile names. Pairs walk the name list in order so output structure
// is deterministic; frequencies and locations are drawn from rng. Fewer than
// two names yield no records.
func CoLocationPairs(names []string, n int, rng *rand.Rand) []CoLocation {
	if len(names) < 2 || n <= 0 {
		return nil
	}

	pairs := make([]CoLocation, 0, n)
	for i := 0; i+1 < len(names) && len(pairs) < n; i++ {
		pairs = append(pairs, CoLocation{
			DeviceA:   names[i],
			DeviceB:   names[i+1],
			Frequency: minPairFrequency + rng.Intn(maxPairFrequency-minPairFrequency+1),
			Location:  coLocationSpots[rng.Intn(len(coLocationSpots))],
		})
	}
	return pairs
}
