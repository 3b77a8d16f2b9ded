package narrative

import "context"

// PatternType discriminates rows in the synthetic pattern corpus.
type PatternType string

const (
	// PatternLastSeen rows are synthetic movement fragments.
	PatternLastSeen PatternType = "last_seen"

	// PatternCoOccur rows are synthetic co-occurrence fragments.
	PatternCoOccur PatternType = "cooccur"

	// PatternRoutine rows are synthetic routine fragments.
	PatternRoutine PatternType = "routine"
)

// Fragment is one synthetic pattern message attributed to a pseudonym.
type Fragment struct {
	Pseudonym  string `json:"pseudonym"`
	DeviceName string `json:"device_name"`
	Message    string `json:"message"`
}

// Catalog loads the pre-authored profile template catalog.
type Catalog interface {
	Templates(ctx context.Context) ([]Template, error)
}

// PatternStore retrieves synthetic pattern fragments by type.
type PatternStore interface {
	// Fragments returns all fragments of the given type, excluding devices
	// whose name carries the unknown suffix.
	Fragments(ctx context.Context, typ PatternType) ([]Fragment, error)

	// Routine returns the newest routine fragments, most recent first.
	Routine(ctx context.Context, limit int) ([]Fragment, error)
}

// OverrideNames replaces each fragment's stored device name with the real
// name of its pseudonym when the pseudonym is currently active. Fragments
// for inactive pseudonyms keep their synthetic name.
func OverrideNames(fragments []Fragment, realNames map[string]string) []Fragment {
	out := make([]Fragment, len(fragments))
	for i, f := range fragments {
		if real, ok := realNames[f.Pseudonym]; ok {
			f.DeviceName = real
		}
		out[i] = f
	}
	return out
}
