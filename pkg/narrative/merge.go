package narrative

import "strings"

// RealMarkerPrefix identifies a genuine last-seen activity message among
// movement-pattern fragments. Real markers always sort ahead of synthetic
// movement content.
const RealMarkerPrefix = "Last Seen:"

// Messages holds the per-device message fragments gathered from the
// independent pattern feeds, keyed to a display name by the caller.
type Messages struct {
	// RealLastSeen holds genuine activity markers from the sighting log.
	RealLastSeen []string

	// Movement holds synthetic movement-pattern fragments.
	Movement []string

	// Social holds co-occurrence and routine fragments.
	Social []string
}

// MergeMovement unions movement-pattern messages from several sources into
// one ordered set. Real last-seen markers come first, then the remaining
// sources in the order given; within the result each message string appears
// once, first occurrence winning.
func MergeMovement(real []string, synthetic ...[]string) []string {
	sources := make([][]string, 0, len(synthetic)+1)
	sources = append(sources, real)
	sources = append(sources, synthetic...)
	return dedupe(sources...)
}

// MergeSocial unions social-insight messages from independent sources
// (co-occurrence, routine) into one ordered set, first occurrence winning.
func MergeSocial(sources ...[]string) []string {
	return dedupe(sources...)
}

// IsRealMarker reports whether a movement message is a genuine activity
// marker rather than synthetic content.
func IsRealMarker(msg string) bool {
	return strings.HasPrefix(msg, RealMarkerPrefix)
}

// dedupe flattens sources into one slice, keeping the first occurrence of
// each message and dropping empties. Always returns a non-nil slice so the
// JSON boundary renders [] rather than null.
func dedupe(sources ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, src := range sources {
		for _, msg := range src {
			if msg == "" {
				continue
			}
			if _, dup := seen[msg]; dup {
				continue
			}
			seen[msg] = struct{}{}
			out = append(out, msg)
		}
	}
	return out
}
