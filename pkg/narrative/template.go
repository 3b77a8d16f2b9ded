// Package narrative matches visible devices against a catalog of pre-authored
// pattern templates and merges the results into a bounded, deduplicated,
// prioritized feed of per-device profiles.
//
// Everything this package produces is illustrative content for a simulated
// surveillance display. Profiles are recomputed fresh on every poll and carry
// no persisted identity.
package narrative

import "strings"

// Kind discriminates profile template variants.
type Kind string

const (
	// KindActive templates fire when their trigger matches a visible device.
	KindActive Kind = "active"

	// KindGeneric templates are fallback content for visible devices with no
	// active match.
	KindGeneric Kind = "generic"

	// KindAbsence templates fire when their trigger name is NOT visible.
	KindAbsence Kind = "absence"

	// KindRealPhoneSynthetic templates are standalone fabricated profiles
	// styled as real phones; they fire regardless of visibility.
	KindRealPhoneSynthetic Kind = "real_phone_synthetic"
)

// WildcardMarker terminates a prefix trigger in catalog storage.
const WildcardMarker = "%"

// Trigger is the condition that binds a template to a device name. It is an
// explicit tagged variant: either an exact name or a name prefix, never an
// ad hoc string comparison at the call site.
type Trigger struct {
	prefix bool
	value  string
}

// ExactMatch builds a trigger matching one device name, case-sensitively.
func ExactMatch(name string) Trigger {
	return Trigger{value: name}
}

// PrefixMatch builds a trigger matching any device name that starts with
// prefix, case-insensitively.
func PrefixMatch(prefix string) Trigger {
	return Trigger{prefix: true, value: prefix}
}

// ParseTrigger converts a raw catalog trigger string into a Trigger. A
// trailing wildcard marker denotes a prefix match.
func ParseTrigger(raw string) Trigger {
	if strings.HasSuffix(raw, WildcardMarker) {
		return PrefixMatch(strings.TrimSuffix(raw, WildcardMarker))
	}
	return ExactMatch(raw)
}

// Matches reports whether the trigger fires for the device name.
func (t Trigger) Matches(name string) bool {
	if t.prefix {
		return len(name) >= len(t.value) && strings.EqualFold(name[:len(t.value)], t.value)
	}
	return name == t.value
}

// IsZero reports whether the trigger has no value to match on.
func (t Trigger) IsZero() bool {
	return t.value == ""
}

// Name returns the exact device name a trigger watches for, or the prefix.
func (t Trigger) Name() string {
	return t.value
}

// String renders the trigger in catalog form.
func (t Trigger) String() string {
	if t.prefix {
		return t.value + WildcardMarker
	}
	return t.value
}

// Template is one pre-authored narrative fragment from the catalog.
type Template struct {
	// Name identifies the template; it is the dedup key for absence profiles.
	Name string `json:"name"`

	Kind    Kind    `json:"kind"`
	Trigger Trigger `json:"-"`

	// DisplayName overrides the rendered device name for absence and
	// real_phone_synthetic templates. Falls back to the trigger name.
	DisplayName string `json:"display_name,omitempty"`

	MovementPatterns []string `json:"movement_patterns,omitempty"`
	SocialInsights   []string `json:"social_insights,omitempty"`
	ProvocativeNote  string   `json:"provocative_note,omitempty"`

	HighConcern bool `json:"high_concern"`
}

// namePlaceholder is substituted with the device name in absence notes.
const namePlaceholder = "{name}"

// renderNote substitutes the device name into a note template.
func renderNote(note, name string) string {
	return strings.ReplaceAll(note, namePlaceholder, name)
}

// valid reports whether a template is well-formed enough to participate in
// synthesis. Malformed templates are skipped, never fatal to the batch.
func (t Template) valid() bool {
	switch t.Kind {
	case KindActive, KindAbsence:
		return !t.Trigger.IsZero()
	case KindGeneric, KindRealPhoneSynthetic:
		return true
	default:
		return false
	}
}

// displayName resolves the name shown for templates not bound to a visible
// device.
func (t Template) displayName() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return t.Trigger.Name()
}
