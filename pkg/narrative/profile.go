package narrative

// Provenance records what a profile is actually grounded on.
type Provenance string

const (
	// ProvenanceReal marks profiles bound to a currently visible device.
	ProvenanceReal Provenance = "real"

	// ProvenanceSynthetic marks profiles fabricated entirely from the catalog.
	ProvenanceSynthetic Provenance = "synthetic"

	// ProvenanceAbsence marks profiles describing an expected-but-missing device.
	ProvenanceAbsence Provenance = "absence"
)

// MergedProfile is the renderable projection every profile variant reduces
// to. Message slices are ordered sets: first occurrence wins, no repeats
// within a category.
type MergedProfile struct {
	DisplayName      string     `json:"display_name"`
	Kind             Kind       `json:"kind"`
	MovementPatterns []string   `json:"movement_patterns"`
	SocialInsights   []string   `json:"social_insights"`
	ProvocativeNote  string     `json:"provocative_note,omitempty"`
	HighConcern      bool       `json:"high_concern"`
	Provenance       Provenance `json:"provenance"`
}

// Profile is one synthesized per-device narrative. Each variant carries only
// the fields relevant to its kind and projects to a MergedProfile at the
// boundary.
type Profile interface {
	Summary() MergedProfile
}

// ActiveProfile binds a matched active template to a visible device.
type ActiveProfile struct {
	DeviceName       string
	Template         Template
	MovementPatterns []string
	SocialInsights   []string
}

// Summary implements Profile.
func (p ActiveProfile) Summary() MergedProfile {
	return MergedProfile{
		DisplayName:      p.DeviceName,
		Kind:             KindActive,
		MovementPatterns: p.MovementPatterns,
		SocialInsights:   p.SocialInsights,
		ProvocativeNote:  p.Template.ProvocativeNote,
		HighConcern:      p.Template.HighConcern,
		Provenance:       ProvenanceReal,
	}
}

// GenericProfile is fallback content for a visible device with no active match.
type GenericProfile struct {
	DeviceName       string
	Template         Template
	MovementPatterns []string
	SocialInsights   []string
}

// Summary implements Profile.
func (p GenericProfile) Summary() MergedProfile {
	return MergedProfile{
		DisplayName:      p.DeviceName,
		Kind:             KindGeneric,
		MovementPatterns: p.MovementPatterns,
		SocialInsights:   p.SocialInsights,
		ProvocativeNote:  p.Template.ProvocativeNote,
		HighConcern:      p.Template.HighConcern,
		Provenance:       ProvenanceReal,
	}
}

// AbsenceProfile describes a named device that is expected but not visible.
type AbsenceProfile struct {
	TemplateName string
	DeviceName   string
	Note         string
	HighConcern  bool
}

// Summary implements Profile.
func (p AbsenceProfile) Summary() MergedProfile {
	return MergedProfile{
		DisplayName:     p.DeviceName,
		Kind:            KindAbsence,
		ProvocativeNote: p.Note,
		HighConcern:     p.HighConcern,
		Provenance:      ProvenanceAbsence,
	}
}

// RealPhoneSyntheticProfile is a standalone fabricated profile styled as a
// real phone; it is not bound to any visible device.
type RealPhoneSyntheticProfile struct {
	DeviceName string
	Template   Template
}

// Summary implements Profile.
func (p RealPhoneSyntheticProfile) Summary() MergedProfile {
	return MergedProfile{
		DisplayName:      p.DeviceName,
		Kind:             KindRealPhoneSynthetic,
		MovementPatterns: p.Template.MovementPatterns,
		SocialInsights:   p.Template.SocialInsights,
		ProvocativeNote:  p.Template.ProvocativeNote,
		HighConcern:      p.Template.HighConcern,
		Provenance:       ProvenanceSynthetic,
	}
}
