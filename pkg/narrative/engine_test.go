package narrative

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func active(name, trigger string) Template {
	return Template{Name: name, Kind: KindActive, Trigger: ParseTrigger(trigger)}
}

func generic(name string) Template {
	return Template{Name: name, Kind: KindGeneric}
}

func absence(name, trigger string) Template {
	return Template{Name: name, Kind: KindAbsence, Trigger: ExactMatch(trigger)}
}

func byName(profiles []MergedProfile, name string) (MergedProfile, bool) {
	for _, p := range profiles {
		if p.DisplayName == name {
			return p, true
		}
	}
	return MergedProfile{}, false
}

func TestSynthesize_ActiveGenericAbsence(t *testing.T) {
	templates := []Template{
		active("watch-a", "PhoneA"),
		generic("filler"),
		absence("missing-c", "PhoneC"),
	}
	engine := Engine{MaxProfiles: 10}

	run := func() []MergedProfile {
		return engine.Synthesize([]string{"PhoneA", "PhoneB"}, templates, nil)
	}

	got := run()
	require.Len(t, got, 3)

	a, ok := byName(got, "PhoneA")
	require.True(t, ok)
	assert.Equal(t, KindActive, a.Kind)
	assert.Equal(t, ProvenanceReal, a.Provenance)

	b, ok := byName(got, "PhoneB")
	require.True(t, ok)
	assert.Equal(t, KindGeneric, b.Kind)

	c, ok := byName(got, "PhoneC")
	require.True(t, ok)
	assert.Equal(t, KindAbsence, c.Kind)
	assert.Equal(t, ProvenanceAbsence, c.Provenance)

	// Re-polling with unchanged inputs yields the identical feed.
	assert.Equal(t, got, run())
}

func TestSynthesize_ExactBeatsPrefix(t *testing.T) {
	templates := []Template{
		active("wide", "Phone%"),
		active("narrow", "PhoneA"),
		Template{Name: "wide-note", Kind: KindActive, Trigger: ParseTrigger("Phone%"), ProvocativeNote: "prefix hit"},
	}
	got := Engine{}.Synthesize([]string{"PhoneA"}, templates, nil)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].ProvocativeNote, "exact trigger must win over earlier prefix trigger")
}

func TestSynthesize_PrefixMatchIsCaseInsensitive(t *testing.T) {
	templates := []Template{active("wide", "iphone%")}
	got := Engine{}.Synthesize([]string{"IPhone_Maria"}, templates, nil)
	require.Len(t, got, 1)
	assert.Equal(t, KindActive, got[0].Kind)
}

func TestSynthesize_GenericRoundRobin(t *testing.T) {
	templates := []Template{
		{Name: "g1", Kind: KindGeneric, ProvocativeNote: "one"},
		{Name: "g2", Kind: KindGeneric, ProvocativeNote: "two"},
	}
	got := Engine{}.Synthesize([]string{"A", "B", "C"}, templates, nil)
	require.Len(t, got, 3)

	a, _ := byName(got, "A")
	b, _ := byName(got, "B")
	c, _ := byName(got, "C")
	assert.Equal(t, "one", a.ProvocativeNote)
	assert.Equal(t, "two", b.ProvocativeNote)
	assert.Equal(t, "one", c.ProvocativeNote, "third device cycles back to the first generic")
}

func TestSynthesize_AbsenceOnlyWhenAbsent(t *testing.T) {
	templates := []Template{
		generic("filler"),
		absence("missing-a", "PhoneA"),
		absence("missing-c", "PhoneC"),
	}
	got := Engine{}.Synthesize([]string{"PhoneA"}, templates, nil)

	_, hasA := byName(got, "PhoneA")
	require.True(t, hasA)
	for _, p := range got {
		if p.DisplayName == "PhoneA" {
			assert.NotEqual(t, KindAbsence, p.Kind)
		}
	}

	c, ok := byName(got, "PhoneC")
	require.True(t, ok)
	assert.Equal(t, KindAbsence, c.Kind)
}

func TestSynthesize_AbsenceNoteSubstitution(t *testing.T) {
	templates := []Template{{
		Name:            "missing",
		Kind:            KindAbsence,
		Trigger:         ExactMatch("PhoneC"),
		ProvocativeNote: "We rarely see '{name}' around here",
	}}
	got := Engine{}.Synthesize(nil, templates, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "We rarely see 'PhoneC' around here", got[0].ProvocativeNote)
}

func TestSynthesize_DedupNamespaces(t *testing.T) {
	templates := []Template{
		active("watch-1", "PhoneA"),
		active("watch-2", "PhoneA"),
		absence("missing", "PhoneC"),
		absence("missing", "PhoneD"),
	}
	got := Engine{}.Synthesize([]string{"PhoneA", "PhoneA"}, templates, nil)

	names := make(map[string]int)
	absences := 0
	for _, p := range got {
		names[p.DisplayName]++
		if p.Kind == KindAbsence {
			absences++
		}
	}
	assert.Equal(t, 1, names["PhoneA"], "one profile per display name")
	assert.Equal(t, 1, absences, "one profile per absence template name")
}

func TestSynthesize_PrioritySortAndCap(t *testing.T) {
	var templates []Template
	// 26 active triggers + 2 high-concern actives + 2 absences = 30 eligible.
	visible := make([]string, 0, 28)
	for i := 0; i < 26; i++ {
		name := fmt.Sprintf("Device%02d", i)
		visible = append(visible, name)
		templates = append(templates, active("watch-"+name, name))
	}
	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("Threat%d", i)
		visible = append(visible, name)
		templates = append(templates, Template{
			Name:        "hc-" + name,
			Kind:        KindActive,
			Trigger:     ExactMatch(name),
			HighConcern: true,
		})
	}
	templates = append(templates,
		absence("gone-1", "GhostA"),
		absence("gone-2", "GhostB"),
	)

	got := Engine{MaxProfiles: 6}.Synthesize(visible, templates, nil)
	require.Len(t, got, 6)

	assert.Equal(t, KindAbsence, got[0].Kind)
	assert.Equal(t, KindAbsence, got[1].Kind)
	assert.True(t, got[2].HighConcern)
	assert.True(t, got[3].HighConcern)

	// Remaining slots go to the lexicographically first ordinary profiles.
	assert.Equal(t, "Device00", got[4].DisplayName)
	assert.Equal(t, "Device01", got[5].DisplayName)
}

func TestSynthesize_EmptyCatalog(t *testing.T) {
	t.Run("no fragments yields empty feed", func(t *testing.T) {
		got := Engine{}.Synthesize([]string{"PhoneA"}, nil, nil)
		assert.Empty(t, got)
	})

	t.Run("real fragments keep the device visible", func(t *testing.T) {
		extra := map[string]Messages{
			"PhoneA": {RealLastSeen: []string{"Last Seen: 10:30:00"}},
		}
		got := Engine{}.Synthesize([]string{"PhoneA"}, nil, extra)
		require.Len(t, got, 1)
		assert.Equal(t, "PhoneA", got[0].DisplayName)
		assert.Equal(t, []string{"Last Seen: 10:30:00"}, got[0].MovementPatterns)
	})
}

func TestSynthesize_MalformedTemplateSkipped(t *testing.T) {
	templates := []Template{
		{Name: "broken-active", Kind: KindActive},            // no trigger
		{Name: "broken-absence", Kind: KindAbsence},          // no trigger
		{Name: "unknown", Kind: Kind("mystery"), Trigger: ExactMatch("X")},
		active("ok", "PhoneA"),
	}
	got := Engine{}.Synthesize([]string{"PhoneA"}, templates, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "PhoneA", got[0].DisplayName)
}

func TestSynthesize_FragmentsMergedIntoProfile(t *testing.T) {
	templates := []Template{{
		Name:             "watch",
		Kind:             KindActive,
		Trigger:          ExactMatch("PhoneA"),
		MovementPatterns: []string{"sporadic library visits"},
		SocialInsights:   []string{"Clubs: Debate Team"},
	}}
	extra := map[string]Messages{
		"PhoneA": {
			RealLastSeen: []string{"Last Seen: 10:29:55"},
			Movement:     []string{"frequently in Cafeteria", "sporadic library visits"},
			Social:       []string{"Clubs: Debate Team", "Typically active after the 10 AM lecture"},
		},
	}

	got := Engine{}.Synthesize([]string{"PhoneA"}, templates, extra)
	require.Len(t, got, 1)

	assert.Equal(t, []string{
		"Last Seen: 10:29:55",
		"sporadic library visits",
		"frequently in Cafeteria",
	}, got[0].MovementPatterns, "real marker first, then first-seen order, deduplicated")

	assert.Equal(t, []string{
		"Clubs: Debate Team",
		"Typically active after the 10 AM lecture",
	}, got[0].SocialInsights)
}

func TestSynthesize_StandaloneSyntheticProfiles(t *testing.T) {
	templates := []Template{{
		Name:        "decoy",
		Kind:        KindRealPhoneSynthetic,
		DisplayName: "iPhone_Nikos",
	}}
	got := Engine{}.Synthesize(nil, templates, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "iPhone_Nikos", got[0].DisplayName)
	assert.Equal(t, ProvenanceSynthetic, got[0].Provenance)
}
