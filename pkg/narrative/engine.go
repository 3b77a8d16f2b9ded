package narrative

import "sort"

// DefaultMaxProfiles caps the synthesized feed when no cap is configured.
const DefaultMaxProfiles = 12

// Engine synthesizes the per-device profile feed. It is stateless: every
// call computes fresh output from its arguments alone.
type Engine struct {
	// MaxProfiles is the capacity cap K. Zero means DefaultMaxProfiles.
	MaxProfiles int
}

// Synthesize matches visible device names against the template catalog and
// returns the merged, deduplicated, prioritized feed, capped at MaxProfiles.
//
// extra carries per-display-name message fragments from the pattern feeds;
// it may be nil. A nil or empty catalog degrades to an empty feed, never an
// error. Malformed templates are skipped.
//
// Ordering is deterministic for unchanged inputs: absence profiles first,
// then high-concern, then lexicographic by display name. Truncation removes
// only the lowest-priority tail, so absence and high-concern profiles
// survive the cap whenever possible.
func (e Engine) Synthesize(visibleNames []string, templates []Template, extra map[string]Messages) []MergedProfile {
	limit := e.MaxProfiles
	if limit <= 0 {
		limit = DefaultMaxProfiles
	}

	var actives, generics, absences, standalones []Template
	for _, t := range templates {
		if !t.valid() {
			continue
		}
		switch t.Kind {
		case KindActive:
			actives = append(actives, t)
		case KindGeneric:
			generics = append(generics, t)
		case KindAbsence:
			absences = append(absences, t)
		case KindRealPhoneSynthetic:
			standalones = append(standalones, t)
		}
	}

	visible := make(map[string]struct{}, len(visibleNames))
	for _, name := range visibleNames {
		visible[name] = struct{}{}
	}

	var profiles []Profile

	// Active matches: exact trigger first, then prefix wildcard, both in
	// catalog order. At most one active template per device.
	matched := make(map[string]struct{}, len(visibleNames))
	for _, name := range visibleNames {
		if t, ok := findActive(actives, name); ok {
			profiles = append(profiles, e.bindActive(t, name, extra))
			matched[name] = struct{}{}
		}
	}

	// Generic fallback, cycled round-robin so successive devices draw on
	// different filler templates. With no generic templates configured the
	// feed degrades to real-device-only profiles: devices that have genuine
	// message fragments still appear, bare.
	next := 0
	for _, name := range visibleNames {
		if _, ok := matched[name]; ok {
			continue
		}
		if len(generics) > 0 {
			t := generics[next%len(generics)]
			next++
			profiles = append(profiles, e.bindGeneric(t, name, extra))
			matched[name] = struct{}{}
			continue
		}
		if msgs, ok := extra[name]; ok && (len(msgs.RealLastSeen) > 0 || len(msgs.Movement) > 0 || len(msgs.Social) > 0) {
			profiles = append(profiles, e.bindGeneric(Template{Kind: KindGeneric}, name, extra))
			matched[name] = struct{}{}
		}
	}

	// Absence synthesis: only for names missing from the visible set.
	for _, t := range absences {
		if _, present := visible[t.Trigger.Name()]; present {
			continue
		}
		name := t.displayName()
		profiles = append(profiles, AbsenceProfile{
			TemplateName: t.Name,
			DeviceName:   name,
			Note:         renderNote(t.ProvocativeNote, name),
			HighConcern:  t.HighConcern,
		})
	}

	for _, t := range standalones {
		profiles = append(profiles, RealPhoneSyntheticProfile{
			DeviceName: t.displayName(),
			Template:   t,
		})
	}

	merged := project(profiles)
	sortByPriority(merged)

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// findActive returns the first active template matching the name: exact
// triggers take precedence over prefix triggers, catalog order breaks ties.
func findActive(actives []Template, name string) (Template, bool) {
	for _, t := range actives {
		if !t.Trigger.prefix && t.Trigger.Matches(name) {
			return t, true
		}
	}
	for _, t := range actives {
		if t.Trigger.prefix && t.Trigger.Matches(name) {
			return t, true
		}
	}
	return Template{}, false
}

func (e Engine) bindActive(t Template, name string, extra map[string]Messages) ActiveProfile {
	msgs := extra[name]
	return ActiveProfile{
		DeviceName:       name,
		Template:         t,
		MovementPatterns: MergeMovement(msgs.RealLastSeen, t.MovementPatterns, msgs.Movement),
		SocialInsights:   MergeSocial(t.SocialInsights, msgs.Social),
	}
}

func (e Engine) bindGeneric(t Template, name string, extra map[string]Messages) GenericProfile {
	msgs := extra[name]
	return GenericProfile{
		DeviceName:       name,
		Template:         t,
		MovementPatterns: MergeMovement(msgs.RealLastSeen, t.MovementPatterns, msgs.Movement),
		SocialInsights:   MergeSocial(t.SocialInsights, msgs.Social),
	}
}

// project reduces profiles to their renderable summaries, enforcing the two
// dedup namespaces: one profile per display name for device-bound kinds, one
// per template name for absence.
func project(profiles []Profile) []MergedProfile {
	out := make([]MergedProfile, 0, len(profiles))
	seenNames := make(map[string]struct{})
	seenAbsence := make(map[string]struct{})

	for _, p := range profiles {
		if a, ok := p.(AbsenceProfile); ok {
			if _, dup := seenAbsence[a.TemplateName]; dup {
				continue
			}
			seenAbsence[a.TemplateName] = struct{}{}
			out = append(out, p.Summary())
			continue
		}

		s := p.Summary()
		if _, dup := seenNames[s.DisplayName]; dup {
			continue
		}
		seenNames[s.DisplayName] = struct{}{}
		out = append(out, s)
	}
	return out
}

// sortByPriority orders the feed: absence, then high-concern, then
// lexicographic by display name. The sort is stable so unchanged inputs
// produce identical output across polls.
func sortByPriority(profiles []MergedProfile) {
	rank := func(p MergedProfile) int {
		switch {
		case p.Kind == KindAbsence:
			return 0
		case p.HighConcern:
			return 1
		default:
			return 2
		}
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		ri, rj := rank(profiles[i]), rank(profiles[j])
		if ri != rj {
			return ri < rj
		}
		return profiles[i].DisplayName < profiles[j].DisplayName
	})
}
