package server

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"time"

	"github.com/sightline-io/sightline/pkg/metrics"
	"github.com/sightline-io/sightline/pkg/narrative"
	"github.com/sightline-io/sightline/pkg/proximity"
	"github.com/sightline-io/sightline/pkg/sighting"
)

// markerTimeFormat renders real last-seen activity markers.
const markerTimeFormat = "15:04:05"

// deviceLogRequest is the scanner ingest payload. The MAC address never
// leaves this handler; only its pseudonym is stored.
type deviceLogRequest struct {
	MAC        string `json:"mac"`
	Name       string `json:"name"`
	RSSI       *int   `json:"rssi"`
	Location   string `json:"location"`
	MajorClass string `json:"major_class"`
}

func (s *Server) handleDeviceLog(w http.ResponseWriter, r *http.Request) {
	var req deviceLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MAC == "" || req.Name == "" || req.RSSI == nil || req.Location == "" || req.MajorClass == "" {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	sg := sighting.Sighting{
		Pseudonym:  s.deps.Hasher.Derive(req.MAC),
		DeviceName: req.Name,
		RSSI:       *req.RSSI,
		Location:   req.Location,
		MajorClass: req.MajorClass,
		LastSeen:   s.now().Truncate(time.Second),
	}
	if err := s.deps.Sightings.Record(r.Context(), sg); err != nil {
		s.deps.Logger.Error("recording sighting failed",
			"error", err, "request_id", requestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "recording sighting failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type visibleDevice struct {
	Pseudonym string `json:"pseudonym"`
	Name      string `json:"name"`
	RSSI      int    `json:"rssi"`
	Duration  int64  `json:"duration"`
	IsNew     bool   `json:"isNew"`
	Group     string `json:"group"`
	Welcome   bool   `json:"welcome"`
}

func (s *Server) handleVisibleDevices(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	empty := map[string][]visibleDevice{"devices": {}}

	events, err := s.deps.Sightings.RecentWindow(r.Context(), now, s.cfg.MaxLookback)
	if err != nil {
		s.failSoft(w, r, err, empty)
		return
	}

	sessions := s.deps.Presence.Visible(now, events)
	devices := make([]visibleDevice, 0, len(sessions))
	for _, session := range sessions {
		devices = append(devices, visibleDevice{
			Pseudonym: session.Pseudonym,
			Name:      session.Name,
			RSSI:      session.RSSI,
			Duration:  int64(session.Duration.Seconds()),
			IsNew:     session.IsNew,
			Group:     string(session.Group),
			Welcome:   s.deps.Welcome.FirstGlimpse(session.Pseudonym, now),
		})
	}

	writeJSON(w, http.StatusOK, map[string][]visibleDevice{"devices": devices})
}

func (s *Server) handleLiveCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.deps.Metrics.LiveCount(r.Context(), s.now())
	if err != nil {
		s.failSoft(w, r, err, map[string]int{"count": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleDailyUnique(w http.ResponseWriter, r *http.Request) {
	count, err := s.deps.Metrics.DailyUnique(r.Context(), s.now())
	if err != nil {
		s.failSoft(w, r, err, map[string]int{"count": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleRSSIHistogram(w http.ResponseWriter, r *http.Request) {
	bands, err := s.deps.Metrics.RSSIBands(r.Context(), s.now())
	if err != nil {
		s.failSoft(w, r, err, metrics.Bands{})
		return
	}
	writeJSON(w, http.StatusOK, bands)
}

func (s *Server) handleEventHistogram(w http.ResponseWriter, r *http.Request) {
	bins, err := s.deps.Metrics.EventHistogram(r.Context(), s.now())
	if err != nil {
		s.failSoft(w, r, err, []metrics.Bin{})
		return
	}
	writeJSON(w, http.StatusOK, bins)
}

type plottedDevice struct {
	Name     string  `json:"name"`
	RSSI     int     `json:"rssi"`
	Distance float64 `json:"distance"`
	Angle    float64 `json:"angle"`
}

func (s *Server) handleRSSICurrentGroups(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	empty := map[string][]plottedDevice{"near": {}, "mid": {}, "far": {}}

	events, err := s.deps.Sightings.RecentWindow(r.Context(), now, s.cfg.MaxLookback)
	if err != nil {
		s.failSoft(w, r, err, empty)
		return
	}

	sessions := s.deps.Presence.Visible(now, events)
	groups := map[string][]plottedDevice{"near": {}, "mid": {}, "far": {}}
	for i, session := range sessions {
		placement := proximity.Place(session.RSSI, i, len(sessions))
		groups[string(session.Group)] = append(groups[string(session.Group)], plottedDevice{
			Name:     session.Name,
			RSSI:     session.RSSI,
			Distance: placement.Distance,
			Angle:    placement.Angle,
		})
	}

	writeJSON(w, http.StatusOK, groups)
}

type currentDevice struct {
	Name     string `json:"name"`
	Duration int64  `json:"duration"`
}

type currentDevicesResponse struct {
	Devices     []currentDevice `json:"devices"`
	TotalUnique int             `json:"totalUnique"`
	MaxDuration int64           `json:"maxDuration"`
}

func (s *Server) handleCurrentDevices(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	empty := currentDevicesResponse{Devices: []currentDevice{}}

	events, err := s.deps.Sightings.RecentWindow(r.Context(), now, s.cfg.MaxLookback)
	if err != nil {
		s.failSoft(w, r, err, empty)
		return
	}

	sessions := s.deps.Presence.Visible(now, events)
	resp := currentDevicesResponse{Devices: make([]currentDevice, 0, len(sessions))}
	for _, session := range sessions {
		duration := int64(session.Duration.Seconds())
		resp.Devices = append(resp.Devices, currentDevice{Name: session.Name, Duration: duration})
		if duration > resp.MaxDuration {
			resp.MaxDuration = duration
		}
	}
	resp.TotalUnique = len(sessions)

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClassDistribution(w http.ResponseWriter, r *http.Request) {
	shares, err := s.deps.Metrics.ClassDistribution(r.Context(), s.now())
	if err != nil {
		s.failSoft(w, r, err, []metrics.ClassShare{})
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

func (s *Server) handleNameAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.deps.Metrics.AnalyzeNames(r.Context(), s.now())
	if err != nil {
		s.failSoft(w, r, err, metrics.NameAnalysis{})
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type deviceEvent struct {
	Timestamp int64 `json:"timestamp"`
}

func (s *Server) handleDeviceEvents(w http.ResponseWriter, r *http.Request) {
	empty := map[string][]deviceEvent{"events": {}}

	stamps, err := s.deps.Sightings.EventTimestamps(r.Context(), s.now(), s.cfg.EventWindow)
	if err != nil {
		s.failSoft(w, r, err, empty)
		return
	}

	events := make([]deviceEvent, 0, len(stamps))
	for _, ts := range stamps {
		events = append(events, deviceEvent{Timestamp: ts.UnixMilli()})
	}
	writeJSON(w, http.StatusOK, map[string][]deviceEvent{"events": events})
}

type patternMessage struct {
	Pseudonym  string `json:"pseudonym"`
	DeviceName string `json:"device_name"`
	Message    string `json:"message"`
	RealMarker bool   `json:"is_real_activity_marker"`
}

func (s *Server) handlePatternLastSeen(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	messages := make([]patternMessage, 0)

	activities, err := s.deps.Sightings.RealLastSeen(r.Context(), now, s.cfg.ActivityWindow)
	if err != nil {
		s.failSoft(w, r, err, messages)
		return
	}
	for _, a := range activities {
		messages = append(messages, patternMessage{
			Pseudonym:  a.Pseudonym,
			DeviceName: a.Name,
			Message:    narrative.RealMarkerPrefix + " " + a.LastSeen.Format(markerTimeFormat),
			RealMarker: true,
		})
	}

	fragments, err := s.deps.Patterns.Fragments(r.Context(), narrative.PatternLastSeen)
	if err != nil {
		s.failSoft(w, r, err, messages)
		return
	}
	for _, f := range fragments {
		messages = append(messages, patternMessage{
			Pseudonym:  f.Pseudonym,
			DeviceName: f.DeviceName,
			Message:    f.Message,
		})
	}

	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handlePatternCoOccur(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	empty := []narrative.Fragment{}

	active, err := s.deps.Sightings.ActiveDevices(r.Context(), now, s.cfg.ActivityWindow)
	if err != nil {
		s.failSoft(w, r, err, empty)
		return
	}
	realNames := make(map[string]string, len(active))
	for _, d := range active {
		realNames[d.Pseudonym] = d.Name
	}

	fragments, err := s.deps.Patterns.Fragments(r.Context(), narrative.PatternCoOccur)
	if err != nil {
		s.failSoft(w, r, err, empty)
		return
	}

	writeJSON(w, http.StatusOK, narrative.OverrideNames(fragments, realNames))
}

func (s *Server) handlePatternRoutine(w http.ResponseWriter, r *http.Request) {
	fragments, err := s.deps.Patterns.Routine(r.Context(), s.cfg.RoutineLimit)
	if err != nil {
		s.failSoft(w, r, err, []narrative.Fragment{})
		return
	}
	if fragments == nil {
		fragments = []narrative.Fragment{}
	}
	writeJSON(w, http.StatusOK, fragments)
}

type profilesRequest struct {
	VisibleDeviceNames *[]string `json:"visibleDeviceNames"`
}

type profilesResponse struct {
	Profiles    []narrative.MergedProfile `json:"profiles"`
	CoLocations []narrative.CoLocation    `json:"colocations"`
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	var req profilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VisibleDeviceNames == nil {
		writeError(w, http.StatusBadRequest, "visibleDeviceNames must be an array")
		return
	}
	visible := *req.VisibleDeviceNames
	now := s.now()

	// A broken catalog degrades the feed to real-device-only profiles.
	templates, err := s.deps.Catalog.Templates(r.Context())
	if err != nil {
		s.deps.Logger.Error("loading profile catalog failed",
			"error", err, "request_id", requestID(r.Context()))
		templates = nil
	}

	profiles := s.deps.Narrative.Synthesize(visible, templates, s.gatherFragments(r, visible, now))

	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		names = append(names, p.DisplayName)
	}
	rng := rand.New(rand.NewSource(now.UnixNano()))
	colocations := narrative.CoLocationPairs(names, s.cfg.CoLocationPairs, rng)
	if colocations == nil {
		colocations = []narrative.CoLocation{}
	}

	writeJSON(w, http.StatusOK, profilesResponse{Profiles: profiles, CoLocations: colocations})
}

// gatherFragments collects per-device message fragments for profile
// synthesis: real activity markers and the three synthetic feeds. Each feed
// fails soft; a missing feed just means fewer fragments.
func (s *Server) gatherFragments(r *http.Request, visible []string, now time.Time) map[string]narrative.Messages {
	ctx := r.Context()
	logFeed := func(feed string, err error) {
		s.deps.Logger.Warn("pattern feed unavailable for profiles",
			"feed", feed, "error", err, "request_id", requestID(ctx))
	}

	visibleSet := make(map[string]struct{}, len(visible))
	for _, name := range visible {
		visibleSet[name] = struct{}{}
	}

	extra := make(map[string]narrative.Messages)
	appendTo := func(name string, update func(*narrative.Messages)) {
		if _, ok := visibleSet[name]; !ok {
			return
		}
		msgs := extra[name]
		update(&msgs)
		extra[name] = msgs
	}

	realNames := make(map[string]string)
	activities, err := s.deps.Sightings.RealLastSeen(ctx, now, s.cfg.ActivityWindow)
	if err != nil {
		logFeed("real-last-seen", err)
	}
	for _, a := range activities {
		realNames[a.Pseudonym] = a.Name
		marker := narrative.RealMarkerPrefix + " " + a.LastSeen.Format(markerTimeFormat)
		appendTo(a.Name, func(m *narrative.Messages) {
			m.RealLastSeen = append(m.RealLastSeen, marker)
		})
	}

	movement, err := s.deps.Patterns.Fragments(ctx, narrative.PatternLastSeen)
	if err != nil {
		logFeed("movement", err)
	}
	for _, f := range narrative.OverrideNames(movement, realNames) {
		appendTo(f.DeviceName, func(m *narrative.Messages) {
			m.Movement = append(m.Movement, f.Message)
		})
	}

	cooccur, err := s.deps.Patterns.Fragments(ctx, narrative.PatternCoOccur)
	if err != nil {
		logFeed("cooccur", err)
	}
	for _, f := range narrative.OverrideNames(cooccur, realNames) {
		appendTo(f.DeviceName, func(m *narrative.Messages) {
			m.Social = append(m.Social, f.Message)
		})
	}

	routine, err := s.deps.Patterns.Routine(ctx, s.cfg.RoutineLimit)
	if err != nil {
		logFeed("routine", err)
	}
	for _, f := range narrative.OverrideNames(routine, realNames) {
		appendTo(f.DeviceName, func(m *narrative.Messages) {
			m.Social = append(m.Social, f.Message)
		})
	}

	return extra
}
