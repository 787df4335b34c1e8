package tracker

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gate-monitor/internal/domain/gate"
)

// Config carries the spatial and temporal policy knobs. None of them are
// hardcoded because the right values depend on camera placement and frame
// rate.
type Config struct {
	// MatchRadius is the maximum center distance, in pixels, between an
	// incoming detection and a live track for them to be the same vehicle.
	MatchRadius float64
	// GapTimeout finalizes a track once this long passes with no match.
	GapTimeout time.Duration
	// MaxTrackLen bounds a track's observation history; the oldest entry
	// is evicted when the bound is reached.
	MaxTrackLen int
	// MaxObservations finalizes a track outright after this many total
	// observations, so a vehicle parked in view cannot hold a track open
	// forever.
	MaxObservations int
}

type track struct {
	id        uuid.UUID
	lastBox   gate.BoundingBox
	history   []gate.RawObservation
	createdAt time.Time
	lastSeen  time.Time
	seen      int
}

func (t *track) append(obs gate.RawObservation, maxLen int) {
	if len(t.history) >= maxLen {
		copy(t.history, t.history[1:])
		t.history[len(t.history)-1] = obs
	} else {
		t.history = append(t.history, obs)
	}
	t.lastBox = obs.Box
	t.lastSeen = obs.Timestamp
	t.seen++
}

// Tracker turns a stream of raw per-frame observations into finalized
// vehicle events. It deduplicates per physical passage: all detections
// that land near a live track within the gap timeout belong to that
// track, and the track emits at most one event when it closes.
//
// Tracker is not safe for concurrent use. The ingestion loop owns it.
type Tracker struct {
	cfg    Config
	status string
	log    zerolog.Logger
	tracks []*track
}

// New builds a tracker. status is the IN/OUT policy for this camera; the
// tracker stamps it onto every event it finalizes but never computes it.
func New(cfg Config, status string, log zerolog.Logger) *Tracker {
	// a history bound below 1 would make append index past the slice
	if cfg.MaxTrackLen < 1 {
		cfg.MaxTrackLen = 1
	}
	return &Tracker{
		cfg:    cfg,
		status: status,
		log:    log,
	}
}

// Ingest processes one observation synchronously and returns any events
// finalized as a result: tracks whose gap timeout expired as of the
// observation's timestamp, plus the matched track itself if it just hit
// the observation cap. Malformed observations are dropped after a log
// line and neither open nor extend a track.
func (tr *Tracker) Ingest(obs gate.RawObservation) []*gate.VehicleEvent {
	if obs.Timestamp.IsZero() || !obs.Box.Valid() {
		tr.log.Warn().
			Int64("frame_id", obs.FrameID).
			Str("plate", obs.PlateText).
			Msg("dropping malformed observation")
		return nil
	}

	events := tr.sweep(obs.Timestamp)

	t := tr.match(obs)
	if t == nil {
		t = &track{
			id:        uuid.New(),
			createdAt: obs.Timestamp,
			history:   make([]gate.RawObservation, 0, tr.cfg.MaxTrackLen),
		}
		tr.tracks = append(tr.tracks, t)
	}
	t.append(obs, tr.cfg.MaxTrackLen)

	if t.seen >= tr.cfg.MaxObservations {
		tr.remove(t)
		if ev := tr.finalize(t); ev != nil {
			events = append(events, ev)
		}
	}

	return events
}

// Sweep finalizes every track whose gap timeout has elapsed as of now.
// The pipeline calls it on a timer so a passage with no successor still
// emits its event; Ingest performs the same sweep on arrival.
func (tr *Tracker) Sweep(now time.Time) []*gate.VehicleEvent {
	return tr.sweep(now)
}

// Flush finalizes every live track regardless of timeouts. Called on
// shutdown so in-flight passages are not lost when the camera stops.
func (tr *Tracker) Flush() []*gate.VehicleEvent {
	var events []*gate.VehicleEvent
	for _, t := range tr.tracks {
		if ev := tr.finalize(t); ev != nil {
			events = append(events, ev)
		}
	}
	tr.tracks = nil
	return events
}

// ActiveTracks reports how many tracks are currently open.
func (tr *Tracker) ActiveTracks() int {
	return len(tr.tracks)
}

func (tr *Tracker) sweep(now time.Time) []*gate.VehicleEvent {
	var events []*gate.VehicleEvent
	kept := tr.tracks[:0]
	for _, t := range tr.tracks {
		if now.Sub(t.lastSeen) > tr.cfg.GapTimeout {
			if ev := tr.finalize(t); ev != nil {
				events = append(events, ev)
			}
			continue
		}
		kept = append(kept, t)
	}
	tr.tracks = kept
	return events
}

func (tr *Tracker) match(obs gate.RawObservation) *track {
	var best *track
	bestDist := tr.cfg.MatchRadius
	cx, cy := obs.Box.CenterX(), obs.Box.CenterY()
	for _, t := range tr.tracks {
		dx := t.lastBox.CenterX() - cx
		dy := t.lastBox.CenterY() - cy
		d := math.Hypot(dx, dy)
		if d <= bestDist {
			best = t
			bestDist = d
		}
	}
	return best
}

func (tr *Tracker) remove(target *track) {
	for i, t := range tr.tracks {
		if t == target {
			tr.tracks = append(tr.tracks[:i], tr.tracks[i+1:]...)
			return
		}
	}
}

// finalize closes a track and emits its event, or nil when the track
// never produced a readable plate.
func (tr *Tracker) finalize(t *track) *gate.VehicleEvent {
	plate, confidence, votes := votePlate(t.history)
	if plate == "" {
		tr.log.Debug().
			Str("track_id", t.id.String()).
			Int("observations", t.seen).
			Msg("discarding track with no valid plate readings")
		return nil
	}

	breakdown, _ := json.Marshal(votes)

	ev := &gate.VehicleEvent{
		VehicleNumber: plate,
		VehicleType:   modeVehicleType(t.history),
		Status:        tr.status,
		TimeStamp:     t.lastSeen.UTC(),
		Confidence:    confidence,
		SnapshotPath:  latestSnapshot(t.history, plate),
		VoteBreakdown: breakdown,
	}

	tr.log.Info().
		Str("track_id", t.id.String()).
		Str("plate", plate).
		Int("confidence", confidence).
		Int("observations", t.seen).
		Msg("finalized track")

	return ev
}

// votePlate picks the plate string with the highest confidence sum across
// the track's readings. Empty readings are excluded from the vote. Equal
// sums go to the string read most recently. The returned confidence is
// the mean confidence of the readings that agree with the winner.
func votePlate(history []gate.RawObservation) (string, int, map[string]int) {
	sums := make(map[string]int)
	lastIdx := make(map[string]int)
	for i, obs := range history {
		if obs.PlateText == "" {
			continue
		}
		sums[obs.PlateText] += obs.OCRConfidence
		lastIdx[obs.PlateText] = i
	}
	if len(sums) == 0 {
		return "", 0, nil
	}

	var winner string
	for plate, sum := range sums {
		if winner == "" {
			winner = plate
			continue
		}
		best := sums[winner]
		if sum > best || (sum == best && lastIdx[plate] > lastIdx[winner]) {
			winner = plate
		}
	}

	total, n := 0, 0
	for _, obs := range history {
		if obs.PlateText == winner {
			total += obs.OCRConfidence
			n++
		}
	}

	return winner, total / n, sums
}

// latestSnapshot returns the newest snapshot captured while the winning
// plate was being read, falling back to any snapshot in the track.
func latestSnapshot(history []gate.RawObservation, winner string) string {
	fallback := ""
	path := ""
	for _, obs := range history {
		if obs.SnapshotPath == "" {
			continue
		}
		fallback = obs.SnapshotPath
		if obs.PlateText == winner {
			path = obs.SnapshotPath
		}
	}
	if path != "" {
		return path
	}
	return fallback
}

// modeVehicleType returns the most frequent vehicle type in the track,
// preferring the most recently seen one on a tie.
func modeVehicleType(history []gate.RawObservation) string {
	counts := make(map[string]int)
	lastIdx := make(map[string]int)
	for i, obs := range history {
		if obs.VehicleType == "" {
			continue
		}
		counts[obs.VehicleType]++
		lastIdx[obs.VehicleType] = i
	}

	mode := "Vehicle"
	best := 0
	for vt, c := range counts {
		if c > best || (c == best && lastIdx[vt] > lastIdx[mode]) {
			mode = vt
			best = c
		}
	}
	return mode
}
