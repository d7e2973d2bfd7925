// Package track associates motion regions across frames into persistent
// tracked objects, maintains their lifecycle, and predicts near-future
// positions by linear extrapolation.
package track

import (
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/motionscope/motionscope/internal/detect"
)

// State is the lifecycle state of a tracker.
type State string

const (
	StateCreated  State = "created"  // spawned this frame, not yet re-observed
	StateTracking State = "tracking" // matched on at least two frames
	StateLost     State = "lost"     // exceeded the lost-age threshold, retired
)

// Tracker tuning.
const (
	// DefaultLostAfterMillis is how long a tracker may go unmatched
	// before it is retired.
	DefaultLostAfterMillis = 5000
	// historyCap bounds per-tracker history; when exceeded the oldest
	// half is dropped.
	historyCap = 100
	// retiredCap bounds the terminal records kept for retired trackers.
	retiredCap = 100
)

// Prediction horizons in seconds, recomputed on every update.
var predictionHorizons = []float64{0.5, 1.0, 2.0}

// HistoryEntry is one observed position of a tracker.
type HistoryEntry struct {
	Position  detect.Point        `json:"position"`
	Velocity  detect.MotionVector `json:"velocity"`
	Timestamp int64               `json:"timestamp"`
}

// Prediction is a predicted future position for one tracker at a fixed
// time horizon. Superseded, not accumulated, on each recompute.
type Prediction struct {
	TrackerID  string       `json:"tracker_id"`
	Position   detect.Point `json:"position"`
	Confidence float64      `json:"confidence"`
	Horizon    float64      `json:"horizon_seconds"`
}

// Tracker is the persistent identity of one physical moving object.
type Tracker struct {
	ID           string              `json:"id"`
	State        State               `json:"state"`
	Position     detect.Point        `json:"position"`
	Velocity     detect.MotionVector `json:"velocity"`
	Acceleration detect.Point        `json:"acceleration"`
	Bounds       detect.Rect         `json:"bounds"`
	Confidence   float64             `json:"confidence"`
	Age          int                 `json:"age"`       // frames observed
	LastSeen     int64               `json:"last_seen"` // milliseconds, monotonically non-decreasing
	History      []HistoryEntry      `json:"history"`
	Predictions  []Prediction        `json:"predictions"`
}

// RetiredTrack is the terminal record kept after a tracker is removed.
type RetiredTrack struct {
	ID      string         `json:"id"`
	History []HistoryEntry `json:"history"`
}

// Manager owns the active tracker set for one engine instance. It is
// not safe for concurrent use; the engine serializes frame processing.
type Manager struct {
	assoc           Associator
	trackers        []*Tracker // creation order; the association tie-break
	retired         []RetiredTrack
	lostAfterMillis int64
	logger          *slog.Logger
}

// NewManager creates a tracker manager with the given associator. A nil
// associator selects the greedy nearest-neighbor default.
func NewManager(assoc Associator, logger *slog.Logger) *Manager {
	if assoc == nil {
		assoc = NewGreedyAssociator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		assoc:           assoc,
		lostAfterMillis: DefaultLostAfterMillis,
		logger:          logger.With("component", "tracker"),
	}
}

// SetLostAfter overrides the lost-track age threshold in milliseconds.
func (m *Manager) SetLostAfter(millis int64) {
	if millis > 0 {
		m.lostAfterMillis = millis
	}
}

// Update associates the frame's regions with active trackers, spawns
// trackers for unmatched regions, and retires trackers not seen within
// the lost-age threshold.
func (m *Manager) Update(regions []detect.Region, now int64) {
	matches := m.assoc.Associate(m.trackers, regions)

	matched := make([]bool, len(regions))
	for ti, ri := range matches {
		m.observe(m.trackers[ti], regions[ri], now)
		matched[ri] = true
	}

	for ri, r := range regions {
		if !matched[ri] {
			m.spawn(r, now)
		}
	}

	m.retire(now)
}

// observe folds a matched region into a tracker: velocity from the
// position delta, acceleration from the velocity delta, bounded history
// append, and fresh multi-horizon predictions.
func (m *Manager) observe(t *Tracker, r detect.Region, now int64) {
	dt := float64(now-t.LastSeen) / 1000.0
	newVel := t.Velocity
	if dt > 0 {
		vx := (r.Center.X - t.Position.X) / dt
		vy := (r.Center.Y - t.Position.Y) / dt
		newVel = detect.NewMotionVector(vx, vy, r.Confidence)
		t.Acceleration = detect.Point{
			X: (vx - t.Velocity.X) / dt,
			Y: (vy - t.Velocity.Y) / dt,
		}
	}
	t.Velocity = newVel
	t.Position = r.Center
	t.Bounds = r.Bounds
	t.Confidence = r.Confidence
	t.Age++
	if now > t.LastSeen {
		t.LastSeen = now
	}
	t.State = StateTracking

	t.History = append(t.History, HistoryEntry{Position: t.Position, Velocity: t.Velocity, Timestamp: now})
	if len(t.History) > historyCap {
		// Drop the oldest half rather than one entry at a time.
		t.History = append(t.History[:0], t.History[len(t.History)/2:]...)
	}

	t.Predictions = t.Predictions[:0]
	for _, h := range predictionHorizons {
		t.Predictions = append(t.Predictions, Prediction{
			TrackerID: t.ID,
			Position: detect.Point{
				X: t.Position.X + t.Velocity.X*h,
				Y: t.Position.Y + t.Velocity.Y*h,
			},
			Confidence: math.Max(0.1, t.Confidence-0.2*h),
			Horizon:    h,
		})
	}
}

func (m *Manager) spawn(r detect.Region, now int64) {
	t := &Tracker{
		ID:         uuid.New().String(),
		State:      StateCreated,
		Position:   r.Center,
		Velocity:   r.Velocity,
		Bounds:     r.Bounds,
		Confidence: r.Confidence,
		Age:        1,
		LastSeen:   now,
		History:    []HistoryEntry{{Position: r.Center, Velocity: r.Velocity, Timestamp: now}},
	}
	m.trackers = append(m.trackers, t)
	m.logger.Debug("tracker created", "tracker_id", t.ID, "x", r.Center.X, "y", r.Center.Y)
}

// retire removes trackers unmatched for longer than the lost-age
// threshold, keeping a bounded terminal record of each.
func (m *Manager) retire(now int64) {
	active := m.trackers[:0]
	for _, t := range m.trackers {
		if now-t.LastSeen > m.lostAfterMillis {
			t.State = StateLost
			m.retired = append(m.retired, RetiredTrack{ID: t.ID, History: t.History})
			if len(m.retired) > retiredCap {
				m.retired = m.retired[len(m.retired)-retiredCap:]
			}
			m.logger.Debug("tracker retired", "tracker_id", t.ID, "age", t.Age)
			continue
		}
		active = append(active, t)
	}
	m.trackers = active
}

// Active returns the active trackers in creation order. The slice is a
// copy; the trackers are live and must not be mutated by callers.
func (m *Manager) Active() []*Tracker {
	out := make([]*Tracker, len(m.trackers))
	copy(out, m.trackers)
	return out
}

// Retired returns the bounded log of retired tracks, oldest first.
func (m *Manager) Retired() []RetiredTrack {
	out := make([]RetiredTrack, len(m.retired))
	copy(out, m.retired)
	return out
}

// Quality is the mean confidence across active trackers, recomputed per
// call. Callers can gate downstream analysis on it. Returns zero when
// nothing is tracked.
func (m *Manager) Quality() float64 {
	if len(m.trackers) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range m.trackers {
		sum += t.Confidence
	}
	return sum / float64(len(m.trackers))
}

// Reset drops all tracker state, active and retired.
func (m *Manager) Reset() {
	m.trackers = nil
	m.retired = nil
}
