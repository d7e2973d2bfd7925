package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionscope/motionscope/internal/detect"
)

func regionWithBounds(x, y, w, h int, conf float64) detect.Region {
	bounds := detect.Rect{X: x, Y: y, W: w, H: h}
	return detect.Region{
		ID:         "r",
		Bounds:     bounds,
		Center:     bounds.Center(),
		Area:       w * h,
		Confidence: conf,
	}
}

func TestManagerSpawnsTracker(t *testing.T) {
	m := NewManager(nil, nil)
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, 0)

	active := m.Active()
	require.Len(t, active, 1)
	tr := active[0]
	assert.Equal(t, StateCreated, tr.State)
	assert.Equal(t, 1, tr.Age)
	assert.Equal(t, detect.Point{X: 100, Y: 100}, tr.Position)
	assert.Equal(t, int64(0), tr.LastSeen)
	assert.Len(t, tr.History, 1)
	assert.NotEmpty(t, tr.ID)
	assert.Empty(t, tr.Predictions, "predictions need a second observation")
}

func TestManagerObservationDerivesVelocity(t *testing.T) {
	m := NewManager(nil, nil)
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, 0)
	m.Update([]detect.Region{regionWithBounds(105, 95, 10, 10, 0.9)}, 1000)

	active := m.Active()
	require.Len(t, active, 1)
	tr := active[0]
	assert.Equal(t, StateTracking, tr.State)
	assert.Equal(t, 2, tr.Age)
	assert.Equal(t, int64(1000), tr.LastSeen)
	// 10 px over 1 second.
	assert.InDelta(t, 10.0, tr.Velocity.X, 1e-9)
	assert.InDelta(t, 0.0, tr.Velocity.Y, 1e-9)
	assert.InDelta(t, 10.0, tr.Velocity.Magnitude, 1e-9)
	assert.InDelta(t, 10.0, tr.Acceleration.X, 1e-9)
	assert.Len(t, tr.History, 2)
}

func TestManagerPredictions(t *testing.T) {
	m := NewManager(nil, nil)
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, 0)
	m.Update([]detect.Region{regionWithBounds(105, 95, 10, 10, 0.9)}, 1000)

	tr := m.Active()[0]
	require.Len(t, tr.Predictions, 3)

	horizons := []float64{0.5, 1.0, 2.0}
	for i, p := range tr.Predictions {
		h := horizons[i]
		assert.Equal(t, h, p.Horizon)
		assert.Equal(t, tr.ID, p.TrackerID)
		// Linear extrapolation from (110, 100) at 10 px/s rightward.
		assert.InDelta(t, 110+10*h, p.Position.X, 1e-9)
		assert.InDelta(t, 100.0, p.Position.Y, 1e-9)
		assert.InDelta(t, 0.9-0.2*h, p.Confidence, 1e-9)
	}
}

func TestManagerPredictionConfidenceFloor(t *testing.T) {
	m := NewManager(nil, nil)
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.3)}, 0)
	m.Update([]detect.Region{regionWithBounds(100, 95, 10, 10, 0.3)}, 1000)

	tr := m.Active()[0]
	require.Len(t, tr.Predictions, 3)
	// 0.3 - 0.2*2.0 would go negative; it clamps at 0.1.
	assert.InDelta(t, 0.1, tr.Predictions[2].Confidence, 1e-9)
}

func TestManagerRetiresLostTracker(t *testing.T) {
	m := NewManager(nil, nil)
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, 0)

	// Unmatched for exactly the threshold: still active.
	m.Update(nil, 5000)
	assert.Len(t, m.Active(), 1)

	// One millisecond past it: retired.
	m.Update(nil, 5001)
	assert.Empty(t, m.Active())
	retired := m.Retired()
	require.Len(t, retired, 1)
	assert.NotEmpty(t, retired[0].ID)
	assert.Len(t, retired[0].History, 1)
}

func TestManagerSetLostAfter(t *testing.T) {
	m := NewManager(nil, nil)
	m.SetLostAfter(1000)
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, 0)
	m.Update(nil, 1500)
	assert.Empty(t, m.Active())
}

func TestManagerHistoryBounded(t *testing.T) {
	m := NewManager(nil, nil)
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, 0)

	// Keep re-observing the same object; history halves once it passes
	// the cap instead of growing without bound.
	for i := 1; i <= 100; i++ {
		m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, int64(i*100))
	}
	tr := m.Active()[0]
	assert.Equal(t, 101, tr.Age)
	assert.Len(t, tr.History, 51)
	// The retained half is the most recent.
	assert.Equal(t, int64(10000), tr.History[len(tr.History)-1].Timestamp)
}

func TestManagerTracksMultipleObjects(t *testing.T) {
	m := NewManager(nil, nil)
	m.Update([]detect.Region{
		regionWithBounds(0, 0, 10, 10, 0.5),
		regionWithBounds(200, 200, 10, 10, 1.0),
	}, 0)

	require.Len(t, m.Active(), 2)
	assert.InDelta(t, 0.75, m.Quality(), 1e-9)

	// Each tracker follows its own region.
	m.Update([]detect.Region{
		regionWithBounds(10, 0, 10, 10, 0.5),
		regionWithBounds(210, 200, 10, 10, 1.0),
	}, 1000)
	active := m.Active()
	require.Len(t, active, 2)
	assert.InDelta(t, 15.0, active[0].Position.X, 1e-9)
	assert.InDelta(t, 215.0, active[1].Position.X, 1e-9)
}

func TestManagerQualityEmpty(t *testing.T) {
	m := NewManager(nil, nil)
	assert.Zero(t, m.Quality())
}

func TestManagerReset(t *testing.T) {
	m := NewManager(nil, nil)
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, 0)
	m.Update(nil, 6000)
	require.Len(t, m.Retired(), 1)

	m.Reset()
	assert.Empty(t, m.Active())
	assert.Empty(t, m.Retired())
}

func TestManagerLastSeenMonotone(t *testing.T) {
	m := NewManager(nil, nil)
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, 1000)
	// An out-of-order frame must not rewind LastSeen.
	m.Update([]detect.Region{regionWithBounds(95, 95, 10, 10, 0.9)}, 500)

	tr := m.Active()[0]
	assert.Equal(t, int64(1000), tr.LastSeen)
	assert.Equal(t, 2, tr.Age)
}
