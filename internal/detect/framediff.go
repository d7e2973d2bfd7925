package detect

import (
	"fmt"

	"github.com/motionscope/motionscope/internal/frame"
)

// frameDifference flags pixels whose absolute intensity change between
// consecutive frames exceeds the threshold. Stateless beyond the single
// retained previous frame.
type frameDifference struct {
	cfg  Config
	prev *frame.Frame
}

func newFrameDifference(cfg Config) *frameDifference {
	return &frameDifference{cfg: cfg}
}

func (d *frameDifference) Algorithm() Algorithm {
	return AlgorithmFrameDifference
}

func (d *frameDifference) Reset() {
	d.prev = nil
}

func (d *frameDifference) Detect(f *frame.Frame) ([]Region, error) {
	f = preprocess(d.cfg, f)

	prev := d.prev
	d.prev = f
	if prev == nil {
		return nil, nil
	}
	if !f.SameSize(prev) {
		return nil, fmt.Errorf("frame %dx%d does not match previous %dx%d", f.Width, f.Height, prev.Width, prev.Height)
	}

	m := diffMask(f, prev, d.cfg.Threshold)
	return extractRegions(d.cfg, m, f.Timestamp), nil
}

// temporalDifference requires three frames and ANDs two consecutive
// difference masks, suppressing single-frame flicker that plain frame
// differencing would report as motion.
type temporalDifference struct {
	cfg     Config
	history *frame.History
}

func newTemporalDifference(cfg Config) *temporalDifference {
	return &temporalDifference{cfg: cfg, history: frame.NewHistory(3)}
}

func (d *temporalDifference) Algorithm() Algorithm {
	return AlgorithmTemporalDifference
}

func (d *temporalDifference) Reset() {
	d.history.Clear()
}

func (d *temporalDifference) Detect(f *frame.Frame) ([]Region, error) {
	f = preprocess(d.cfg, f)
	d.history.Push(f)
	if d.history.Len() < 3 {
		return nil, nil
	}

	cur := d.history.Recent(0)
	mid := d.history.Recent(1)
	old := d.history.Recent(2)
	if !cur.SameSize(mid) || !cur.SameSize(old) {
		return nil, fmt.Errorf("frame %dx%d does not match buffered history", cur.Width, cur.Height)
	}

	m1 := diffMask(cur, mid, d.cfg.Threshold)
	m2 := diffMask(mid, old, d.cfg.Threshold)
	for i := range m1.bits {
		m1.bits[i] = m1.bits[i] && m2.bits[i]
	}
	return extractRegions(d.cfg, m1, f.Timestamp), nil
}

// diffMask marks pixels whose absolute difference exceeds the threshold.
func diffMask(a, b *frame.Frame, threshold int) *mask {
	m := newMask(a.Width, a.Height)
	for i := range a.Pix {
		diff := int(a.Pix[i]) - int(b.Pix[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > threshold {
			m.bits[i] = true
		}
	}
	return m
}
