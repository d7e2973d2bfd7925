package detect

import (
	"fmt"

	"github.com/motionscope/motionscope/internal/frame"
)

// edgeDifference differences Sobel gradient maps instead of raw
// intensity, emphasizing contour motion. Useful when illumination is
// unstable: global brightness shifts move intensities but not edges.
type edgeDifference struct {
	cfg      Config
	prevEdge *frame.Frame
}

func newEdgeDifference(cfg Config) *edgeDifference {
	return &edgeDifference{cfg: cfg}
}

func (d *edgeDifference) Algorithm() Algorithm {
	return AlgorithmEdge
}

func (d *edgeDifference) Reset() {
	d.prevEdge = nil
}

func (d *edgeDifference) Detect(f *frame.Frame) ([]Region, error) {
	f = preprocess(d.cfg, f)
	edges := frame.SobelMagnitude(f)

	prev := d.prevEdge
	d.prevEdge = edges
	if prev == nil {
		return nil, nil
	}
	if !edges.SameSize(prev) {
		return nil, fmt.Errorf("frame %dx%d does not match previous %dx%d", f.Width, f.Height, prev.Width, prev.Height)
	}

	m := diffMask(edges, prev, d.cfg.Threshold)
	return extractRegions(d.cfg, m, f.Timestamp), nil
}
