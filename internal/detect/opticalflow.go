package detect

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/motionscope/motionscope/internal/frame"
)

// Block-matching parameters. The search scans offsets of up to
// flowSearchRadius pixels in steps of flowSearchStep.
const (
	flowBlockSize       = 16
	flowSearchRadius    = 16
	flowSearchStep      = 2
	flowMotionThreshold = 2.0 // minimum displacement magnitude, pixels
	flowMinConfidence   = 0.3
)

// opticalFlow estimates a motion-vector field by matching fixed-size
// blocks of the current frame against a bounded search window in the
// previous one. Moving blocks become regions directly; the block grid
// already discretizes space, so no component labeling is needed.
type opticalFlow struct {
	cfg  Config
	prev *frame.Frame
}

func newOpticalFlow(cfg Config) *opticalFlow {
	return &opticalFlow{cfg: cfg}
}

func (d *opticalFlow) Algorithm() Algorithm {
	return AlgorithmOpticalFlow
}

func (d *opticalFlow) Reset() {
	d.prev = nil
}

func (d *opticalFlow) Detect(f *frame.Frame) ([]Region, error) {
	f = preprocess(d.cfg, f)

	prev := d.prev
	d.prev = f
	if prev == nil {
		return nil, nil
	}
	if !f.SameSize(prev) {
		return nil, fmt.Errorf("frame %dx%d does not match previous %dx%d", f.Width, f.Height, prev.Width, prev.Height)
	}

	var regions []Region
	for by := 0; by+flowBlockSize <= f.Height; by += flowBlockSize {
		for bx := 0; bx+flowBlockSize <= f.Width; bx += flowBlockSize {
			v := matchBlock(f, prev, bx, by)
			if v.Magnitude < flowMotionThreshold || v.Confidence < flowMinConfidence {
				continue
			}
			bounds := Rect{X: bx, Y: by, W: flowBlockSize, H: flowBlockSize}
			regions = append(regions, Region{
				ID:         uuid.New().String(),
				Bounds:     bounds,
				Center:     bounds.Center(),
				Area:       flowBlockSize * flowBlockSize,
				Velocity:   v,
				Confidence: v.Confidence,
				Timestamp:  f.Timestamp,
			})
		}
	}
	return mergeRegions(filterRegions(d.cfg, regions)), nil
}

// matchBlock finds the offset into prev that minimizes the summed
// absolute difference for the block at (bx, by) in cur. Confidence is
// one minus the normalized residual of the best match.
func matchBlock(cur, prev *frame.Frame, bx, by int) MotionVector {
	bestSAD := -1
	bestDX, bestDY := 0, 0
	bestDist := 0

	for dy := -flowSearchRadius; dy <= flowSearchRadius; dy += flowSearchStep {
		for dx := -flowSearchRadius; dx <= flowSearchRadius; dx += flowSearchStep {
			sx, sy := bx+dx, by+dy
			if sx < 0 || sy < 0 || sx+flowBlockSize > prev.Width || sy+flowBlockSize > prev.Height {
				continue
			}
			sad := 0
			for y := 0; y < flowBlockSize; y++ {
				curRow := cur.Pix[(by+y)*cur.Width+bx:]
				prevRow := prev.Pix[(sy+y)*prev.Width+sx:]
				for x := 0; x < flowBlockSize; x++ {
					diff := int(curRow[x]) - int(prevRow[x])
					if diff < 0 {
						diff = -diff
					}
					sad += diff
				}
			}
			// Prefer the smallest displacement on ties so identical
			// frames always report zero flow.
			dist := dx*dx + dy*dy
			if bestSAD < 0 || sad < bestSAD || (sad == bestSAD && dist < bestDist) {
				bestSAD = sad
				bestDX, bestDY = dx, dy
				bestDist = dist
			}
		}
	}

	if bestSAD < 0 {
		return NewMotionVector(0, 0, 0)
	}
	// The block moved from (bx+dx, by+dy) to (bx, by); displacement in
	// the current frame is the negation of the matched offset.
	residual := float64(bestSAD) / float64(flowBlockSize*flowBlockSize*255)
	return NewMotionVector(float64(-bestDX), float64(-bestDY), 1-residual)
}
