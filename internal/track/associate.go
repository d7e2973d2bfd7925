package track

import (
	"math"

	"github.com/motionscope/motionscope/internal/detect"
)

// Associator matches active trackers to the current frame's regions.
// The returned map is tracker index → region index; unmapped trackers
// are unmatched this frame, unmapped regions spawn new trackers.
//
// The interface exists so the greedy matcher below can be replaced by a
// global min-cost assignment without touching tracker lifecycle code.
type Associator interface {
	Associate(trackers []*Tracker, regions []detect.Region) map[int]int
}

// greedyAssociator implements first-come nearest-neighbor matching.
// Each tracker, in creation order, claims the nearest unmatched region
// within an adaptive radius that grows with the tracker's speed. This is
// deliberately not a globally optimal assignment; ties go to the
// earlier-created tracker, which keeps association deterministic.
type greedyAssociator struct{}

// NewGreedyAssociator returns the default nearest-neighbor associator.
func NewGreedyAssociator() Associator {
	return greedyAssociator{}
}

// Base association radius in pixels. The effective radius is
// max(baseRadius, 2·|velocity|); note this is in image pixels with no
// normalization to resolution.
const baseRadius = 50.0

func (greedyAssociator) Associate(trackers []*Tracker, regions []detect.Region) map[int]int {
	matches := make(map[int]int, len(trackers))
	claimed := make([]bool, len(regions))

	for ti, t := range trackers {
		radius := math.Max(baseRadius, 2*t.Velocity.Magnitude)
		best := -1
		bestDist := radius
		for ri, r := range regions {
			if claimed[ri] {
				continue
			}
			dist := math.Hypot(r.Center.X-t.Position.X, r.Center.Y-t.Position.Y)
			if dist <= bestDist {
				if best == -1 || dist < bestDist {
					best = ri
					bestDist = dist
				}
			}
		}
		if best >= 0 {
			claimed[best] = true
			matches[ti] = best
		}
	}
	return matches
}
