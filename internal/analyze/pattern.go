// Package analyze computes per-frame aggregate motion statistics over
// the current region set. The pattern and anomaly flags are coarse
// triage signals, not statistically validated detectors.
package analyze

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/motionscope/motionscope/internal/detect"
)

// Analyzer defaults.
const (
	// directionalShare is the fraction of regions that must point within
	// directionalSpread of the dominant angle for the set to count as
	// directional movement.
	directionalShare  = 0.7
	directionalSpread = math.Pi / 4 // 45 degrees
	// randomMinRegions: below this count "random" is meaningless noise.
	randomMinRegions = 3
	// suddenFrameWindow: high-velocity motion inside the first frames of
	// a session flags a sudden onset.
	suddenFrameWindow = 10
	// DefaultVelocityCeiling is the px/s magnitude above which a region
	// is flagged as unusually fast.
	DefaultVelocityCeiling = 200.0
	histogramBins          = 10
)

// Summary aggregates one frame's region set.
type Summary struct {
	RegionCount       int       `json:"region_count"`
	TotalMotion       float64   `json:"total_motion"`       // sum of velocity magnitudes
	DominantDirection float64   `json:"dominant_direction"` // radians, from the weighted vector sum
	MeanVelocity      float64   `json:"mean_velocity"`
	MaxVelocity       float64   `json:"max_velocity"`
	Histogram         []float64 `json:"histogram"` // 10 bins over [0, MaxVelocity]
	Directional       bool      `json:"directional"`
	Random            bool      `json:"random"`
	SuddenMotion      bool      `json:"sudden_motion"`
	UnusualVelocity   bool      `json:"unusual_velocity"`
}

// Analyzer keeps the little session state the anomaly flags need.
type Analyzer struct {
	velocityCeiling float64
	framesSeen      int
}

// NewAnalyzer creates an analyzer with the default velocity ceiling.
func NewAnalyzer() *Analyzer {
	return &Analyzer{velocityCeiling: DefaultVelocityCeiling}
}

// SetVelocityCeiling overrides the unusual-velocity threshold.
func (a *Analyzer) SetVelocityCeiling(v float64) {
	if v > 0 {
		a.velocityCeiling = v
	}
}

// Reset clears session state so the sudden-motion window re-applies.
func (a *Analyzer) Reset() {
	a.framesSeen = 0
}

// Analyze summarizes one frame's regions. Must be called once per
// processed frame, with or without regions, so the session frame count
// stays accurate.
func (a *Analyzer) Analyze(regions []detect.Region) Summary {
	a.framesSeen++
	s := Summary{RegionCount: len(regions), Histogram: make([]float64, histogramBins)}
	if len(regions) == 0 {
		return s
	}

	mags := make([]float64, len(regions))
	sumX, sumY := 0.0, 0.0
	for i, r := range regions {
		mags[i] = r.Velocity.Magnitude
		s.TotalMotion += r.Velocity.Magnitude
		sumX += r.Velocity.X
		sumY += r.Velocity.Y
		if r.Velocity.Magnitude > s.MaxVelocity {
			s.MaxVelocity = r.Velocity.Magnitude
		}
	}
	s.DominantDirection = math.Atan2(sumY, sumX)
	s.MeanVelocity = stat.Mean(mags, nil)

	if s.MaxVelocity > 0 {
		dividers := make([]float64, histogramBins+1)
		for i := range dividers {
			dividers[i] = s.MaxVelocity * float64(i) / histogramBins
		}
		// Histogram requires sorted values and an inclusive last divider.
		dividers[histogramBins] = math.Nextafter(s.MaxVelocity, math.Inf(1))
		sorted := append([]float64(nil), mags...)
		sort.Float64s(sorted)
		stat.Histogram(s.Histogram, dividers, sorted, nil)
	}

	s.Directional = a.isDirectional(regions, s.DominantDirection)
	s.Random = !s.Directional && len(regions) > randomMinRegions
	s.SuddenMotion = a.framesSeen <= suddenFrameWindow && s.MaxVelocity > a.velocityCeiling/2
	s.UnusualVelocity = s.MaxVelocity > a.velocityCeiling
	return s
}

// isDirectional reports whether at least 70% of moving regions point
// within 45 degrees of the dominant direction.
func (a *Analyzer) isDirectional(regions []detect.Region, dominant float64) bool {
	moving, aligned := 0, 0
	for _, r := range regions {
		if r.Velocity.Magnitude == 0 {
			continue
		}
		moving++
		if angularDistance(r.Velocity.Angle, dominant) <= directionalSpread {
			aligned++
		}
	}
	if moving == 0 {
		return false
	}
	return float64(aligned) >= directionalShare*float64(moving)
}

// angularDistance is the absolute difference between two angles, folded
// into [0, pi].
func angularDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}
