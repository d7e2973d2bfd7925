// Package detect implements the interchangeable motion detection
// strategies and the region pipeline that reduces their change masks to
// discrete motion regions.
package detect

import (
	"fmt"
	"math"

	"github.com/motionscope/motionscope/internal/frame"
)

// Algorithm selects a detection strategy.
type Algorithm string

const (
	AlgorithmBackgroundSubtraction Algorithm = "background_subtraction"
	AlgorithmGaussianMixture       Algorithm = "gaussian_mixture"
	AlgorithmOpticalFlow           Algorithm = "optical_flow"
	AlgorithmFrameDifference       Algorithm = "frame_difference"
	AlgorithmTemporalDifference    Algorithm = "temporal_difference"
	AlgorithmEdge                  Algorithm = "edge"
	AlgorithmHybrid                Algorithm = "hybrid"
	AlgorithmAIEnhanced            Algorithm = "ai_enhanced"
)

// Algorithms lists every supported strategy.
func Algorithms() []Algorithm {
	return []Algorithm{
		AlgorithmBackgroundSubtraction,
		AlgorithmGaussianMixture,
		AlgorithmOpticalFlow,
		AlgorithmFrameDifference,
		AlgorithmTemporalDifference,
		AlgorithmEdge,
		AlgorithmHybrid,
		AlgorithmAIEnhanced,
	}
}

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	for _, known := range Algorithms() {
		if a == known {
			return true
		}
	}
	return false
}

// Config holds the detection tuning parameters recognized by every
// strategy. Zero values are replaced by defaults in Normalize.
type Config struct {
	Algorithm        Algorithm `yaml:"algorithm" json:"algorithm"`
	Threshold        int       `yaml:"threshold" json:"threshold"`                 // intensity delta, 0-255
	LearningRate     float64   `yaml:"learning_rate" json:"learning_rate"`         // background model alpha, (0,1)
	MinObjectSize    int       `yaml:"min_object_size" json:"min_object_size"`     // pixels
	MaxObjectSize    int       `yaml:"max_object_size" json:"max_object_size"`     // pixels
	MorphologicalOps bool      `yaml:"morphological_ops" json:"morphological_ops"` // open mask before labeling
	MorphKernel      int       `yaml:"morph_kernel" json:"morph_kernel"`           // opening kernel radius
	NoiseReduction   bool      `yaml:"noise_reduction" json:"noise_reduction"`     // Gaussian blur before detection
	NoiseSigma       float64   `yaml:"noise_sigma" json:"noise_sigma"`             // blur sigma
}

// DefaultConfig returns the tuning used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Algorithm:        AlgorithmBackgroundSubtraction,
		Threshold:        30,
		LearningRate:     0.05,
		MinObjectSize:    50,
		MaxObjectSize:    50000,
		MorphologicalOps: true,
		MorphKernel:      1,
		NoiseReduction:   false,
		NoiseSigma:       1.0,
	}
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Algorithm == "" {
		c.Algorithm = def.Algorithm
	}
	if c.Threshold == 0 {
		c.Threshold = def.Threshold
	}
	if c.LearningRate == 0 {
		c.LearningRate = def.LearningRate
	}
	if c.MinObjectSize == 0 {
		c.MinObjectSize = def.MinObjectSize
	}
	if c.MaxObjectSize == 0 {
		c.MaxObjectSize = def.MaxObjectSize
	}
	if c.MorphKernel == 0 {
		c.MorphKernel = def.MorphKernel
	}
	if c.NoiseSigma == 0 {
		c.NoiseSigma = def.NoiseSigma
	}
}

// Validate rejects settings outside their documented ranges.
func (c Config) Validate() error {
	if !c.Algorithm.Valid() {
		return fmt.Errorf("unknown algorithm %q", c.Algorithm)
	}
	if c.Threshold < 0 || c.Threshold > 255 {
		return fmt.Errorf("threshold %d outside [0, 255]", c.Threshold)
	}
	if c.LearningRate <= 0 || c.LearningRate >= 1 {
		return fmt.Errorf("learning rate %g outside (0, 1)", c.LearningRate)
	}
	if c.MinObjectSize <= 0 {
		return fmt.Errorf("minimum object size %d must be positive", c.MinObjectSize)
	}
	if c.MaxObjectSize <= c.MinObjectSize {
		return fmt.Errorf("maximum object size %d must exceed minimum %d", c.MaxObjectSize, c.MinObjectSize)
	}
	if c.NoiseReduction && c.NoiseSigma <= 0 {
		return fmt.Errorf("noise sigma %g must be positive", c.NoiseSigma)
	}
	return nil
}

// Point is a 2D position in pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned bounding box in pixel coordinates.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Center returns the box center.
func (r Rect) Center() Point {
	return Point{X: float64(r.X) + float64(r.W)/2, Y: float64(r.Y) + float64(r.H)/2}
}

// Overlaps reports whether two boxes intersect.
func (r Rect) Overlaps(other Rect) bool {
	return r.X < other.X+other.W && other.X < r.X+r.W &&
		r.Y < other.Y+other.H && other.Y < r.Y+r.H
}

// Union returns the smallest box containing both.
func (r Rect) Union(other Rect) Rect {
	x0 := min(r.X, other.X)
	y0 := min(r.Y, other.Y)
	x1 := max(r.X+r.W, other.X+other.W)
	y1 := max(r.Y+r.H, other.Y+other.H)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Aspect returns width/height.
func (r Rect) Aspect() float64 {
	if r.H == 0 {
		return 0
	}
	return float64(r.W) / float64(r.H)
}

// MotionVector is a 2D displacement with derived polar form and a
// confidence in [0, 1].
type MotionVector struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Magnitude  float64 `json:"magnitude"`
	Angle      float64 `json:"angle"` // radians
	Confidence float64 `json:"confidence"`
}

// NewMotionVector derives magnitude and angle from the components.
func NewMotionVector(x, y, confidence float64) MotionVector {
	return MotionVector{
		X:          x,
		Y:          y,
		Magnitude:  math.Hypot(x, y),
		Angle:      math.Atan2(y, x),
		Confidence: confidence,
	}
}

// Region is a discrete candidate motion region for one frame. Regions
// are value objects: created by the region pipeline, never mutated, and
// discarded once the frame has been processed.
type Region struct {
	ID         string       `json:"id"`
	Bounds     Rect         `json:"bounds"`
	Center     Point        `json:"center"`
	Area       int          `json:"area"` // changed pixels inside Bounds
	Velocity   MotionVector `json:"velocity"`
	Confidence float64      `json:"confidence"`
	Timestamp  int64        `json:"timestamp"` // milliseconds
}

// Detector is one detection strategy. Detect consumes a frame and
// returns the motion regions found in it; the first call (or calls until
// the strategy has enough history) returns no regions. Implementations
// are not safe for concurrent use; each stream owns its own detector.
type Detector interface {
	// Detect processes one frame. A nil slice means no motion.
	Detect(f *frame.Frame) ([]Region, error)
	// Reset clears all per-session state (background models, history).
	Reset()
	// Algorithm identifies the strategy.
	Algorithm() Algorithm
}

// New builds the detector for the configured algorithm. The config must
// already be validated.
func New(cfg Config) (Detector, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Algorithm {
	case AlgorithmBackgroundSubtraction:
		return newBackgroundSubtraction(cfg), nil
	case AlgorithmGaussianMixture:
		return newGaussianMixture(cfg), nil
	case AlgorithmOpticalFlow:
		return newOpticalFlow(cfg), nil
	case AlgorithmFrameDifference:
		return newFrameDifference(cfg), nil
	case AlgorithmTemporalDifference:
		return newTemporalDifference(cfg), nil
	case AlgorithmEdge:
		return newEdgeDifference(cfg), nil
	case AlgorithmHybrid:
		return newHybrid(cfg), nil
	case AlgorithmAIEnhanced:
		return newAIEnhanced(cfg), nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", cfg.Algorithm)
	}
}

// preprocess applies the configured noise reduction.
func preprocess(cfg Config, f *frame.Frame) *frame.Frame {
	if cfg.NoiseReduction {
		return frame.GaussianBlur(f, cfg.NoiseSigma)
	}
	return f
}
