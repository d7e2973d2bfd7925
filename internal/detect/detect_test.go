package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionscope/motionscope/internal/frame"
)

// uniformFrame returns a frame filled with a single intensity.
func uniformFrame(w, h int, value uint8, ts int64) *frame.Frame {
	f := frame.New(w, h, ts)
	for i := range f.Pix {
		f.Pix[i] = value
	}
	return f
}

// withSquare copies base and paints a filled square on it.
func withSquare(base *frame.Frame, x, y, size int, value uint8, ts int64) *frame.Frame {
	f := base.Clone()
	f.Timestamp = ts
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			f.Pix[(y+dy)*f.Width+(x+dx)] = value
		}
	}
	return f
}

func TestConfigNormalize(t *testing.T) {
	var cfg Config
	cfg.Normalize()
	// Booleans cannot be told apart from "unset", so Normalize fills
	// everything else and leaves them alone.
	want := DefaultConfig()
	want.MorphologicalOps = false
	assert.Equal(t, want, cfg)

	cfg = Config{Algorithm: AlgorithmOpticalFlow, Threshold: 10}
	cfg.Normalize()
	assert.Equal(t, AlgorithmOpticalFlow, cfg.Algorithm)
	assert.Equal(t, 10, cfg.Threshold)
	assert.Equal(t, 50, cfg.MinObjectSize)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"unknown algorithm", func(c *Config) { c.Algorithm = "magic" }, false},
		{"threshold too high", func(c *Config) { c.Threshold = 256 }, false},
		{"threshold negative", func(c *Config) { c.Threshold = -1 }, false},
		{"learning rate one", func(c *Config) { c.LearningRate = 1 }, false},
		{"learning rate negative", func(c *Config) { c.LearningRate = -0.1 }, false},
		{"min size zero", func(c *Config) { c.MinObjectSize = 0 }, false},
		{"max below min", func(c *Config) { c.MaxObjectSize = c.MinObjectSize }, false},
		{"bad noise sigma", func(c *Config) { c.NoiseReduction = true; c.NoiseSigma = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = 300
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewBuildsEveryAlgorithm(t *testing.T) {
	for _, alg := range Algorithms() {
		cfg := DefaultConfig()
		cfg.Algorithm = alg
		d, err := New(cfg)
		require.NoError(t, err, alg)
		assert.Equal(t, alg, d.Algorithm())
	}
}

func TestRectGeometry(t *testing.T) {
	r := Rect{X: 0, Y: 0, W: 10, H: 10}
	assert.Equal(t, Point{X: 5, Y: 5}, r.Center())
	assert.InDelta(t, 1.0, r.Aspect(), 1e-9)

	other := Rect{X: 5, Y: 5, W: 10, H: 10}
	assert.True(t, r.Overlaps(other))
	assert.Equal(t, Rect{X: 0, Y: 0, W: 15, H: 15}, r.Union(other))

	// Touching edges do not overlap.
	assert.False(t, r.Overlaps(Rect{X: 10, Y: 0, W: 5, H: 5}))
}

func TestNewMotionVector(t *testing.T) {
	v := NewMotionVector(3, 4, 0.9)
	assert.InDelta(t, 5.0, v.Magnitude, 1e-9)
	assert.InDelta(t, 0.9272952, v.Angle, 1e-6)
	assert.Equal(t, 0.9, v.Confidence)

	zero := NewMotionVector(0, 0, 0)
	assert.Zero(t, zero.Magnitude)
}
