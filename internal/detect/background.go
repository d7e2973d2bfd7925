package detect

import (
	"fmt"
	"math"

	"github.com/motionscope/motionscope/internal/frame"
)

// backgroundSubtraction maintains a per-pixel running mean of the scene
// and flags pixels that deviate from it by more than the threshold.
type backgroundSubtraction struct {
	cfg    Config
	width  int
	height int
	mean   []float64
	seeded bool
}

func newBackgroundSubtraction(cfg Config) *backgroundSubtraction {
	return &backgroundSubtraction{cfg: cfg}
}

func (d *backgroundSubtraction) Algorithm() Algorithm {
	return AlgorithmBackgroundSubtraction
}

func (d *backgroundSubtraction) Reset() {
	d.mean = nil
	d.seeded = false
}

func (d *backgroundSubtraction) Detect(f *frame.Frame) ([]Region, error) {
	f = preprocess(d.cfg, f)

	if !d.seeded {
		d.seed(f)
		return nil, nil
	}
	if f.Width != d.width || f.Height != d.height {
		return nil, fmt.Errorf("frame %dx%d does not match model %dx%d", f.Width, f.Height, d.width, d.height)
	}

	alpha := d.cfg.LearningRate
	thresh := float64(d.cfg.Threshold)
	m := newMask(d.width, d.height)
	for i, p := range f.Pix {
		v := float64(p)
		if math.Abs(v-d.mean[i]) > thresh {
			m.bits[i] = true
		}
		d.mean[i] = (1-alpha)*d.mean[i] + alpha*v
	}
	return extractRegions(d.cfg, m, f.Timestamp), nil
}

// seed initializes the model from the first frame. Cold start: the
// seeding frame never yields regions.
func (d *backgroundSubtraction) seed(f *frame.Frame) {
	d.width, d.height = f.Width, f.Height
	d.mean = make([]float64, len(f.Pix))
	for i, p := range f.Pix {
		d.mean[i] = float64(p)
	}
	d.seeded = true
}
