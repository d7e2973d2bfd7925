package detect

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/motionscope/motionscope/internal/frame"
)

// Gaussian-mixture model constants. The variance floor keeps the
// Mahalanobis test from blowing up on static scenes.
const (
	gmInitialVariance  float32 = 100
	gmVarianceFloor    float32 = 10
	gmMahalanobisLimit float32 = 2.5
)

// gaussianMixture keeps a per-pixel (mean, variance) pair and classifies
// foreground by Mahalanobis distance. A single component per pixel: the
// multi-modal weighting of full MOG is collapsed to one Gaussian, which
// is sufficient for static backgrounds. Only background pixels update
// the model, so a genuine intruder is never absorbed into it.
type gaussianMixture struct {
	cfg      Config
	width    int
	height   int
	mean     []float32
	variance []float32
	seeded   bool
}

func newGaussianMixture(cfg Config) *gaussianMixture {
	return &gaussianMixture{cfg: cfg}
}

func (d *gaussianMixture) Algorithm() Algorithm {
	return AlgorithmGaussianMixture
}

func (d *gaussianMixture) Reset() {
	d.mean = nil
	d.variance = nil
	d.seeded = false
}

func (d *gaussianMixture) Detect(f *frame.Frame) ([]Region, error) {
	f = preprocess(d.cfg, f)

	if !d.seeded {
		d.seed(f)
		return nil, nil
	}
	if f.Width != d.width || f.Height != d.height {
		return nil, fmt.Errorf("frame %dx%d does not match model %dx%d", f.Width, f.Height, d.width, d.height)
	}

	alpha := float32(d.cfg.LearningRate)
	m := newMask(d.width, d.height)
	for i, p := range f.Pix {
		v := float32(p)
		diff := math32.Abs(v - d.mean[i])
		if diff/math32.Sqrt(d.variance[i]) > gmMahalanobisLimit {
			m.bits[i] = true
			continue
		}
		// Background pixel: adapt mean and variance.
		d.mean[i] = (1-alpha)*d.mean[i] + alpha*v
		d.variance[i] = (1-alpha)*d.variance[i] + alpha*diff*diff
		if d.variance[i] < gmVarianceFloor {
			d.variance[i] = gmVarianceFloor
		}
	}
	return extractRegions(d.cfg, m, f.Timestamp), nil
}

func (d *gaussianMixture) seed(f *frame.Frame) {
	n := len(f.Pix)
	d.width, d.height = f.Width, f.Height
	d.mean = make([]float32, n)
	d.variance = make([]float32, n)
	for i, p := range f.Pix {
		d.mean[i] = float32(p)
		d.variance[i] = gmInitialVariance
	}
	d.seeded = true
}
