package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromGray(t *testing.T) {
	pix := make([]uint8, 4*3)
	f, err := FromGray(4, 3, pix, 1000)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Equal(t, int64(1000), f.Timestamp)

	_, err = FromGray(4, 3, make([]uint8, 5), 0)
	assert.Error(t, err)

	_, err = FromGray(0, 3, nil, 0)
	assert.Error(t, err)
}

func TestFromRGBA(t *testing.T) {
	// One white pixel, one black, one pure red.
	rgba := []uint8{
		255, 255, 255, 255,
		0, 0, 0, 255,
		255, 0, 0, 255,
	}
	f, err := FromRGBA(3, 1, rgba, 0)
	require.NoError(t, err)
	assert.InDelta(t, 255, float64(f.Pix[0]), 1)
	assert.Equal(t, uint8(0), f.Pix[1])
	assert.Equal(t, uint8(76), f.Pix[2]) // 0.299*255

	_, err = FromRGBA(3, 1, rgba[:8], 0)
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	f := New(2, 2, 7)
	f.Pix[0] = 100
	c := f.Clone()
	c.Pix[0] = 200
	assert.Equal(t, uint8(100), f.Pix[0])
	assert.Equal(t, uint8(200), c.Pix[0])
	assert.Equal(t, f.Timestamp, c.Timestamp)
}

func TestSameSize(t *testing.T) {
	a := New(4, 4, 0)
	assert.True(t, a.SameSize(New(4, 4, 99)))
	assert.False(t, a.SameSize(New(4, 5, 0)))
	assert.False(t, a.SameSize(nil))
}

func TestGaussianBlurUniformFrame(t *testing.T) {
	f := New(16, 16, 0)
	for i := range f.Pix {
		f.Pix[i] = 120
	}
	out := GaussianBlur(f, 1.0)
	for i, p := range out.Pix {
		// A normalized kernel over a constant field changes nothing
		// beyond float truncation.
		assert.InDelta(t, 120, float64(p), 1, "pixel %d", i)
	}
}

func TestGaussianBlurSmoothsImpulse(t *testing.T) {
	f := New(9, 9, 0)
	f.Pix[4*9+4] = 255
	out := GaussianBlur(f, 1.0)
	assert.Less(t, out.Pix[4*9+4], uint8(255))
	assert.Greater(t, out.Pix[4*9+5], uint8(0))
}

func TestGaussianBlurZeroSigma(t *testing.T) {
	f := New(4, 4, 0)
	assert.Same(t, f, GaussianBlur(f, 0))
}

func TestSobelMagnitude(t *testing.T) {
	// Vertical step edge between columns 3 and 4.
	f := New(8, 8, 0)
	for y := 0; y < 8; y++ {
		for x := 4; x < 8; x++ {
			f.Pix[y*8+x] = 200
		}
	}
	out := SobelMagnitude(f)

	// Interior edge pixels carry gradient, flat interior does not,
	// borders are left at zero.
	assert.Greater(t, out.At(3, 4), uint8(0))
	assert.Greater(t, out.At(4, 4), uint8(0))
	assert.Equal(t, uint8(0), out.At(1, 4))
	assert.Equal(t, uint8(0), out.At(6, 4))
	assert.Equal(t, uint8(0), out.At(0, 0))
	assert.Equal(t, uint8(0), out.At(7, 7))
}
