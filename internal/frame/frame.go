// Package frame provides the grayscale frame type shared by the detection
// pipeline, plus the pixel-level preprocessing steps (noise reduction,
// gradient maps) that detectors build on.
package frame

import (
	"fmt"
	"math"
)

// Frame is a single grayscale video frame. Frames are immutable once
// produced; detectors keep references in a bounded history and never
// write through them.
type Frame struct {
	Width     int
	Height    int
	Pix       []uint8 // row-major, len == Width*Height
	Timestamp int64   // milliseconds since epoch
}

// New allocates a zeroed frame.
func New(width, height int, timestamp int64) *Frame {
	return &Frame{
		Width:     width,
		Height:    height,
		Pix:       make([]uint8, width*height),
		Timestamp: timestamp,
	}
}

// FromGray wraps an existing grayscale buffer. The buffer is not copied;
// the caller must not modify it afterwards.
func FromGray(width, height int, pix []uint8, timestamp int64) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("pixel buffer length %d does not match %dx%d", len(pix), width, height)
	}
	return &Frame{Width: width, Height: height, Pix: pix, Timestamp: timestamp}, nil
}

// FromRGBA converts an RGBA buffer (4 bytes per pixel) to a grayscale
// frame using the ITU-R BT.601 luma weights.
func FromRGBA(width, height int, rgba []uint8, timestamp int64) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions %dx%d", width, height)
	}
	if len(rgba) != width*height*4 {
		return nil, fmt.Errorf("rgba buffer length %d does not match %dx%d", len(rgba), width, height)
	}
	f := New(width, height, timestamp)
	for i := 0; i < width*height; i++ {
		r := float64(rgba[i*4])
		g := float64(rgba[i*4+1])
		b := float64(rgba[i*4+2])
		f.Pix[i] = uint8(0.299*r + 0.587*g + 0.114*b)
	}
	return f, nil
}

// At returns the pixel value at (x, y). No bounds checking.
func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Width+x]
}

// SameSize reports whether the other frame has matching dimensions.
// Detectors require every frame in a session to match; they do not resize.
func (f *Frame) SameSize(other *Frame) bool {
	return other != nil && f.Width == other.Width && f.Height == other.Height
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	c := New(f.Width, f.Height, f.Timestamp)
	copy(c.Pix, f.Pix)
	return c
}

// GaussianBlur returns a blurred copy using a separable kernel derived
// from sigma. Sigma <= 0 returns the frame unchanged.
func GaussianBlur(f *Frame, sigma float64) *Frame {
	if sigma <= 0 {
		return f
	}
	radius := int(math.Ceil(2 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	w, h := f.Width, f.Height
	tmp := make([]float64, w*h)
	out := New(w, h, f.Timestamp)

	// Horizontal pass.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				sx := clamp(x+k, 0, w-1)
				acc += float64(f.Pix[y*w+sx]) * kernel[k+radius]
			}
			tmp[y*w+x] = acc
		}
	}
	// Vertical pass.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for k := -radius; k <= radius; k++ {
				sy := clamp(y+k, 0, h-1)
				acc += tmp[sy*w+x] * kernel[k+radius]
			}
			out.Pix[y*w+x] = uint8(clampF(acc, 0, 255))
		}
	}
	return out
}

// SobelMagnitude returns the gradient-magnitude map of the frame,
// clamped to [0, 255]. Border pixels are left at zero.
func SobelMagnitude(f *Frame) *Frame {
	w, h := f.Width, f.Height
	out := New(w, h, f.Timestamp)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -int(f.At(x-1, y-1)) + int(f.At(x+1, y-1)) +
				-2*int(f.At(x-1, y)) + 2*int(f.At(x+1, y)) +
				-int(f.At(x-1, y+1)) + int(f.At(x+1, y+1))
			gy := -int(f.At(x-1, y-1)) - 2*int(f.At(x, y-1)) - int(f.At(x+1, y-1)) +
				int(f.At(x-1, y+1)) + 2*int(f.At(x, y+1)) + int(f.At(x+1, y+1))
			mag := math.Sqrt(float64(gx*gx + gy*gy))
			out.Pix[y*w+x] = uint8(clampF(mag, 0, 255))
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
