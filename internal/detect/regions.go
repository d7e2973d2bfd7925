package detect

import (
	"math"

	"github.com/google/uuid"
)

// Region filter bounds. Aspect limits reject thin noise strips; the
// confidence floor drops weak components.
const (
	minAspect     = 0.1
	maxAspect     = 10.0
	minConfidence = 0.3
)

// mask is a binary foreground mask for one frame.
type mask struct {
	w, h int
	bits []bool
}

func newMask(w, h int) *mask {
	return &mask{w: w, h: h, bits: make([]bool, w*h)}
}

func (m *mask) at(x, y int) bool {
	return m.bits[y*m.w+x]
}

func (m *mask) set(x, y int, v bool) {
	m.bits[y*m.w+x] = v
}

// open performs morphological opening (erode then dilate) with a square
// kernel of the given radius, suppressing speckle noise before labeling.
func (m *mask) open(radius int) {
	if radius < 1 {
		return
	}
	m.bits = erode(m.bits, m.w, m.h, radius)
	m.bits = dilate(m.bits, m.w, m.h, radius)
}

func erode(bits []bool, w, h, radius int) []bool {
	out := make([]bool, len(bits))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !bits[y*w+x] {
				continue
			}
			keep := true
			for dy := -radius; dy <= radius && keep; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h || !bits[ny*w+nx] {
						keep = false
						break
					}
				}
			}
			out[y*w+x] = keep
		}
	}
	return out
}

func dilate(bits []bool, w, h, radius int) []bool {
	out := make([]bool, len(bits))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !bits[y*w+x] {
				continue
			}
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= 0 && ny >= 0 && nx < w && ny < h {
						out[ny*w+nx] = true
					}
				}
			}
		}
	}
	return out
}

// component is one connected blob of foreground pixels.
type component struct {
	minX, minY, maxX, maxY int
	count                  int
}

// labelComponents extracts 8-connected components via iterative flood
// fill (explicit stack, not recursion, to stay safe on large blobs).
func labelComponents(m *mask) []component {
	visited := make([]bool, len(m.bits))
	var comps []component
	stack := make([][2]int, 0, 256)

	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			idx := y*m.w + x
			if !m.bits[idx] || visited[idx] {
				continue
			}
			c := component{minX: x, minY: y, maxX: x, maxY: y}
			stack = stack[:0]
			stack = append(stack, [2]int{x, y})
			visited[idx] = true
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p[0], p[1]
				c.count++
				if px < c.minX {
					c.minX = px
				}
				if px > c.maxX {
					c.maxX = px
				}
				if py < c.minY {
					c.minY = py
				}
				if py > c.maxY {
					c.maxY = py
				}
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if dx == 0 && dy == 0 {
							continue
						}
						nx, ny := px+dx, py+dy
						if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
							continue
						}
						nidx := ny*m.w + nx
						if m.bits[nidx] && !visited[nidx] {
							visited[nidx] = true
							stack = append(stack, [2]int{nx, ny})
						}
					}
				}
			}
			comps = append(comps, c)
		}
	}
	return comps
}

// extractRegions runs the full region pipeline over a mask: optional
// morphological opening, component labeling, size gating, then the
// shared filter and merge passes.
func extractRegions(cfg Config, m *mask, timestamp int64) []Region {
	if cfg.MorphologicalOps {
		m.open(cfg.MorphKernel)
	}

	var regions []Region
	for _, c := range labelComponents(m) {
		if c.count < cfg.MinObjectSize || c.count > cfg.MaxObjectSize {
			continue
		}
		bounds := Rect{X: c.minX, Y: c.minY, W: c.maxX - c.minX + 1, H: c.maxY - c.minY + 1}
		// Density of changed pixels within the box; compact blobs score
		// high, scattered noise scores low.
		density := float64(c.count) / float64(bounds.W*bounds.H)
		regions = append(regions, Region{
			ID:         uuid.New().String(),
			Bounds:     bounds,
			Center:     bounds.Center(),
			Area:       c.count,
			Velocity:   NewMotionVector(0, 0, 0),
			Confidence: math.Min(1, 0.2+0.8*density),
			Timestamp:  timestamp,
		})
	}
	return mergeRegions(filterRegions(cfg, regions))
}

// filterRegions drops regions outside the configured size range, with
// degenerate aspect ratios, or with too little confidence.
func filterRegions(cfg Config, regions []Region) []Region {
	out := regions[:0]
	for _, r := range regions {
		if r.Area < cfg.MinObjectSize || r.Area > cfg.MaxObjectSize {
			continue
		}
		aspect := r.Bounds.Aspect()
		if aspect < minAspect || aspect > maxAspect {
			continue
		}
		if r.Confidence < minConfidence {
			continue
		}
		out = append(out, r)
	}
	return out
}

// mergeRegions combines overlapping regions so one physical object fired
// on by several algorithms or blocks registers once. The merged box is
// the union, velocity is the area-weighted average, and confidence is
// the mean. Runs to a fixpoint so chains of overlaps collapse fully.
func mergeRegions(regions []Region) []Region {
	if len(regions) < 2 {
		return regions
	}
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(regions) && !merged; i++ {
			for j := i + 1; j < len(regions); j++ {
				if !regions[i].Bounds.Overlaps(regions[j].Bounds) {
					continue
				}
				regions[i] = combine(regions[i], regions[j])
				regions = append(regions[:j], regions[j+1:]...)
				merged = true
				break
			}
		}
	}
	return regions
}

func combine(a, b Region) Region {
	total := float64(a.Area + b.Area)
	wa, wb := float64(a.Area)/total, float64(b.Area)/total
	vx := a.Velocity.X*wa + b.Velocity.X*wb
	vy := a.Velocity.Y*wa + b.Velocity.Y*wb
	vConf := a.Velocity.Confidence*wa + b.Velocity.Confidence*wb
	bounds := a.Bounds.Union(b.Bounds)
	return Region{
		ID:         a.ID,
		Bounds:     bounds,
		Center:     bounds.Center(),
		Area:       a.Area + b.Area,
		Velocity:   NewMotionVector(vx, vy, vConf),
		Confidence: (a.Confidence + b.Confidence) / 2,
		Timestamp:  a.Timestamp,
	}
}
