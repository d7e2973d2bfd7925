package frame

// History is a fixed-capacity ring of recent frames, newest last.
// Detectors size it to the number of frames their algorithm compares
// (one for background subtraction, up to five for the hybrid variants).
// Frames are stored by reference; they are immutable once submitted.
type History struct {
	frames []*Frame
	head   int
	count  int
}

// NewHistory creates a ring holding up to capacity frames.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{frames: make([]*Frame, capacity)}
}

// Push records a frame, evicting the oldest when full.
func (h *History) Push(f *Frame) {
	h.frames[h.head] = f
	h.head = (h.head + 1) % len(h.frames)
	if h.count < len(h.frames) {
		h.count++
	}
}

// Len returns the number of frames currently held.
func (h *History) Len() int {
	return h.count
}

// Cap returns the ring capacity.
func (h *History) Cap() int {
	return len(h.frames)
}

// Recent returns the n-th most recent frame; Recent(0) is the newest.
// Returns nil when fewer than n+1 frames have been pushed.
func (h *History) Recent(n int) *Frame {
	if n < 0 || n >= h.count {
		return nil
	}
	idx := (h.head - 1 - n + 2*len(h.frames)) % len(h.frames)
	return h.frames[idx]
}

// Clear drops all held frames.
func (h *History) Clear() {
	for i := range h.frames {
		h.frames[i] = nil
	}
	h.head = 0
	h.count = 0
}
