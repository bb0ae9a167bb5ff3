package tracking

import "image"

// TrailPoint is one trail entry. OK is false for frames without a
// detection.
type TrailPoint struct {
	image.Point
	OK bool
}

// Trail is a bounded history of positions, newest first. The oldest entry
// is evicted once capacity is reached.
type Trail struct {
	buf   []TrailPoint
	head  int // index of the next write
	count int
}

// NewTrail returns an empty trail holding at most capacity entries.
func NewTrail(capacity int) *Trail {
	if capacity < 1 {
		capacity = 1
	}
	return &Trail{buf: make([]TrailPoint, capacity)}
}

// Push records p as the newest entry.
func (t *Trail) Push(p TrailPoint) {
	t.buf[t.head] = p
	t.head = (t.head + 1) % len(t.buf)
	if t.count < len(t.buf) {
		t.count++
	}
}

func (t *Trail) Len() int { return t.count }

func (t *Trail) Cap() int { return len(t.buf) }

// Snapshot returns the entries newest first.
func (t *Trail) Snapshot() []TrailPoint {
	out := make([]TrailPoint, t.count)
	for i := 0; i < t.count; i++ {
		idx := (t.head - 1 - i + len(t.buf)) % len(t.buf)
		out[i] = t.buf[idx]
	}
	return out
}
