package timeutil

import (
	"sync/atomic"
	"time"
)

// TickCounter is a monotonic high-resolution counter. Frames are stamped
// with Ticks() and consumers convert tick deltas to seconds by dividing
// by Frequency().
type TickCounter interface {
	Ticks() uint64
	Frequency() float64
}

// processStart anchors MonotonicTicks so values fit comfortably in the
// tickstamp field and stay comparable across every grabber in the process.
var processStart = time.Now()

// MonotonicTicks counts nanoseconds on the runtime monotonic clock since
// process start.
type MonotonicTicks struct{}

func (MonotonicTicks) Ticks() uint64 {
	return uint64(time.Since(processStart))
}

func (MonotonicTicks) Frequency() float64 { return float64(time.Second) }

// ManualTicks is a TickCounter driven by the test. Each call to Ticks
// returns the current value and then adds Step.
type ManualTicks struct {
	value atomic.Uint64
	step  atomic.Uint64
	freq  float64
}

// NewManualTicks returns a counter starting at start that advances by step
// on every read, reporting freq ticks per second.
func NewManualTicks(start, step uint64, freq float64) *ManualTicks {
	m := &ManualTicks{freq: freq}
	m.value.Store(start)
	m.step.Store(step)
	return m
}

func (m *ManualTicks) Ticks() uint64 {
	return m.value.Add(m.step.Load()) - m.step.Load()
}

func (m *ManualTicks) Frequency() float64 { return m.freq }

// Set overrides the next value returned by Ticks.
func (m *ManualTicks) Set(v uint64) { m.value.Store(v) }

// Seconds converts a tick delta into seconds for the given counter.
func Seconds(tc TickCounter, delta uint64) float64 {
	f := tc.Frequency()
	if f <= 0 {
		return 0
	}
	return float64(delta) / f
}
