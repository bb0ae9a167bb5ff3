// Package capture runs one grabber per video source. A grabber reads
// frames, stamps them with an index and a monotonic tickstamp, offers them
// to the writer queue and publishes them into its slot of the shared frame
// buffer.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/bevandicjuraj/CamCorder/internal/framebuf"
	"github.com/bevandicjuraj/CamCorder/internal/monitoring"
	"github.com/bevandicjuraj/CamCorder/internal/timeutil"
)

// ErrOpen is wrapped into the error Run returns when the source cannot be
// opened.
var ErrOpen = errors.New("cannot open capture source")

// State is the grabber lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config holds the per-grabber parameters.
type Config struct {
	ID              int // slot in the frame buffer
	Handle          Handle
	Width           int
	Height          int
	FPS             float64 // requested rate; fallback for file pacing
	PlaybackSpeedup float64
	LogWindow       int           // frames per fps log line
	QueueTimeout    time.Duration // max wait for the writer queue
}

// Stats are the grabber counters.
type Stats struct {
	Frames       uint64
	Dropped      uint64
	ReadFailures uint64
	AvgFPS       float64
	State        State
}

// Grabber moves frames from one Source to the writer queue and the shared
// frame buffer.
type Grabber struct {
	cfg   Config
	open  Opener
	buf   *framebuf.Buffer
	out   chan<- *Frame
	clock timeutil.Clock
	ticks timeutil.TickCounter

	state        atomic.Int32
	frames       atomic.Uint64
	dropped      atomic.Uint64
	readFailures atomic.Uint64

	mu       sync.Mutex
	loopTime []float64 // seconds, last LogWindow iterations
	loopAt   int
	avgFPS   float64
}

// New returns a grabber writing into slot cfg.ID of buf. out may be nil
// when no writer is attached.
func New(cfg Config, open Opener, buf *framebuf.Buffer, out chan<- *Frame) (*Grabber, error) {
	if open == nil {
		return nil, fmt.Errorf("grabber %d: nil opener", cfg.ID)
	}
	if buf == nil {
		return nil, fmt.Errorf("grabber %d: nil frame buffer", cfg.ID)
	}
	l := buf.Layout()
	if cfg.ID < 0 || cfg.ID >= l.Sources {
		return nil, fmt.Errorf("grabber %d: %w", cfg.ID, framebuf.ErrSlotOutOfRange)
	}
	if cfg.Width != l.Width || cfg.Height != l.Height {
		return nil, fmt.Errorf("grabber %d: frame %dx%d does not match buffer %dx%d",
			cfg.ID, cfg.Width, cfg.Height, l.Width, l.Height)
	}
	if cfg.PlaybackSpeedup <= 0 {
		cfg.PlaybackSpeedup = 1
	}
	if cfg.LogWindow < 1 {
		cfg.LogWindow = 500
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = 500 * time.Millisecond
	}
	return &Grabber{
		cfg:      cfg,
		open:     open,
		buf:      buf,
		out:      out,
		clock:    timeutil.RealClock{},
		ticks:    timeutil.MonotonicTicks{},
		loopTime: make([]float64, 0, cfg.LogWindow),
	}, nil
}

// SetClock replaces the clock used for pacing and queue timeouts.
func (g *Grabber) SetClock(c timeutil.Clock) { g.clock = c }

// SetTickCounter replaces the counter used for frame tickstamps.
func (g *Grabber) SetTickCounter(tc timeutil.TickCounter) { g.ticks = tc }

func (g *Grabber) ID() int { return g.cfg.ID }

func (g *Grabber) State() State { return State(g.state.Load()) }

// Stats returns a snapshot of the counters.
func (g *Grabber) Stats() Stats {
	g.mu.Lock()
	fps := g.avgFPS
	g.mu.Unlock()
	return Stats{
		Frames:       g.frames.Load(),
		Dropped:      g.dropped.Load(),
		ReadFailures: g.readFailures.Load(),
		AvgFPS:       fps,
		State:        g.State(),
	}
}

// Run opens the source and captures until ctx is cancelled. It returns nil
// on cancellation and a wrapped ErrOpen if the source cannot be opened.
// Failed reads are skipped without backoff.
func (g *Grabber) Run(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return fmt.Errorf("grabber %d: already %s", g.cfg.ID, g.State())
	}
	defer g.state.Store(int32(StateStopped))

	src, err := g.open(g.cfg.Handle, g.cfg.Width, g.cfg.Height, g.cfg.FPS)
	if err != nil {
		return fmt.Errorf("grabber %d: %w %s: %w", g.cfg.ID, ErrOpen, g.cfg.Handle, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			monitoring.Logf("grabber %d: close %s: %v", g.cfg.ID, g.cfg.Handle, err)
		}
	}()
	monitoring.Logf("grabber %d: capturing from %s at %dx%d", g.cfg.ID, g.cfg.Handle, g.cfg.Width, g.cfg.Height)

	pace := g.pacing(src)
	var index uint64
	imageBytes := g.buf.Layout().ImageBytes()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("grabber %d: stopped after %d frames (%d dropped)",
				g.cfg.ID, g.frames.Load(), g.dropped.Load())
			return nil
		default:
		}

		t0 := g.clock.Now()
		img := make([]byte, imageBytes)
		if !src.Read(img) {
			g.readFailures.Add(1)
			continue
		}

		f := &Frame{
			Index:     index,
			Tickstamp: g.ticks.Ticks(),
			Timestamp: g.clock.Now(),
			Camera:    g.cfg.ID,
			Source:    g.cfg.Handle.String(),
			Width:     g.cfg.Width,
			Height:    g.cfg.Height,
			Image:     img,
		}
		index++

		if err := g.relay(ctx, f); err != nil {
			return err
		}
		g.frames.Add(1)

		if pace > 0 {
			g.clock.Sleep(pace)
		}
		g.recordLoop(g.clock.Since(t0), f.Index)
	}
}

// pacing returns the sleep between frames for file sources.
func (g *Grabber) pacing(src Source) time.Duration {
	if !g.cfg.Handle.IsFile() {
		return 0
	}
	fps := src.FPS()
	if fps <= 0 {
		fps = g.cfg.FPS
	}
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps / g.cfg.PlaybackSpeedup)
}

// relay offers f to the writer queue, waiting at most QueueTimeout, then
// publishes it into the grabber's slot. A frame that does not fit in the
// queue is dropped for the writer only.
func (g *Grabber) relay(ctx context.Context, f *Frame) error {
	if g.out != nil {
		select {
		case g.out <- f:
		default:
			g.enqueueWithTimeout(ctx, f)
		}
	}
	if err := g.buf.WriteSlot(g.cfg.ID, f.Image, f.Tickstamp, f.Index); err != nil {
		return fmt.Errorf("grabber %d: publish frame %d: %w", g.cfg.ID, f.Index, err)
	}
	return nil
}

func (g *Grabber) enqueueWithTimeout(ctx context.Context, f *Frame) {
	timer := g.clock.NewTimer(g.cfg.QueueTimeout)
	defer timer.Stop()
	select {
	case g.out <- f:
	case <-timer.C():
		g.dropped.Add(1)
		monitoring.Debugf("grabber %d: dropped frame %d, writer queue full", g.cfg.ID, f.Index)
	case <-ctx.Done():
	}
}

func (g *Grabber) recordLoop(d time.Duration, index uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.loopTime) < g.cfg.LogWindow {
		g.loopTime = append(g.loopTime, d.Seconds())
	} else {
		g.loopTime[g.loopAt] = d.Seconds()
		g.loopAt = (g.loopAt + 1) % g.cfg.LogWindow
	}

	if (index+1)%uint64(g.cfg.LogWindow) != 0 {
		return
	}
	if mean := stat.Mean(g.loopTime, nil); mean > 0 {
		g.avgFPS = 1 / mean
	}
	monitoring.Logf("grabber %d: %.1f fps over %d frames", g.cfg.ID, g.avgFPS, len(g.loopTime))
}
