package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bevandicjuraj/CamCorder/internal/capture"
	"github.com/bevandicjuraj/CamCorder/internal/events"
	"github.com/bevandicjuraj/CamCorder/internal/framebuf"
	"github.com/bevandicjuraj/CamCorder/internal/monitoring"
	"github.com/bevandicjuraj/CamCorder/internal/timeutil"
	"github.com/bevandicjuraj/CamCorder/internal/tracking"
)

// ErrNoGrabbers is returned by Run when every grabber failed.
var ErrNoGrabbers = errors.New("pipeline: every grabber failed")

// EventSink receives tracker events. *events.Store and *serialout.Notifier
// satisfy it.
type EventSink interface {
	Publish(ctx context.Context, ev events.Event) error
}

// FrameWriter consumes frames from the writer queue.
type FrameWriter interface {
	WriteFrame(f *capture.Frame) error
}

// Grabber is the part of *capture.Grabber the runner drives.
type Grabber interface {
	ID() int
	Run(ctx context.Context) error
	Stats() capture.Stats
}

// Tracker is the part of *tracking.Tracker the runner drives.
type Tracker interface {
	ID() int
	Track(buf *framebuf.Buffer) (tracking.Result, error)
	Snapshot() tracking.Snapshot
}

// Runner owns the goroutines of one pipeline run.
type Runner struct {
	buf   *framebuf.Buffer
	queue <-chan *capture.Frame
	poll  time.Duration
	clock timeutil.Clock

	grabbers []Grabber
	trackers []Tracker
	sinks    []EventSink
	writer   FrameWriter
	closers  []io.Closer

	written     atomic.Uint64
	writeErrors atomic.Uint64
	published   atomic.Uint64
	sinkErrors  atomic.Uint64

	mu   sync.Mutex
	last map[int]tracking.Result
}

// NewRunner returns a runner over buf. queue may be nil when no grabber
// feeds a writer.
func NewRunner(buf *framebuf.Buffer, queue <-chan *capture.Frame, poll time.Duration) *Runner {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	return &Runner{
		buf:   buf,
		queue: queue,
		poll:  poll,
		clock: timeutil.RealClock{},
		last:  make(map[int]tracking.Result),
	}
}

func (r *Runner) SetClock(c timeutil.Clock) { r.clock = c }
func (r *Runner) SetWriter(w FrameWriter) { r.writer = w }
func (r *Runner) AddGrabber(g Grabber) { r.grabbers = append(r.grabbers, g) }
func (r *Runner) AddTracker(t Tracker) { r.trackers = append(r.trackers, t) }
func (r *Runner) AddSink(s EventSink) { r.sinks = append(r.sinks, s) }
func (r *Runner) Buffer() *framebuf.Buffer { return r.buf }
func (r *Runner) Grabbers() []Grabber { return r.grabbers }
func (r *Runner) Trackers() []Tracker { return r.trackers }

// Run starts every component and blocks until ctx is cancelled. A grabber
// that fails is logged and stops on its own while the rest keep running.
// Once every grabber has failed, Run stops and returns ErrNoGrabbers
// joined with their errors. A tracker that cannot read its slot stops the
// whole run.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.grabbers) == 0 && len(r.trackers) == 0 {
		return errors.New("pipeline: nothing to run")
	}

	g, ctx := errgroup.WithContext(ctx)
	var (
		failMu sync.Mutex
		failed []error
	)
	for _, gr := range r.grabbers {
		g.Go(func() error {
			err := gr.Run(ctx)
			if err == nil {
				return nil
			}
			monitoring.Logf("pipeline: %v", err)

			failMu.Lock()
			defer failMu.Unlock()
			failed = append(failed, err)
			if len(failed) == len(r.grabbers) {
				return errors.Join(append([]error{ErrNoGrabbers}, failed...)...)
			}
			return nil
		})
	}
	for _, tr := range r.trackers {
		g.Go(func() error { return r.trackLoop(ctx, tr) })
	}
	if r.queue != nil {
		g.Go(func() error { return r.drain(ctx) })
	}
	return g.Wait()
}

func (r *Runner) trackLoop(ctx context.Context, tr Tracker) error {
	var (
		lastIndex uint64
		seen      bool
		led       bool
	)
	timer := r.clock.NewTimer(r.poll)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C():
		}
		timer.Reset(r.poll)

		md, err := r.buf.Metadata(tr.ID())
		if err != nil {
			return fmt.Errorf("pipeline: tracker %d: %w", tr.ID(), err)
		}
		// Tickstamp zero means the grabber has not published yet.
		if md.Tickstamp == 0 || (seen && md.Index == lastIndex) {
			continue
		}

		// A frame is attempted once whether or not Track succeeds.
		lastIndex, seen = md.Index, true
		res, err := tr.Track(r.buf)
		if err != nil {
			monitoring.Logf("pipeline: tracker %d frame %d: %v", tr.ID(), md.Index, err)
			continue
		}
		lastIndex = res.Index

		r.mu.Lock()
		r.last[tr.ID()] = res
		r.mu.Unlock()

		for _, ev := range eventsFor(res, led) {
			r.publish(ctx, ev)
		}
		led = res.LED
	}
}

// eventsFor returns the events a result produces given the previous LED
// state.
func eventsFor(res tracking.Result, prevLED bool) []events.Event {
	var out []events.Event
	if res.NodeUpdated {
		ev := events.Event{
			Camera:     res.Camera,
			Kind:       events.KindNode,
			FrameIndex: res.Index,
			Tickstamp:  res.Tickstamp,
		}
		if res.Node != nil {
			id := res.Node.ID
			ev.NodeID = &id
			ev.NodeName = res.Node.Name
		}
		out = append(out, ev)
	}
	if res.LED != prevLED {
		out = append(out, events.Event{
			Camera:     res.Camera,
			Kind:       events.KindLED,
			LED:        res.LED,
			FrameIndex: res.Index,
			Tickstamp:  res.Tickstamp,
		})
	}
	return out
}

func (r *Runner) publish(ctx context.Context, ev events.Event) {
	r.published.Add(1)
	for _, s := range r.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			r.sinkErrors.Add(1)
			monitoring.Logf("pipeline: publish %s: %v", ev, err)
		}
	}
}

func (r *Runner) drain(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-r.queue:
			if f == nil {
				continue
			}
			if r.writer != nil {
				if err := r.writer.WriteFrame(f); err != nil {
					r.writeErrors.Add(1)
					monitoring.Logf("pipeline: write frame %d from camera %d: %v", f.Index, f.Camera, err)
					continue
				}
			}
			r.written.Add(1)
		}
	}
}
