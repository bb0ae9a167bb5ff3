package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bevandicjuraj/CamCorder/internal/capture"
	"github.com/bevandicjuraj/CamCorder/internal/events"
	"github.com/bevandicjuraj/CamCorder/internal/framebuf"
	"github.com/bevandicjuraj/CamCorder/internal/tracking"
)

func testBuffer(t *testing.T, sources int) *framebuf.Buffer {
	t.Helper()
	buf, err := framebuf.Allocate(framebuf.Layout{Sources: sources, Width: 32, Height: 4, Channels: 3, MetadataRows: 1})
	require.NoError(t, err)
	return buf
}

// recordingSink keeps every published event.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}

// scriptedTracker returns script[index] for the frame index found in its
// slot and reports every processed index on processed. A non-nil err fails
// every call.
type scriptedTracker struct {
	id        int
	script    map[uint64]tracking.Result
	err       error
	calls     atomic.Int32
	processed chan uint64
}

func (s *scriptedTracker) ID() int { return s.id }

func (s *scriptedTracker) Track(buf *framebuf.Buffer) (tracking.Result, error) {
	s.calls.Add(1)
	if s.err != nil {
		return tracking.Result{}, s.err
	}
	md, err := buf.Metadata(s.id)
	if err != nil {
		return tracking.Result{}, err
	}
	res := s.script[md.Index]
	res.Camera = s.id
	res.Index = md.Index
	res.Tickstamp = md.Tickstamp
	if s.processed != nil {
		s.processed <- md.Index
	}
	return res, nil
}

func (s *scriptedTracker) Snapshot() tracking.Snapshot {
	return tracking.Snapshot{Camera: s.id, Frames: uint64(s.calls.Load())}
}

// steppedGrabber writes frames 0..n-1 into its slot, one per processed
// signal, then idles until cancelled.
type steppedGrabber struct {
	id        int
	n         int
	buf       *framebuf.Buffer
	processed <-chan uint64
}

func (g *steppedGrabber) ID() int { return g.id }

func (g *steppedGrabber) Run(ctx context.Context) error {
	img := make([]byte, g.buf.Layout().ImageBytes())
	for i := 0; i < g.n; i++ {
		if err := g.buf.WriteSlot(g.id, img, uint64(1000+i), uint64(i)); err != nil {
			return err
		}
		select {
		case <-g.processed:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func (g *steppedGrabber) Stats() capture.Stats { return capture.Stats{State: capture.StateRunning} }

func runInBackground(t *testing.T, r *Runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestEventsFor(t *testing.T) {
	nodeA := &tracking.Node{ID: 3, Name: "A"}
	id3 := 3

	tests := []struct {
		name    string
		res     tracking.Result
		prevLED bool
		want    []events.Event
	}{
		{
			name: "nothing changed",
			res:  tracking.Result{Camera: 1, Index: 5},
		},
		{
			name: "entered node",
			res:  tracking.Result{Camera: 1, Index: 5, Tickstamp: 9, NodeUpdated: true, Node: nodeA},
			want: []events.Event{{Camera: 1, Kind: events.KindNode, NodeID: &id3, NodeName: "A", FrameIndex: 5, Tickstamp: 9}},
		},
		{
			name: "left node",
			res:  tracking.Result{Camera: 0, Index: 6, NodeUpdated: true},
			want: []events.Event{{Camera: 0, Kind: events.KindNode, FrameIndex: 6}},
		},
		{
			name: "led on",
			res:  tracking.Result{Index: 7, LED: true},
			want: []events.Event{{Kind: events.KindLED, LED: true, FrameIndex: 7}},
		},
		{
			name:    "led stays on",
			res:     tracking.Result{Index: 8, LED: true},
			prevLED: true,
		},
		{
			name:    "led off with node change",
			res:     tracking.Result{Index: 9, NodeUpdated: true, Node: nodeA},
			prevLED: true,
			want: []events.Event{
				{Kind: events.KindNode, NodeID: &id3, NodeName: "A", FrameIndex: 9},
				{Kind: events.KindLED, LED: false, FrameIndex: 9},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventsFor(tt.res, tt.prevLED)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("eventsFor() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunner_PublishesTransitionsToEverySink(t *testing.T) {
	buf := testBuffer(t, 1)
	processed := make(chan uint64)
	nodeA := &tracking.Node{ID: 1, Name: "A"}
	tr := &scriptedTracker{
		id: 0,
		script: map[uint64]tracking.Result{
			0: {NodeUpdated: true, Node: nodeA},
			1: {LED: true},
			2: {LED: true, NodeUpdated: true},
			3: {},
		},
		processed: processed,
	}

	r := NewRunner(buf, nil, time.Millisecond)
	r.AddTracker(tr)
	r.AddGrabber(&steppedGrabber{id: 0, n: 4, buf: buf, processed: processed})
	good := &recordingSink{}
	failing := &recordingSink{err: errors.New("port gone")}
	r.AddSink(failing)
	r.AddSink(good)

	cancel, done := runInBackground(t, r)
	require.Eventually(t, func() bool { return len(good.Events()) == 4 }, 5*time.Second, time.Millisecond)
	cancel()
	waitStopped(t, done)

	got := good.Events()
	assert.Equal(t, events.KindNode, got[0].Kind)
	assert.Equal(t, "A", got[0].NodeName)
	assert.Equal(t, uint64(1000), got[0].Tickstamp)
	assert.Equal(t, events.KindLED, got[1].Kind)
	assert.True(t, got[1].LED)
	assert.Equal(t, events.KindNode, got[2].Kind)
	assert.Nil(t, got[2].NodeID)
	assert.Equal(t, events.KindLED, got[3].Kind)
	assert.False(t, got[3].LED)
	assert.Equal(t, uint64(3), got[3].FrameIndex)

	assert.Len(t, failing.Events(), 4, "a failing sink still sees every event")
	st := r.Status()
	assert.Equal(t, uint64(4), st.Events)
	assert.Equal(t, uint64(4), st.SinkErrors)
	require.Len(t, st.Trackers, 1)
	assert.Equal(t, uint64(3), st.Trackers[0].LastIndex)
}

func TestRunner_TracksOnlyNewFrames(t *testing.T) {
	buf := testBuffer(t, 1)
	tr := &scriptedTracker{id: 0}
	r := NewRunner(buf, nil, time.Millisecond)
	r.AddTracker(tr)

	cancel, done := runInBackground(t, r)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), tr.calls.Load(), "empty slot must not be tracked")

	img := make([]byte, buf.Layout().ImageBytes())
	require.NoError(t, buf.WriteSlot(0, img, 77, 0))
	require.Eventually(t, func() bool { return tr.calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), tr.calls.Load(), "same index must not be tracked twice")

	require.NoError(t, buf.WriteSlot(0, img, 78, 1))
	require.Eventually(t, func() bool { return tr.calls.Load() == 2 }, 5*time.Second, time.Millisecond)

	cancel()
	waitStopped(t, done)
}

func TestRunner_FailedFrameIsNotRetried(t *testing.T) {
	buf := testBuffer(t, 1)
	tr := &scriptedTracker{id: 0, err: errors.New("detector closed")}
	r := NewRunner(buf, nil, time.Millisecond)
	r.AddTracker(tr)

	cancel, done := runInBackground(t, r)
	img := make([]byte, buf.Layout().ImageBytes())
	require.NoError(t, buf.WriteSlot(0, img, 77, 0))
	require.Eventually(t, func() bool { return tr.calls.Load() == 1 }, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), tr.calls.Load(), "failed frame must not be tracked again")

	require.NoError(t, buf.WriteSlot(0, img, 78, 1))
	require.Eventually(t, func() bool { return tr.calls.Load() == 2 }, 5*time.Second, time.Millisecond)

	cancel()
	waitStopped(t, done)
	assert.Zero(t, r.Status().Events, "failed frames publish nothing")
}

// flakyWriter fails every frame whose index is in fail.
type flakyWriter struct {
	mu     sync.Mutex
	fail   map[uint64]bool
	frames []uint64
}

func (w *flakyWriter) WriteFrame(f *capture.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail[f.Index] {
		return errors.New("disk full")
	}
	w.frames = append(w.frames, f.Index)
	return nil
}

func TestRunner_DrainsWriterQueue(t *testing.T) {
	buf := testBuffer(t, 1)
	queue := make(chan *capture.Frame, 4)
	for i := uint64(0); i < 3; i++ {
		queue <- &capture.Frame{Index: i}
	}

	r := NewRunner(buf, queue, time.Millisecond)
	r.AddTracker(&scriptedTracker{id: 0})
	w := &flakyWriter{fail: map[uint64]bool{1: true}}
	r.SetWriter(w)

	cancel, done := runInBackground(t, r)
	require.Eventually(t, func() bool {
		st := r.Status()
		return st.FramesWritten == 2 && st.WriteErrors == 1
	}, 5*time.Second, time.Millisecond)
	cancel()
	waitStopped(t, done)

	assert.Equal(t, []uint64{0, 2}, w.frames)
}

func TestRunner_OpenFailureStopsOnlyThatGrabber(t *testing.T) {
	buf := testBuffer(t, 2)
	failOpen := func(capture.Handle, int, int, float64) (capture.Source, error) {
		return nil, errors.New("no such device")
	}
	g, err := capture.New(capture.Config{ID: 1, Handle: capture.DeviceHandle(9), Width: 32, Height: 4, FPS: 30}, failOpen, buf, nil)
	require.NoError(t, err)

	processed := make(chan uint64)
	r := NewRunner(buf, nil, time.Millisecond)
	r.AddGrabber(g)
	r.AddGrabber(&steppedGrabber{id: 0, n: 2, buf: buf, processed: processed})
	r.AddTracker(&scriptedTracker{id: 0, processed: processed})

	cancel, done := runInBackground(t, r)
	require.Eventually(t, func() bool { return g.State() == capture.StateStopped }, 5*time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		st := r.Status()
		return len(st.Trackers) == 1 && st.Trackers[0].LastIndex == 1
	}, 5*time.Second, time.Millisecond)
	cancel()
	waitStopped(t, done)

	st := r.Status()
	require.Len(t, st.Grabbers, 2)
	assert.Equal(t, 0, st.Grabbers[0].Camera)
	assert.Equal(t, "stopped", st.Grabbers[1].State)
}

func TestRunner_AllGrabbersFailedStopsRun(t *testing.T) {
	buf := testBuffer(t, 2)
	failOpen := func(capture.Handle, int, int, float64) (capture.Source, error) {
		return nil, errors.New("no such device")
	}
	r := NewRunner(buf, nil, time.Millisecond)
	for id := 0; id < 2; id++ {
		g, err := capture.New(capture.Config{ID: id, Handle: capture.DeviceHandle(id), Width: 32, Height: 4, FPS: 30}, failOpen, buf, nil)
		require.NoError(t, err)
		r.AddGrabber(g)
		r.AddTracker(&scriptedTracker{id: id})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, ErrNoGrabbers)
	assert.ErrorIs(t, err, capture.ErrOpen)
	assert.NoError(t, ctx.Err(), "run must stop before the deadline")
}

func TestRunner_NothingToRun(t *testing.T) {
	r := NewRunner(testBuffer(t, 1), nil, 0)
	assert.Error(t, r.Run(context.Background()))
}

func TestRunner_BadSlotStopsRun(t *testing.T) {
	buf := testBuffer(t, 1)
	r := NewRunner(buf, nil, time.Millisecond)
	r.AddTracker(&scriptedTracker{id: 0})
	r.AddTracker(&scriptedTracker{id: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, framebuf.ErrSlotOutOfRange)
	assert.NoError(t, ctx.Err(), "run must stop before the deadline")
}
