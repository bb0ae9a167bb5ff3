package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bevandicjuraj/CamCorder/internal/capture"
	"github.com/bevandicjuraj/CamCorder/internal/config"
	"github.com/bevandicjuraj/CamCorder/internal/events"
	"github.com/bevandicjuraj/CamCorder/internal/kalman"
	"github.com/bevandicjuraj/CamCorder/internal/tracking"
	"github.com/bevandicjuraj/CamCorder/internal/vision"
)

const twoCameras = `{
  "frame_width": 48,
  "frame_height": 8,
  "poll_interval": "1ms",
  "queue_capacity": 4,
  "cameras": [
    {"source": "0", "led": {"x": 2, "y": 3},
     "nodes": [{"id": 1, "name": "A1", "x": 100, "y": 100}]},
    {"source": "/data/cam1.avi", "led": {"x": 5, "y": 1},
     "nodes": [{"id": 1, "name": "B1", "x": 10, "y": 10}, {"id": 2, "name": "B2", "x": 400, "y": 10}]}
  ]
}`

func loadTestConfig(t *testing.T, body string) *config.CamCorderConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camcorder.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	return cfg
}

// loopSource returns a frame every millisecond until closed.
type loopSource struct{ closed atomic.Bool }

func (s *loopSource) Read(dst []byte) bool {
	time.Sleep(time.Millisecond)
	return !s.closed.Load()
}

func (s *loopSource) FPS() float64 { return 0 }

func (s *loopSource) Close() error {
	s.closed.Store(true)
	return nil
}

// fixedDetector always sees one blob at (100, 100) and a lit LED.
type fixedDetector struct {
	mu     sync.Mutex
	params vision.Params
	probes []image.Point
	closed int
}

func (d *fixedDetector) Detect(_ []byte, probe image.Point) (vision.Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probes = append(d.probes, probe)
	return vision.Observation{
		Contours: []vision.Contour{{
			Points: []image.Point{{95, 95}, {95, 105}, {105, 105}, {105, 95}},
			Area:   100,
		}},
		Probe:   200,
		ProbeOK: true,
	}, nil
}

func (d *fixedDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

type detectorRecorder struct {
	mu   sync.Mutex
	made []*fixedDetector
}

func (r *detectorRecorder) factory(width, height int, params vision.Params) tracking.Detector {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := &fixedDetector{params: params}
	r.made = append(r.made, d)
	return d
}

func openLoop(capture.Handle, int, int, float64) (capture.Source, error) {
	return &loopSource{}, nil
}

func TestFromConfig(t *testing.T) {
	cfg := loadTestConfig(t, twoCameras)
	rec := &detectorRecorder{}

	r, err := FromConfig(cfg, openLoop, rec.factory)
	require.NoError(t, err)

	l := r.Buffer().Layout()
	assert.Equal(t, 2, l.Sources)
	assert.Equal(t, 48, l.Width)
	assert.Equal(t, 8, l.Height)
	assert.Equal(t, 1, l.MetadataRows)

	require.Len(t, r.Grabbers(), 2)
	require.Len(t, r.Trackers(), 2)
	for i, tr := range r.Trackers() {
		assert.Equal(t, i, tr.ID())
	}
	tr1 := r.Trackers()[1].(*tracking.Tracker)
	assert.Equal(t, 2, tr1.Registry().Len())

	require.Len(t, rec.made, 2)
	assert.Equal(t, vision.Params{ThreshMask: 100, ThreshDetect: 35}, rec.made[0].params)

	require.NoError(t, r.Close())
	for _, d := range rec.made {
		assert.Equal(t, 1, d.closed)
	}
	require.NoError(t, r.Close(), "second close is a no-op")
	assert.Equal(t, 1, rec.made[0].closed)
}

func TestTrackerConfig_ZeroProcessNoise(t *testing.T) {
	cfg := loadTestConfig(t, `{"process_noise": 0, "cameras": [{"source": "0", "led": {"x": 1, "y": 2}}]}`)

	tc := trackerConfig(cfg, 0, cfg.Cameras[0])
	assert.Equal(t, 0.0, tc.Kalman.ProcessNoise)
	assert.Equal(t, image.Pt(1, 2), tc.LED)

	kf := kalman.New(tc.Kalman)
	kf.Predict()
	assert.Equal(t, 1.0, kf.Covariance().At(2, 2))
}

func TestFromConfig_NoCameras(t *testing.T) {
	_, err := FromConfig(config.EmptyConfig(), openLoop, VisionDetectors)
	assert.Error(t, err)
}

func TestFromConfig_RecordsToStore(t *testing.T) {
	cfg := loadTestConfig(t, `{
  "frame_width": 48,
  "frame_height": 8,
  "poll_interval": "1ms",
  "cameras": [
    {"source": "0", "led": {"x": 2, "y": 3},
     "nodes": [{"id": 7, "name": "home", "x": 100, "y": 100}]}
  ]
}`)
	rec := &detectorRecorder{}
	r, err := FromConfig(cfg, openLoop, rec.factory)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	store, err := events.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	r.AddSink(store)

	cancel, done := runInBackground(t, r)
	ctx := context.Background()
	require.Eventually(t, func() bool {
		nodes, err := store.Count(ctx, events.KindNode)
		if err != nil || nodes != 1 {
			return false
		}
		leds, err := store.Count(ctx, events.KindLED)
		return err == nil && leds == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return r.Status().FramesWritten > 0 }, 5*time.Second, time.Millisecond)
	cancel()
	waitStopped(t, done)

	recent, err := store.Recent(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	var node events.Event
	for _, ev := range recent {
		if ev.Kind == events.KindNode {
			node = ev
		}
	}
	require.NotNil(t, node.NodeID)
	assert.Equal(t, 7, *node.NodeID)
	assert.Equal(t, "home", node.NodeName)

	rec.made[0].mu.Lock()
	assert.Equal(t, image.Pt(2, 3), rec.made[0].probes[0])
	rec.made[0].mu.Unlock()

	st := r.Status()
	require.Len(t, st.Grabbers, 1)
	assert.Equal(t, "stopped", st.Grabbers[0].State)
	assert.Positive(t, st.Grabbers[0].Frames)
}
