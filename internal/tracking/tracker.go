package tracking

import (
	"fmt"
	"image"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/bevandicjuraj/CamCorder/internal/framebuf"
	"github.com/bevandicjuraj/CamCorder/internal/kalman"
	"github.com/bevandicjuraj/CamCorder/internal/monitoring"
	"github.com/bevandicjuraj/CamCorder/internal/timeutil"
	"github.com/bevandicjuraj/CamCorder/internal/vision"
)

// timingWindow is the number of per-frame processing times kept for stats.
const timingWindow = 100

// Detector is the image stage. *vision.Detector satisfies it.
type Detector interface {
	Detect(img []byte, probe image.Point) (vision.Observation, error)
}

// Config holds the per-camera tracker parameters.
type Config struct {
	ID          int         // camera id, also the frame buffer slot
	ThreshLED   int         // gray level above which the LED reads as on
	MinArea     float64     // contours must be strictly larger
	NodeRadius  float64     // node match distance, exclusive
	TrailLength int         // capacity of the raw and filtered trails
	LED         image.Point // LED probe pixel
	Nodes       []Node
	Kalman      kalman.Config
}

// DefaultConfig returns the standard parameters for camera id with no
// nodes configured.
func DefaultConfig(id int) Config {
	return Config{
		ID:          id,
		ThreshLED:   70,
		MinArea:     50,
		NodeRadius:  100,
		TrailLength: 512,
		Kalman:      kalman.DefaultConfig(),
	}
}

// Result is the outcome of one Track call.
type Result struct {
	Camera    int
	Index     uint64
	Tickstamp uint64

	// Detected is false when no contour passed the area filter.
	Detected bool
	Centroid image.Point
	Filtered image.Point

	LED bool

	// NodeUpdated is true when the matched node changed on this frame.
	// Node is the new node, or nil when the subject left every node.
	NodeUpdated bool
	Node        *Node

	Elapsed time.Duration
}

// Snapshot is a consistent copy of the tracker state for monitoring.
type Snapshot struct {
	Camera    int
	Frames    uint64
	LED       bool
	LastNode  *Node
	Raw       []TrailPoint
	Filtered  []TrailPoint
	MeanTrack time.Duration
	MaxTrack  time.Duration
}

// Tracker holds the per-camera tracking state. Track must be called from a
// single goroutine; Snapshot may be called concurrently.
type Tracker struct {
	cfg      Config
	detector Detector
	registry *Registry
	kf       *kalman.Filter
	clock    timeutil.Clock
	img      []byte // slot copy, reused across frames

	mu       sync.Mutex
	raw      *Trail
	filtered *Trail
	lastNode *Node
	led      bool
	frames   uint64
	timings  []float64 // seconds, ring of timingWindow
	timingAt int
}

// New returns a tracker for cfg.ID using det as its image stage.
func New(cfg Config, det Detector) (*Tracker, error) {
	if det == nil {
		return nil, fmt.Errorf("tracker %d: nil detector", cfg.ID)
	}
	if cfg.ID < 0 {
		return nil, fmt.Errorf("tracker %d: negative camera id", cfg.ID)
	}
	if cfg.TrailLength < 1 {
		return nil, fmt.Errorf("tracker %d: trail length must be positive, got %d", cfg.ID, cfg.TrailLength)
	}
	return &Tracker{
		cfg:      cfg,
		detector: det,
		registry: NewRegistry(cfg.Nodes),
		kf:       kalman.New(cfg.Kalman),
		clock:    timeutil.RealClock{},
		raw:      NewTrail(cfg.TrailLength),
		filtered: NewTrail(cfg.TrailLength),
		timings:  make([]float64, 0, timingWindow),
	}, nil
}

// SetClock replaces the clock used to time Track calls.
func (t *Tracker) SetClock(c timeutil.Clock) { t.clock = c }

// ID returns the camera id.
func (t *Tracker) ID() int { return t.cfg.ID }

// Registry returns the camera's nodes.
func (t *Tracker) Registry() *Registry { return t.registry }

// Track processes the current contents of the camera's slot.
func (t *Tracker) Track(buf *framebuf.Buffer) (Result, error) {
	start := t.clock.Now()
	res := Result{Camera: t.cfg.ID}

	if n := buf.Layout().ImageBytes(); len(t.img) != n {
		t.img = make([]byte, n)
	}
	md, err := buf.ReadSlot(t.cfg.ID, t.img)
	if err != nil {
		return res, fmt.Errorf("tracker %d: %w", t.cfg.ID, err)
	}
	res.Index, res.Tickstamp = md.Index, md.Tickstamp

	obs, err := t.detector.Detect(t.img, t.cfg.LED)
	if err != nil {
		return res, fmt.Errorf("tracker %d: detect frame %d: %w", t.cfg.ID, md.Index, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if i := vision.Largest(obs.Contours, t.cfg.MinArea); i >= 0 {
		res.Centroid, res.Detected = vision.Centroid(obs.Contours[i].Points)
	}

	if res.Detected {
		t.raw.Push(TrailPoint{Point: res.Centroid, OK: true})
		t.kf.Correct(float64(res.Centroid.X), float64(res.Centroid.Y))
		t.matchNode(&res)
	} else {
		t.raw.Push(TrailPoint{})
	}

	fx, fy := t.kf.Predict()
	res.Filtered = image.Pt(int(fx), int(fy))
	t.filtered.Push(TrailPoint{Point: res.Filtered, OK: true})

	res.LED = obs.ProbeOK && int(obs.Probe) > t.cfg.ThreshLED
	t.led = res.LED
	t.frames++

	res.Elapsed = t.clock.Since(start)
	t.recordTiming(res.Elapsed)
	return res, nil
}

// matchNode compares the closest node with the last one and records a
// transition. Caller holds t.mu.
func (t *Tracker) matchNode(res *Result) {
	node, ok := t.registry.Match(res.Centroid, t.cfg.NodeRadius)
	var current *Node
	if ok {
		current = &node
	}
	if sameNode(t.lastNode, current) {
		return
	}
	t.lastNode = current
	res.NodeUpdated = true
	if current != nil {
		n := *current
		res.Node = &n
		monitoring.Logf("tracker %d: node %d (%s) frame %d", t.cfg.ID, n.ID, n.Name, res.Index)
	} else {
		monitoring.Logf("tracker %d: left node frame %d", t.cfg.ID, res.Index)
	}
}

func sameNode(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

func (t *Tracker) recordTiming(d time.Duration) {
	if len(t.timings) < timingWindow {
		t.timings = append(t.timings, d.Seconds())
		return
	}
	t.timings[t.timingAt] = d.Seconds()
	t.timingAt = (t.timingAt + 1) % timingWindow
}

// Snapshot returns a copy of the tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Camera:   t.cfg.ID,
		Frames:   t.frames,
		LED:      t.led,
		Raw:      t.raw.Snapshot(),
		Filtered: t.filtered.Snapshot(),
	}
	if t.lastNode != nil {
		n := *t.lastNode
		s.LastNode = &n
	}
	if len(t.timings) > 0 {
		s.MeanTrack = time.Duration(stat.Mean(t.timings, nil) * float64(time.Second))
		longest := t.timings[0]
		for _, v := range t.timings[1:] {
			if v > longest {
				longest = v
			}
		}
		s.MaxTrack = time.Duration(longest * float64(time.Second))
	}
	return s
}
