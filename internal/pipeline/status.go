package pipeline

import (
	"sort"
	"time"

	"github.com/bevandicjuraj/CamCorder/internal/capture"
	"github.com/bevandicjuraj/CamCorder/internal/tracking"
)

// GrabberStatus is the monitoring view of one grabber.
type GrabberStatus struct {
	Camera       int     `json:"camera"`
	State        string  `json:"state"`
	Frames       uint64  `json:"frames"`
	Dropped      uint64  `json:"dropped"`
	ReadFailures uint64  `json:"read_failures"`
	AvgFPS       float64 `json:"avg_fps"`
}

// TrackerStatus is the monitoring view of one tracker.
type TrackerStatus struct {
	Camera      int            `json:"camera"`
	Frames      uint64         `json:"frames"`
	LastIndex   uint64         `json:"last_index"`
	LED         bool           `json:"led"`
	Node        *tracking.Node `json:"node,omitempty"`
	Detected    bool           `json:"detected"`
	MeanTrackMS float64        `json:"mean_track_ms"`
	MaxTrackMS  float64        `json:"max_track_ms"`
}

// Status is a point-in-time summary of the runner.
type Status struct {
	Grabbers      []GrabberStatus `json:"grabbers"`
	Trackers      []TrackerStatus `json:"trackers"`
	FramesWritten uint64          `json:"frames_written"`
	WriteErrors   uint64          `json:"write_errors"`
	Events        uint64          `json:"events"`
	SinkErrors    uint64          `json:"sink_errors"`
}

func durationMS(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Status collects grabber and tracker counters.
func (r *Runner) Status() Status {
	st := Status{
		FramesWritten: r.written.Load(),
		WriteErrors:   r.writeErrors.Load(),
		Events:        r.published.Load(),
		SinkErrors:    r.sinkErrors.Load(),
	}
	for _, g := range r.grabbers {
		s := g.Stats()
		st.Grabbers = append(st.Grabbers, grabberStatus(g.ID(), s))
	}

	r.mu.Lock()
	last := make(map[int]tracking.Result, len(r.last))
	for k, v := range r.last {
		last[k] = v
	}
	r.mu.Unlock()

	for _, t := range r.trackers {
		snap := t.Snapshot()
		ts := TrackerStatus{
			Camera:      snap.Camera,
			Frames:      snap.Frames,
			LED:         snap.LED,
			Node:        snap.LastNode,
			MeanTrackMS: durationMS(snap.MeanTrack),
			MaxTrackMS:  durationMS(snap.MaxTrack),
		}
		if res, ok := last[t.ID()]; ok {
			ts.LastIndex = res.Index
			ts.Detected = res.Detected
		}
		st.Trackers = append(st.Trackers, ts)
	}
	sort.Slice(st.Grabbers, func(i, j int) bool { return st.Grabbers[i].Camera < st.Grabbers[j].Camera })
	sort.Slice(st.Trackers, func(i, j int) bool { return st.Trackers[i].Camera < st.Trackers[j].Camera })
	return st
}

func grabberStatus(id int, s capture.Stats) GrabberStatus {
	return GrabberStatus{
		Camera:       id,
		State:        s.State.String(),
		Frames:       s.Frames,
		Dropped:      s.Dropped,
		ReadFailures: s.ReadFailures,
		AvgFPS:       s.AvgFPS,
	}
}

// Snapshot returns the tracker snapshot for camera, if any.
func (r *Runner) Snapshot(camera int) (tracking.Snapshot, bool) {
	for _, t := range r.trackers {
		if t.ID() == camera {
			return t.Snapshot(), true
		}
	}
	return tracking.Snapshot{}, false
}

// Nodes returns the configured nodes of camera, or nil when its tracker
// does not expose a registry.
func (r *Runner) Nodes(camera int) []tracking.Node {
	for _, t := range r.trackers {
		if t.ID() != camera {
			continue
		}
		if rt, ok := t.(interface{ Registry() *tracking.Registry }); ok {
			return rt.Registry().Nodes()
		}
	}
	return nil
}
