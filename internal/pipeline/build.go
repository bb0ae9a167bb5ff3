package pipeline

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/bevandicjuraj/CamCorder/internal/capture"
	"github.com/bevandicjuraj/CamCorder/internal/config"
	"github.com/bevandicjuraj/CamCorder/internal/framebuf"
	"github.com/bevandicjuraj/CamCorder/internal/kalman"
	"github.com/bevandicjuraj/CamCorder/internal/tracking"
	"github.com/bevandicjuraj/CamCorder/internal/vision"
)

// DetectorFactory builds the image stage for one camera. A detector that
// implements io.Closer is closed by Runner.Close.
type DetectorFactory func(width, height int, params vision.Params) tracking.Detector

// VisionDetectors is the production DetectorFactory.
func VisionDetectors(width, height int, params vision.Params) tracking.Detector {
	return vision.NewDetector(width, height, params)
}

// LayoutFor returns the frame buffer geometry for cfg.
func LayoutFor(cfg *config.CamCorderConfig) framebuf.Layout {
	return framebuf.Layout{
		Sources:      len(cfg.Cameras),
		Width:        cfg.GetFrameWidth(),
		Height:       cfg.GetFrameHeight(),
		Channels:     framebuf.Channels,
		MetadataRows: cfg.GetMetadataRows(),
	}
}

// FromConfig allocates the frame buffer and builds one grabber and one
// tracker per configured camera. Camera i uses slot i.
func FromConfig(cfg *config.CamCorderConfig, open capture.Opener, detectors DetectorFactory) (*Runner, error) {
	if len(cfg.Cameras) == 0 {
		return nil, errors.New("pipeline: no cameras configured")
	}
	buf, err := framebuf.Allocate(LayoutFor(cfg))
	if err != nil {
		return nil, err
	}

	queue := make(chan *capture.Frame, cfg.GetQueueCapacity())
	r := NewRunner(buf, queue, cfg.GetPollInterval())

	params := vision.Params{ThreshMask: cfg.GetThreshMask(), ThreshDetect: cfg.GetThreshDetect()}
	for i, cam := range cfg.Cameras {
		g, err := capture.New(capture.Config{
			ID:              i,
			Handle:          capture.ParseHandle(cam.Source),
			Width:           cfg.GetFrameWidth(),
			Height:          cfg.GetFrameHeight(),
			FPS:             cfg.GetFrameRate(),
			PlaybackSpeedup: cfg.GetPlaybackSpeedup(),
			LogWindow:       cfg.GetLogWindow(),
			QueueTimeout:    cfg.GetQueueTimeout(),
		}, open, buf, queue)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("camera %d: %w", i, err)
		}
		r.AddGrabber(g)

		det := detectors(cfg.GetFrameWidth(), cfg.GetFrameHeight(), params)
		if c, ok := det.(io.Closer); ok {
			r.closers = append(r.closers, c)
		}

		tr, err := tracking.New(trackerConfig(cfg, i, cam), det)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("camera %d: %w", i, err)
		}
		r.AddTracker(tr)
	}
	return r, nil
}

func trackerConfig(cfg *config.CamCorderConfig, id int, cam config.CameraConfig) tracking.Config {
	tc := tracking.Config{
		ID:          id,
		ThreshLED:   cfg.GetThreshLED(),
		MinArea:     cfg.GetMinArea(),
		NodeRadius:  cfg.GetNodeRadius(),
		TrailLength: cfg.GetTrailLength(),
		LED:         image.Pt(cam.LED.X, cam.LED.Y),
		Kalman: kalman.Config{
			ProcessNoise:     cfg.GetProcessNoise(),
			MeasurementNoise: cfg.GetMeasurementNoise(),
		},
	}
	for _, n := range cam.Nodes {
		tc.Nodes = append(tc.Nodes, tracking.Node{ID: n.ID, Name: n.Name, X: n.X, Y: n.Y})
	}
	return tc
}

// Close releases detector resources. It does not stop a running pipeline.
func (r *Runner) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
