package capture

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Source delivers packed BGR frames. Read fills dst, which has exactly
// width*height*3 bytes, and reports whether a frame was captured.
type Source interface {
	Read(dst []byte) bool
	// FPS is the native rate of the source, or 0 when unknown.
	FPS() float64
	Close() error
}

// Opener opens a source and requests the given geometry and rate. The
// request is best-effort; sources that deliver another size are resized.
type Opener func(h Handle, width, height int, fps float64) (Source, error)

type videoSource struct {
	cap     *gocv.VideoCapture
	frame   gocv.Mat
	resized gocv.Mat
	width   int
	height  int
}

// OpenVideoSource opens h through OpenCV's VideoCapture.
func OpenVideoSource(h Handle, width, height int, fps float64) (Source, error) {
	var target interface{} = h.Path
	if h.IsDevice() {
		target = h.Device
	}
	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video capture %s not opened", h)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	if fps > 0 {
		vc.Set(gocv.VideoCaptureFPS, fps)
	}

	return &videoSource{
		cap:     vc,
		frame:   gocv.NewMat(),
		resized: gocv.NewMat(),
		width:   width,
		height:  height,
	}, nil
}

func (s *videoSource) Read(dst []byte) bool {
	if ok := s.cap.Read(&s.frame); !ok || s.frame.Empty() {
		return false
	}

	img := s.frame
	if img.Cols() != s.width || img.Rows() != s.height {
		gocv.Resize(s.frame, &s.resized, image.Pt(s.width, s.height), 0, 0, gocv.InterpolationLinear)
		img = s.resized
	}
	if img.Type() != gocv.MatTypeCV8UC3 {
		return false
	}

	data := img.ToBytes()
	if len(data) != len(dst) {
		return false
	}
	copy(dst, data)
	return true
}

func (s *videoSource) FPS() float64 {
	return s.cap.Get(gocv.VideoCaptureFPS)
}

func (s *videoSource) Close() error {
	s.frame.Close()
	s.resized.Close()
	return s.cap.Close()
}
