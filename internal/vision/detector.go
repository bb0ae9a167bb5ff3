package vision

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/bevandicjuraj/CamCorder/internal/monitoring"
)

// ErrClosed is returned by Detect after Close.
var ErrClosed = errors.New("vision: detector closed")

// Params are the image-stage thresholds on the 0..255 gray scale.
type Params struct {
	ThreshMask   int // gray level above which a pixel belongs to the ROI mask
	ThreshDetect int // foreground cut is applied at 255-ThreshDetect on the inverted image
}

// DefaultParams matches the arena lighting the rig was tuned on.
func DefaultParams() Params {
	return Params{ThreshMask: 100, ThreshDetect: 35}
}

// Contour is one external contour in extraction order.
type Contour struct {
	Points []image.Point
	Area   float64 // truncated to whole pixels
}

// Observation is the output of one Detect call.
type Observation struct {
	Contours []Contour

	// Probe is the gray value at the requested probe pixel. ProbeOK is
	// false when the pixel lies outside the frame.
	Probe   uint8
	ProbeOK bool
}

// Detector runs the image stage for one camera. It keeps the ROI mask and
// scratch matrices between frames and is not safe for concurrent Detect
// calls.
type Detector struct {
	width, height int
	params        Params

	mu       sync.Mutex
	kernel   gocv.Mat
	mask01   gocv.Mat
	gray     gocv.Mat
	work     gocv.Mat
	haveMask bool
	closed   bool
}

// NewDetector allocates a detector for width x height BGR frames.
func NewDetector(width, height int, params Params) *Detector {
	return &Detector{
		width:  width,
		height: height,
		params: params,
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
		mask01: gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8U),
		gray:   gocv.NewMat(),
		work:   gocv.NewMat(),
	}
}

// MaskBuilt reports whether the ROI mask has been created.
func (d *Detector) MaskBuilt() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.haveMask
}

// Detect runs the image stage on a packed BGR frame of the detector's size.
func (d *Detector) Detect(img []byte, probe image.Point) (Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Observation{}, ErrClosed
	}
	if want := d.width * d.height * 3; len(img) != want {
		return Observation{}, fmt.Errorf("vision: frame is %d bytes, want %d", len(img), want)
	}

	src, err := gocv.NewMatFromBytes(d.height, d.width, gocv.MatTypeCV8UC3, img)
	if err != nil {
		return Observation{}, fmt.Errorf("vision: wrap frame: %w", err)
	}
	defer src.Close()

	gocv.CvtColor(src, &d.gray, gocv.ColorBGRToGray)

	if !d.haveMask && gocv.CountNonZero(d.gray) > 0 {
		d.buildMask()
	}

	gocv.BitwiseNot(d.gray, &d.work)
	gocv.Multiply(d.work, d.mask01, &d.work)
	gocv.MorphologyEx(d.work, &d.work, gocv.MorphOpen, d.kernel)
	gocv.Threshold(d.work, &d.work, float32(255-d.params.ThreshDetect), 255, gocv.ThresholdBinary)
	gocv.MorphologyEx(d.work, &d.work, gocv.MorphOpen, d.kernel)

	contours := gocv.FindContours(d.work, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	obs := Observation{Contours: make([]Contour, 0, contours.Size())}
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		obs.Contours = append(obs.Contours, Contour{
			Points: c.ToPoints(),
			Area:   math.Trunc(gocv.ContourArea(c)),
		})
	}

	if probe.In(image.Rect(0, 0, d.width, d.height)) {
		obs.Probe = d.gray.GetUCharAt(probe.Y, probe.X)
		obs.ProbeOK = true
	}
	return obs, nil
}

func (d *Detector) buildMask() {
	monitoring.Debugf("vision: creating mask (%dx%d, thresh %d)", d.width, d.height, d.params.ThreshMask)
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(d.gray, &mask, float32(d.params.ThreshMask), 255, gocv.ThresholdBinary)
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, d.kernel)
	// 0/255 -> 0/1 so the mask can scale the inverted image.
	gocv.Threshold(mask, &d.mask01, 127, 1, gocv.ThresholdBinary)
	d.haveMask = true
}

// Close releases the native matrices.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for _, m := range []*gocv.Mat{&d.kernel, &d.mask01, &d.gray, &d.work} {
		if err := m.Close(); err != nil {
			return err
		}
	}
	return nil
}
