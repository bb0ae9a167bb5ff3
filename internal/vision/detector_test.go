package vision

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testW = 160
	testH = 120
)

// frame builds a packed BGR frame filled with gray level bg.
func frame(bg byte) []byte {
	img := make([]byte, testW*testH*3)
	for i := range img {
		img[i] = bg
	}
	return img
}

func fill(img []byte, r image.Rectangle, v byte) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			o := (y*testW + x) * 3
			img[o], img[o+1], img[o+2] = v, v, v
		}
	}
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d := NewDetector(testW, testH, DefaultParams())
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDetect_BlackFramesDoNotBuildMask(t *testing.T) {
	d := newTestDetector(t)

	obs, err := d.Detect(frame(0), image.Pt(1, 1))
	require.NoError(t, err)
	assert.False(t, d.MaskBuilt())
	assert.Empty(t, obs.Contours)
	assert.True(t, obs.ProbeOK)
	assert.Equal(t, uint8(0), obs.Probe)
}

func TestDetect_FindsDarkSubject(t *testing.T) {
	d := newTestDetector(t)

	// Empty arena first: the mask covers the whole bright floor.
	_, err := d.Detect(frame(200), image.Pt(0, 0))
	require.NoError(t, err)
	require.True(t, d.MaskBuilt())

	img := frame(200)
	fill(img, image.Rect(100, 50, 120, 70), 10)
	obs, err := d.Detect(img, image.Pt(0, 0))
	require.NoError(t, err)

	require.Len(t, obs.Contours, 1)
	assert.Equal(t, 361.0, obs.Contours[0].Area)
	c, ok := Centroid(obs.Contours[0].Points)
	require.True(t, ok)
	assert.Equal(t, image.Pt(109, 59), c)
}

func TestDetect_MaskBuiltOnce(t *testing.T) {
	d := newTestDetector(t)

	// Only the left half of the arena is lit when the mask is taken.
	first := frame(10)
	fill(first, image.Rect(0, 0, testW/2, testH), 200)
	_, err := d.Detect(first, image.Pt(0, 0))
	require.NoError(t, err)
	require.True(t, d.MaskBuilt())

	// Fully lit arena afterwards; a subject on the right stays invisible.
	right := frame(200)
	fill(right, image.Rect(110, 40, 130, 60), 10)
	obs, err := d.Detect(right, image.Pt(0, 0))
	require.NoError(t, err)
	assert.Empty(t, obs.Contours)

	left := frame(200)
	fill(left, image.Rect(20, 40, 40, 60), 10)
	obs, err = d.Detect(left, image.Pt(0, 0))
	require.NoError(t, err)
	assert.Len(t, obs.Contours, 1)
}

func TestDetect_MaskFromFirstNonBlackFrame(t *testing.T) {
	d := newTestDetector(t)

	for i := 0; i < 2; i++ {
		obs, err := d.Detect(frame(0), image.Pt(0, 0))
		require.NoError(t, err)
		assert.Empty(t, obs.Contours)
		require.False(t, d.MaskBuilt())
	}

	first := frame(10)
	fill(first, image.Rect(0, 0, testW/2, testH), 200)
	_, err := d.Detect(first, image.Pt(0, 0))
	require.NoError(t, err)
	require.True(t, d.MaskBuilt())

	// Later, fully lit frames never replace the mask.
	for _, bg := range []byte{200, 180} {
		right := frame(bg)
		fill(right, image.Rect(110, 40, 130, 60), 10)
		obs, err := d.Detect(right, image.Pt(0, 0))
		require.NoError(t, err)
		assert.Empty(t, obs.Contours, "background %d", bg)
	}

	left := frame(200)
	fill(left, image.Rect(20, 40, 40, 60), 10)
	obs, err := d.Detect(left, image.Pt(0, 0))
	require.NoError(t, err)
	assert.Len(t, obs.Contours, 1)
}

func TestDetect_SmallSpecklesRemoved(t *testing.T) {
	d := newTestDetector(t)
	_, err := d.Detect(frame(200), image.Pt(0, 0))
	require.NoError(t, err)

	img := frame(200)
	fill(img, image.Rect(30, 30, 32, 32), 0) // 2x2, removed by the 3x3 opening
	obs, err := d.Detect(img, image.Pt(0, 0))
	require.NoError(t, err)
	assert.Empty(t, obs.Contours)
}

func TestDetect_Probe(t *testing.T) {
	d := newTestDetector(t)
	img := frame(0)
	fill(img, image.Rect(5, 7, 6, 8), 90)

	obs, err := d.Detect(img, image.Pt(5, 7))
	require.NoError(t, err)
	assert.True(t, obs.ProbeOK)
	assert.Equal(t, uint8(90), obs.Probe)

	obs, err = d.Detect(img, image.Pt(testW, 0))
	require.NoError(t, err)
	assert.False(t, obs.ProbeOK)
}

func TestDetect_Errors(t *testing.T) {
	d := NewDetector(testW, testH, DefaultParams())

	_, err := d.Detect(make([]byte, 10), image.Pt(0, 0))
	assert.Error(t, err)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, err = d.Detect(frame(0), image.Pt(0, 0))
	assert.ErrorIs(t, err, ErrClosed)
}
