package vision

import (
	"image"
	"math"
)

// Moments are the zeroth and first spatial moments of a closed polygon.
type Moments struct {
	M00, M10, M01 float64
}

// PolygonMoments integrates over the polygon bounded by pts using Green's
// theorem, the same way contour moments are computed for a point list.
// Orientation only changes the sign of every moment.
func PolygonMoments(pts []image.Point) Moments {
	var m Moments
	n := len(pts)
	if n < 3 {
		return m
	}
	for i := 0; i < n; i++ {
		x0, y0 := float64(pts[i].X), float64(pts[i].Y)
		x1, y1 := float64(pts[(i+1)%n].X), float64(pts[(i+1)%n].Y)
		a := x0*y1 - x1*y0
		m.M00 += a
		m.M10 += a * (x0 + x1)
		m.M01 += a * (y0 + y1)
	}
	m.M00 /= 2
	m.M10 /= 6
	m.M01 /= 6
	return m
}

// Centroid returns (m10/m00, m01/m00) truncated toward zero. ok is false
// for degenerate polygons with zero area.
func Centroid(pts []image.Point) (c image.Point, ok bool) {
	m := PolygonMoments(pts)
	if m.M00 == 0 || math.IsNaN(m.M00) {
		return image.Point{}, false
	}
	return image.Pt(int(m.M10/m.M00), int(m.M01/m.M00)), true
}

// Largest returns the index of the contour with the greatest area strictly
// above minArea, or -1. The first contour wins ties.
func Largest(contours []Contour, minArea float64) int {
	best, bestArea := -1, 0.0
	for i, c := range contours {
		if c.Area <= minArea {
			continue
		}
		if best < 0 || c.Area > bestArea {
			best, bestArea = i, c.Area
		}
	}
	return best
}
