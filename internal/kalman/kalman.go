// Package kalman implements the constant-velocity Kalman filter used to
// smooth subject positions in image coordinates.
//
// State vector x = [x, y, vx, vy]. One step is one frame, so dt = 1:
//
//	F = [1 0 1 0]    H = [1 0 0 0]
//	    [0 1 0 1]        [0 1 0 0]
//	    [0 0 1 0]
//	    [0 0 0 1]
//
// Q = q*I4, R = r*I2, P0 = I4, x0 = 0.
package kalman

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	stateDim = 4
	measDim  = 2
)

// Config holds the noise scales. A negative ProcessNoise or a non-positive
// MeasurementNoise selects the default. ProcessNoise 0 is a valid filter
// with no process noise.
type Config struct {
	ProcessNoise     float64 // q, default 0.03
	MeasurementNoise float64 // r, default 1.0
}

// DefaultConfig returns the standard noise scales.
func DefaultConfig() Config {
	return Config{ProcessNoise: 0.03, MeasurementNoise: 1.0}
}

// Filter is a 4-state, 2-measurement linear Kalman filter. It is not safe
// for concurrent use; each tracker owns one.
type Filter struct {
	f, h, q, r *mat.Dense
	x          *mat.VecDense
	p          *mat.Dense
}

// New returns a filter at the origin with unit covariance.
func New(cfg Config) *Filter {
	def := DefaultConfig()
	if cfg.ProcessNoise < 0 {
		cfg.ProcessNoise = def.ProcessNoise
	}
	if cfg.MeasurementNoise <= 0 {
		cfg.MeasurementNoise = def.MeasurementNoise
	}

	kf := &Filter{
		f: mat.NewDense(stateDim, stateDim, []float64{
			1, 0, 1, 0,
			0, 1, 0, 1,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}),
		h: mat.NewDense(measDim, stateDim, []float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
		}),
		q: scaledIdentity(stateDim, cfg.ProcessNoise),
		r: scaledIdentity(measDim, cfg.MeasurementNoise),
	}
	kf.Reset()
	return kf
}

func scaledIdentity(n int, s float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, s)
	}
	return m
}

// Reset returns the filter to x0 = 0, P0 = I.
func (kf *Filter) Reset() {
	kf.x = mat.NewVecDense(stateDim, nil)
	kf.p = scaledIdentity(stateDim, 1)
}

// Predict advances the state one frame and returns the predicted position.
func (kf *Filter) Predict() (x, y float64) {
	var xn mat.VecDense
	xn.MulVec(kf.f, kf.x)
	kf.x = &xn

	// P' = F P F' + Q
	var fp, pn mat.Dense
	fp.Mul(kf.f, kf.p)
	pn.Mul(&fp, kf.f.T())
	pn.Add(&pn, kf.q)
	kf.p = &pn

	return kf.x.AtVec(0), kf.x.AtVec(1)
}

// Correct folds the measured position (mx, my) into the state. It reports
// false and leaves the state untouched when the innovation covariance is
// singular or the update would produce a non-finite state.
func (kf *Filter) Correct(mx, my float64) bool {
	// S = H P H' + R
	var hp, s mat.Dense
	hp.Mul(kf.h, kf.p)
	s.Mul(&hp, kf.h.T())
	s.Add(&s, kf.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return false
	}

	// K = P H' S^-1
	var pht, k mat.Dense
	pht.Mul(kf.p, kf.h.T())
	k.Mul(&pht, &sInv)

	// x = x + K (z - H x)
	var hx, innov mat.VecDense
	hx.MulVec(kf.h, kf.x)
	innov.SubVec(mat.NewVecDense(measDim, []float64{mx, my}), &hx)
	var dx, xn mat.VecDense
	dx.MulVec(&k, &innov)
	xn.AddVec(kf.x, &dx)

	// P = (I - K H) P
	var kh, ikh, pn mat.Dense
	kh.Mul(&k, kf.h)
	ikh.Sub(scaledIdentity(stateDim, 1), &kh)
	pn.Mul(&ikh, kf.p)

	if !finite(xn.RawVector().Data) || !finite(pn.RawMatrix().Data) {
		return false
	}
	kf.x = &xn
	kf.p = &pn
	return true
}

func finite(vals []float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// State returns a copy of [x, y, vx, vy].
func (kf *Filter) State() [4]float64 {
	return [4]float64{kf.x.AtVec(0), kf.x.AtVec(1), kf.x.AtVec(2), kf.x.AtVec(3)}
}

// Covariance returns a copy of P.
func (kf *Filter) Covariance() *mat.Dense {
	return mat.DenseCopyOf(kf.p)
}

// SetState overwrites the state vector, keeping the covariance.
func (kf *Filter) SetState(x, y, vx, vy float64) {
	kf.x = mat.NewVecDense(stateDim, []float64{x, y, vx, vy})
}
