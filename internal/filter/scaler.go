package filter

import (
	"errors"
	"math"
)

var ErrEmptyRange = errors.New("filter: input range is empty")

// Curve maps [0,1] monotonically onto [0,1]
type Curve func(float64) float64

var (
	Linear     Curve = func(v float64) float64 { return v }
	Square     Curve = func(v float64) float64 { return v * v }
	SquareRoot Curve = func(v float64) float64 { return math.Sqrt(v) }
	Cube       Curve = func(v float64) float64 { return v * v * v }
	CubeRoot   Curve = func(v float64) float64 { return math.Cbrt(v) }

	// easing shapes
	SineIn  Curve = func(v float64) float64 { return 1 - math.Cos(v*math.Pi/2) }
	SineOut Curve = func(v float64) float64 { return math.Sin(v * math.Pi / 2) }
)

// CurveByName resolves the names used in board profiles
func CurveByName(name string) (Curve, bool) {
	switch name {
	case "", "linear":
		return Linear, true
	case "square":
		return Square, true
	case "sqrt", "square_root":
		return SquareRoot, true
	case "cube":
		return Cube, true
	case "cbrt", "cube_root":
		return CubeRoot, true
	case "sine_in":
		return SineIn, true
	case "sine_out":
		return SineOut, true
	default:
		return nil, false
	}
}

// Scaler maps [inMin,inMax] to [outMin,outMax] through a curve
type Scaler struct {
	inMin, inMax   float64
	outMin, outMax float64
	curve          Curve
	limiter        bool
}

// NewScaler builds a scaler; a nil curve means Linear
func NewScaler(inMin, inMax, outMin, outMax float64, curve Curve, limiter bool) (*Scaler, error) {
	if inMin == inMax {
		return nil, ErrEmptyRange
	}
	if curve == nil {
		curve = Linear
	}
	return &Scaler{
		inMin:   inMin,
		inMax:   inMax,
		outMin:  outMin,
		outMax:  outMax,
		curve:   curve,
		limiter: limiter,
	}, nil
}

func (s *Scaler) ProcessSample(v float64) float64 {
	n := (v - s.inMin) / (s.inMax - s.inMin)
	if s.limiter {
		n = math.Max(0, math.Min(1, n))
	}
	n = s.curve(n)
	return s.outMin + n*(s.outMax-s.outMin)
}

// SetRange changes both ranges in place
func (s *Scaler) SetRange(inMin, inMax, outMin, outMax float64) error {
	if inMin == inMax {
		return ErrEmptyRange
	}
	s.inMin, s.inMax, s.outMin, s.outMax = inMin, inMax, outMin, outMax
	return nil
}
