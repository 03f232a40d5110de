package filter

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrOverlappingBands = errors.New("filter: trigger bands overlap")

type band struct {
	lo, hi float64
}

type point struct {
	threshold  float64
	hysteresis float64
}

// TriggerPoint quantizes a signal into bands separated by thresholds with
// hysteresis. Inside a hysteresis gap the previous band is kept.
type TriggerPoint struct {
	points  []point
	bands   []band
	last    int
	started bool
}

// NewTriggerPoint builds bands from {threshold, hysteresis} pairs
func NewTriggerPoint(points [][2]float64) (*TriggerPoint, error) {
	tp := &TriggerPoint{}
	for _, p := range points {
		tp.points = append(tp.points, point{threshold: p[0], hysteresis: math.Abs(p[1])})
	}
	if err := tp.rebuild(); err != nil {
		return nil, err
	}
	return tp, nil
}

// AddPoint inserts a threshold; the bands are rebuilt
func (tp *TriggerPoint) AddPoint(threshold, hysteresis float64) error {
	prev := tp.points
	tp.points = append(append([]point(nil), prev...), point{threshold: threshold, hysteresis: math.Abs(hysteresis)})
	if err := tp.rebuild(); err != nil {
		tp.points = prev
		_ = tp.rebuild()
		return err
	}
	return nil
}

// RemovePoint drops the given threshold, false if unknown
func (tp *TriggerPoint) RemovePoint(threshold float64) bool {
	for i, p := range tp.points {
		if p.threshold == threshold {
			tp.points = append(tp.points[:i:i], tp.points[i+1:]...)
			_ = tp.rebuild()
			return true
		}
	}
	return false
}

// RemoveAllPoints leaves a single band covering everything
func (tp *TriggerPoint) RemoveAllPoints() {
	tp.points = nil
	_ = tp.rebuild()
}

// Bands returns the number of bands
func (tp *TriggerPoint) Bands() int {
	return len(tp.bands)
}

// Reset forgets the previously returned band
func (tp *TriggerPoint) Reset() {
	tp.last = 0
	tp.started = false
}

func (tp *TriggerPoint) ProcessSample(v float64) float64 {
	for i, b := range tp.bands {
		if v >= b.lo && v < b.hi {
			tp.last = i
			tp.started = true
			return float64(i)
		}
	}

	if !tp.started {
		// first sample in a gap: side of the gap's threshold decides
		tp.last = len(tp.bands) - 1
		for i, p := range tp.points {
			if v < p.threshold {
				tp.last = i
				break
			}
		}
		tp.started = true
	}
	return float64(tp.last)
}

func (tp *TriggerPoint) rebuild() error {
	sort.Slice(tp.points, func(i, j int) bool {
		return tp.points[i].threshold < tp.points[j].threshold
	})

	bands := make([]band, 0, len(tp.points)+1)
	lo := math.Inf(-1)
	for i, p := range tp.points {
		hi := p.threshold - p.hysteresis
		if i > 0 && lo >= hi {
			return fmt.Errorf("%w: band %d [%g, %g)", ErrOverlappingBands, i, lo, hi)
		}
		bands = append(bands, band{lo: lo, hi: hi})
		lo = p.threshold + p.hysteresis
	}
	bands = append(bands, band{lo: lo, hi: math.Inf(1)})

	tp.bands = bands
	tp.Reset()
	return nil
}
