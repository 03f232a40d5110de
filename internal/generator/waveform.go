package generator

import (
	"fmt"
	"math"
)

// Wave selects the oscillator shape
type Wave int

const (
	Sine Wave = iota
	Square
	Triangle
	Saw
	Impulse
	Linear
)

func (w Wave) String() string {
	switch w {
	case Sine:
		return "sine"
	case Square:
		return "square"
	case Triangle:
		return "triangle"
	case Saw:
		return "saw"
	case Impulse:
		return "impulse"
	case Linear:
		return "linear"
	default:
		return "unknown"
	}
}

// Eval maps the phase position pos to [0,1]; last is the previous position
func (w Wave) Eval(pos, last float64) float64 {
	switch w {
	case Sine:
		return 0.5 * (1 + math.Sin(2*math.Pi*(pos-0.25)))
	case Square:
		if frac(pos) <= 0.5 {
			return 1
		}
		return 0
	case Triangle:
		f := frac(pos)
		if f <= 0.5 {
			return 2 * f
		}
		return 2 - 2*f
	case Saw:
		f := frac(pos)
		if f <= 0.5 {
			return f + 0.5
		}
		return f - 0.5
	case Impulse:
		// one sample high whenever a new cycle starts
		if pos > last && (frac(pos) < frac(last) || pos-last >= 1) {
			return 1
		}
		return 0
	case Linear:
		if pos < 1 {
			return math.Max(0, pos)
		}
		return 1
	default:
		return 0
	}
}

// ParseWave resolves wave names used in profiles and the HTTP API
func ParseWave(name string) (Wave, error) {
	switch name {
	case "sin", "sine":
		return Sine, nil
	case "square":
		return Square, nil
	case "triangle":
		return Triangle, nil
	case "saw", "sawtooth":
		return Saw, nil
	case "impulse":
		return Impulse, nil
	case "linear":
		return Linear, nil
	default:
		return 0, fmt.Errorf("unknown waveform: %s", name)
	}
}

func frac(v float64) float64 {
	f := math.Mod(v, 1)
	if f < 0 {
		f++
	}
	return f
}
