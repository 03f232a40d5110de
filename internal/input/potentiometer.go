package input

import (
	"fmt"

	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/filter"
	"github.com/KevinKickass/boardlink/internal/pin"
)

const EventChange = "change"

// DefaultSmoothingSamples is the moving average window
const DefaultSmoothingSamples = 5

type PotentiometerConfig struct {
	// InMin and InMax describe the pin's value domain, [0,1] when normalized
	InMin float64
	InMax float64
	// Min and Max are the reported range
	Min float64
	Max float64
	// Smoothing is accepted but averaging is currently always applied
	Smoothing bool
	Samples   int
}

// Potentiometer smooths and scales an analog pin
type Potentiometer struct {
	*events.Dispatcher

	pin      *pin.Pin
	cfg      PotentiometerConfig
	average  *filter.Convolution
	scaler   *filter.Scaler
	changeID events.ListenerID
}

// NewPotentiometer attaches its filter chain to p
func NewPotentiometer(p *pin.Pin, cfg PotentiometerConfig, opts ...events.Option) (*Potentiometer, error) {
	if p == nil {
		return nil, ErrMissingPin
	}
	if cfg.InMin == cfg.InMax {
		cfg.InMin, cfg.InMax = 0, 1
	}
	if cfg.Min == cfg.Max {
		cfg.Min, cfg.Max = 0, 1
	}
	if cfg.Samples <= 0 {
		cfg.Samples = DefaultSmoothingSamples
	}

	scaler, err := filter.NewScaler(cfg.InMin, cfg.InMax, cfg.Min, cfg.Max, filter.Linear, true)
	if err != nil {
		return nil, fmt.Errorf("potentiometer range: %w", err)
	}

	pot := &Potentiometer{
		Dispatcher: events.NewDispatcher(opts...),
		pin:        p,
		cfg:        cfg,
		scaler:     scaler,
	}

	// TODO: skip the averaging stage when Smoothing is false once saved
	// profiles that rely on the averaged default have been migrated.
	pot.average = filter.NewConvolution(filter.MovingAverage(cfg.Samples))
	p.SetFilters(pot.average, pot.scaler)

	pot.changeID = p.AddListener(pin.EventChange, func(ev *events.Event) error {
		pot.Emit(EventChange, pot, map[string]any{
			"value": p.Value(),
			"raw":   p.PreFilterValue(),
		})
		return nil
	})
	return pot, nil
}

func (pot *Potentiometer) Pin() *pin.Pin               { return pot.pin }
func (pot *Potentiometer) Config() PotentiometerConfig { return pot.cfg }
func (pot *Potentiometer) Value() float64              { return pot.pin.Value() }
func (pot *Potentiometer) Smoothing() bool             { return pot.cfg.Smoothing }

// Filters returns the averaging and scaling stages attached to the pin
func (pot *Potentiometer) Filters() (*filter.Convolution, *filter.Scaler) {
	return pot.average, pot.scaler
}

// SetRange changes the reported range
func (pot *Potentiometer) SetRange(min, max float64) error {
	if err := pot.scaler.SetRange(pot.cfg.InMin, pot.cfg.InMax, min, max); err != nil {
		return err
	}
	pot.cfg.Min, pot.cfg.Max = min, max
	return nil
}

// Close detaches the filters from the pin
func (pot *Potentiometer) Close() {
	pot.pin.RemoveListener(pin.EventChange, pot.changeID)
	pot.pin.RemoveFilter(pot.average)
	pot.pin.RemoveFilter(pot.scaler)
}
