package pin

import (
	"github.com/KevinKickass/boardlink/internal/events"
)

const EventChange = "change"

// Mode is the Firmata pin mode
type Mode byte

const (
	ModeInput   Mode = 0x00
	ModeOutput  Mode = 0x01
	ModeAnalog  Mode = 0x02
	ModePWM     Mode = 0x03
	ModeServo   Mode = 0x04
	ModeShift   Mode = 0x05
	ModeI2C     Mode = 0x06
	ModeOneWire Mode = 0x07
	ModeStepper Mode = 0x08
	ModeEncoder Mode = 0x09
	ModeSerial  Mode = 0x0A
	ModePullUp  Mode = 0x0B
	ModeUnknown Mode = 0x7F
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeAnalog:
		return "analog"
	case ModePWM:
		return "pwm"
	case ModeServo:
		return "servo"
	case ModeShift:
		return "shift"
	case ModeI2C:
		return "i2c"
	case ModeOneWire:
		return "onewire"
	case ModeStepper:
		return "stepper"
	case ModeEncoder:
		return "encoder"
	case ModeSerial:
		return "serial"
	case ModePullUp:
		return "pullup"
	default:
		return "unknown"
	}
}

// ParseMode is the inverse of String; unknown names report false
func ParseMode(s string) (Mode, bool) {
	for m := ModeInput; m <= ModePullUp; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return ModeUnknown, false
}

// IsOutput reports whether values written to a pin in this mode go to the board
func (m Mode) IsOutput() bool {
	return m == ModeOutput || m == ModePWM || m == ModeServo
}

// Type distinguishes the value domain of a pin
type Type int

const (
	TypeDigital Type = iota
	TypeAnalog
)

func (t Type) String() string {
	if t == TypeAnalog {
		return "analog"
	}
	return "digital"
}

// Filter transforms one sample
type Filter interface {
	ProcessSample(v float64) float64
}

// Resettable filters drop internal state when detached from a pin
type Resettable interface {
	Reset()
}

// Generator autonomously produces values for a pin
type Generator interface {
	events.Source
	Value() float64
	Stop()
}

// GeneratorUpdateEvent is the event a Generator emits for every new value
const GeneratorUpdateEvent = "update"

// Pin holds the state and running statistics of one channel.
// Not safe for concurrent use; it lives on the clock loop.
type Pin struct {
	*events.Dispatcher

	number int
	mode   Mode
	typ    Type

	value          float64
	lastValue      float64
	preFilterValue float64

	minimum     float64
	maximum     float64
	average     float64
	sampleCount int

	reportingEnabled bool
	analogChannel    int
	capabilities     map[Mode]int

	filters     []Filter
	generator   Generator
	generatorID events.ListenerID
}

// New creates a pin in the given mode
func New(number int, mode Mode, opts ...events.Option) *Pin {
	p := &Pin{
		Dispatcher:    events.NewDispatcher(opts...),
		number:        number,
		analogChannel: -1,
		capabilities:  make(map[Mode]int),
	}
	p.SetMode(mode)
	return p
}

func (p *Pin) Number() int             { return p.number }
func (p *Pin) Mode() Mode              { return p.mode }
func (p *Pin) Type() Type              { return p.typ }
func (p *Pin) Value() float64          { return p.value }
func (p *Pin) LastValue() float64      { return p.lastValue }
func (p *Pin) PreFilterValue() float64 { return p.preFilterValue }
func (p *Pin) Minimum() float64        { return p.minimum }
func (p *Pin) Maximum() float64        { return p.maximum }
func (p *Pin) Average() float64        { return p.average }
func (p *Pin) SampleCount() int        { return p.sampleCount }
func (p *Pin) ReportingEnabled() bool  { return p.reportingEnabled }
func (p *Pin) AnalogChannel() int      { return p.analogChannel }

// SetMode changes the mode and derives the value type from it
func (p *Pin) SetMode(mode Mode) {
	p.mode = mode
	switch mode {
	case ModeAnalog, ModePWM, ModeServo:
		p.typ = TypeAnalog
	default:
		p.typ = TypeDigital
	}
}

// SetReportingEnabled records whether the board streams this pin
func (p *Pin) SetReportingEnabled(on bool) {
	p.reportingEnabled = on
}

// SetAnalogChannel records the analog input channel mapped to this pin, -1 for none
func (p *Pin) SetAnalogChannel(ch int) {
	p.analogChannel = ch
}

// SetCapabilities replaces the supported modes with their resolutions in bits
func (p *Pin) SetCapabilities(caps map[Mode]int) {
	p.capabilities = make(map[Mode]int, len(caps))
	for m, r := range caps {
		p.capabilities[m] = r
	}
}

// Capabilities returns a copy of the supported modes
func (p *Pin) Capabilities() map[Mode]int {
	out := make(map[Mode]int, len(p.capabilities))
	for m, r := range p.capabilities {
		out[m] = r
	}
	return out
}

// Supports reports whether mode is available. Pins without capability data accept every mode.
func (p *Pin) Supports(mode Mode) bool {
	if len(p.capabilities) == 0 {
		return true
	}
	_, ok := p.capabilities[mode]
	return ok
}

// Resolution returns the bit resolution for mode, 0 if unknown
func (p *Pin) Resolution(mode Mode) int {
	return p.capabilities[mode]
}

// SetValue runs raw through the filter chain, updates statistics from the
// unfiltered sample and dispatches EventChange when the filtered value moved.
func (p *Pin) SetValue(raw float64) {
	p.preFilterValue = raw
	p.updateStatistics(raw)

	next := raw
	for _, f := range p.filters {
		next = f.ProcessSample(next)
	}

	old := p.value
	p.lastValue = old
	p.value = next

	if old != next {
		p.Emit(EventChange, p, map[string]any{
			"value":      next,
			"last_value": old,
			"pin":        p.number,
		})
	}
}

// Clear resets min, max and average to the current unfiltered value; the
// next sample restarts the statistics
func (p *Pin) Clear() {
	p.minimum = p.preFilterValue
	p.maximum = p.preFilterValue
	p.average = p.preFilterValue
	p.sampleCount = 0
}

func (p *Pin) updateStatistics(raw float64) {
	p.sampleCount++
	if p.sampleCount == 1 {
		p.minimum, p.maximum, p.average = raw, raw, raw
		return
	}
	if raw < p.minimum {
		p.minimum = raw
	}
	if raw > p.maximum {
		p.maximum = raw
	}
	p.average += (raw - p.average) / float64(p.sampleCount)
}

// AddFilter appends f to the chain
func (p *Pin) AddFilter(f Filter) {
	if f == nil {
		return
	}
	p.filters = append(p.filters, f)
}

// SetFilters replaces the chain; detached filters lose their state
func (p *Pin) SetFilters(filters ...Filter) {
	for _, f := range p.filters {
		if r, ok := f.(Resettable); ok {
			r.Reset()
		}
	}
	p.filters = nil
	for _, f := range filters {
		p.AddFilter(f)
	}
}

// RemoveFilter detaches f, false if it was not attached
func (p *Pin) RemoveFilter(f Filter) bool {
	for i, cur := range p.filters {
		if cur != f {
			continue
		}
		p.filters = append(p.filters[:i:i], p.filters[i+1:]...)
		if r, ok := f.(Resettable); ok {
			r.Reset()
		}
		return true
	}
	return false
}

// Filters returns the current chain
func (p *Pin) Filters() []Filter {
	out := make([]Filter, len(p.filters))
	copy(out, p.filters)
	return out
}

// AddGenerator attaches g, stopping and detaching any previous generator
func (p *Pin) AddGenerator(g Generator) {
	p.RemoveGenerator()
	if g == nil {
		return
	}
	p.generator = g
	p.generatorID = g.AddListener(GeneratorUpdateEvent, func(*events.Event) error {
		p.SetValue(g.Value())
		return nil
	})
}

// RemoveGenerator stops and detaches the current generator
func (p *Pin) RemoveGenerator() {
	if p.generator == nil {
		return
	}
	g := p.generator
	p.generator = nil
	g.RemoveListener(GeneratorUpdateEvent, p.generatorID)
	g.Stop()
}

// Generator returns the attached generator, nil if none
func (p *Pin) Generator() Generator {
	return p.generator
}
