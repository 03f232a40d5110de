package input

import (
	"errors"
	"time"

	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/pin"
)

var ErrMissingPin = errors.New("input: pin and scheduler are required")

// Button events
const (
	EventPress          = "press"
	EventRelease        = "release"
	EventLongPress      = "long_press"
	EventSustainedPress = "sustained_press"
)

const (
	DefaultDebounceInterval  = 20 * time.Millisecond
	DefaultSustainedInterval = 500 * time.Millisecond
)

// Wiring tells which pin level means pressed
type Wiring int

const (
	// PullDown reads high while pressed
	PullDown Wiring = iota
	// PullUp reads low while pressed
	PullUp
)

func (w Wiring) String() string {
	if w == PullUp {
		return "pull_up"
	}
	return "pull_down"
}

// ButtonState is the debounced state machine position
type ButtonState int

const (
	Idle ButtonState = iota
	DebouncePending
	Pressed
	Sustained
	Released
)

func (s ButtonState) String() string {
	switch s {
	case Idle:
		return "idle"
	case DebouncePending:
		return "debounce_pending"
	case Pressed:
		return "pressed"
	case Sustained:
		return "sustained"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

type ButtonConfig struct {
	Wiring            Wiring
	DebounceInterval  time.Duration
	SustainedInterval time.Duration
}

// Button debounces a digital pin into press/release events and reports
// long and sustained presses while held.
type Button struct {
	*events.Dispatcher

	pin   *pin.Pin
	sched clock.Scheduler
	cfg   ButtonConfig

	state    ButtonState
	pressed  bool
	debounce clock.Handle
	sustain  *clock.Timer
	changeID events.ListenerID
}

// NewButton starts watching p
func NewButton(p *pin.Pin, sched clock.Scheduler, cfg ButtonConfig, opts ...events.Option) (*Button, error) {
	if p == nil || sched == nil {
		return nil, ErrMissingPin
	}
	if cfg.DebounceInterval <= 0 {
		cfg.DebounceInterval = DefaultDebounceInterval
	}
	if cfg.SustainedInterval <= 0 {
		cfg.SustainedInterval = DefaultSustainedInterval
	}

	b := &Button{
		Dispatcher: events.NewDispatcher(opts...),
		pin:        p,
		sched:      sched,
		cfg:        cfg,
		sustain:    clock.NewTimer(sched, cfg.SustainedInterval, 0, opts...),
	}
	b.sustain.AddListener(clock.EventTick, b.onSustain)
	b.changeID = p.AddListener(pin.EventChange, b.onEdge)
	return b, nil
}

func (b *Button) Pin() *pin.Pin        { return b.pin }
func (b *Button) State() ButtonState   { return b.state }
func (b *Button) Config() ButtonConfig { return b.cfg }

// IsPressed returns the debounced level
func (b *Button) IsPressed() bool { return b.pressed }

// SetDebounceInterval applies from the next edge
func (b *Button) SetDebounceInterval(d time.Duration) {
	if d > 0 {
		b.cfg.DebounceInterval = d
	}
}

// SetSustainedInterval re-arms a running sustain timer with the new period
func (b *Button) SetSustainedInterval(d time.Duration) {
	if d > 0 {
		b.cfg.SustainedInterval = d
		b.sustain.SetDelay(d)
	}
}

// onEdge restarts the debounce window on every pin change
func (b *Button) onEdge(*events.Event) error {
	if b.debounce != nil {
		b.debounce.Stop()
	}
	b.state = DebouncePending
	b.debounce = b.sched.AfterFunc(b.cfg.DebounceInterval, b.settle)
	return nil
}

func (b *Button) down() bool {
	high := b.pin.Value() >= 0.5
	if b.cfg.Wiring == PullUp {
		return !high
	}
	return high
}

// settle runs once the pin has been stable for the debounce interval
func (b *Button) settle() {
	b.debounce = nil
	down := b.down()

	if down == b.pressed {
		b.restoreState()
		return
	}

	b.pressed = down
	if down {
		b.state = Pressed
		b.sustain.Reset()
		b.sustain.Start()
		b.Emit(EventPress, b, map[string]any{"pin": b.pin.Number()})
		return
	}

	b.sustain.Stop()
	b.state = Released
	b.Emit(EventRelease, b, map[string]any{"pin": b.pin.Number()})
	if b.state == Released {
		b.state = Idle
	}
}

func (b *Button) restoreState() {
	switch {
	case !b.pressed:
		b.state = Idle
	case b.sustain.CurrentCount() > 0:
		b.state = Sustained
	default:
		b.state = Pressed
	}
}

func (b *Button) onSustain(ev *events.Event) error {
	if !b.pressed {
		return nil
	}
	count := b.sustain.CurrentCount()
	if b.state != DebouncePending {
		b.state = Sustained
	}
	if count == 1 {
		b.Emit(EventLongPress, b, map[string]any{"pin": b.pin.Number()})
		return nil
	}
	b.Emit(EventSustainedPress, b, map[string]any{"pin": b.pin.Number(), "count": count})
	return nil
}

// Close stops the timers and detaches from the pin
func (b *Button) Close() {
	if b.debounce != nil {
		b.debounce.Stop()
		b.debounce = nil
	}
	b.sustain.Stop()
	b.pin.RemoveListener(pin.EventChange, b.changeID)
}
