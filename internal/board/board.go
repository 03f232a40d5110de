package board

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/firmata"
	"github.com/KevinKickass/boardlink/internal/i2c"
	"github.com/KevinKickass/boardlink/internal/metrics"
	"github.com/KevinKickass/boardlink/internal/pin"
	"github.com/KevinKickass/boardlink/internal/serialport"
	"github.com/KevinKickass/boardlink/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoSender     = errors.New("board: sender is required")
	ErrNoScheduler  = errors.New("board: scheduler is required")
	ErrPinNotFound  = errors.New("board: pin not found")
	ErrNotAnalogPin = errors.New("board: pin has no analog channel")
)

// Board events
const (
	EventReady     = "ready"
	EventVersion   = "version"
	EventFirmware  = "firmware"
	EventString    = "string"
	EventPinState  = "pin_state"
	EventPinChange = "pin_change"
)

// DefaultPinCount covers an ATmega328 board until a capability response arrives
const DefaultPinCount = 20

// Default resolutions when the board did not report capabilities
const (
	defaultAnalogResolution = 10
	defaultPWMResolution    = 8
	defaultServoRange       = 180
	defaultFirstAnalogPin   = 14
)

// Sender is the outbound half of the transport
type Sender interface {
	Send(p []byte) bool
}

// Board is the explicit context owning every pin and logical channel of one
// connection. Like the pins it owns, it lives on the clock loop.
type Board struct {
	*events.Dispatcher

	id      string
	sender  Sender
	sched   clock.Scheduler
	logger  *zap.Logger
	metrics *metrics.Metrics

	parser *firmata.Parser
	demux  *firmata.Demux

	pins       []*pin.Pin
	analogPins map[int]int
	outputs    map[int]events.ListenerID
	normalize  bool

	protocolVersion string
	firmwareName    string
	firmwareVersion string
	hasCapabilities bool
	hasMapping      bool
	ready           bool

	i2cDevices  map[int]*i2c.Device
	serialPorts map[int]*serialport.Port
}

// Option configures a Board
type Option func(*Board)

func WithLogger(l *zap.Logger) Option {
	return func(b *Board) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Board) { b.metrics = m }
}

// WithNormalize maps analog and PWM values to [0,1] instead of raw integers
func WithNormalize(on bool) Option {
	return func(b *Board) { b.normalize = on }
}

// WithPinCount pre-creates pins before capabilities are known
func WithPinCount(n int) Option {
	return func(b *Board) {
		if n >= 0 {
			b.pins = make([]*pin.Pin, n)
		}
	}
}

// New creates a board context writing through sender
func New(sender Sender, sched clock.Scheduler, opts ...Option) (*Board, error) {
	if sender == nil {
		return nil, ErrNoSender
	}
	if sched == nil {
		return nil, ErrNoScheduler
	}

	b := &Board{
		id:          uuid.NewString(),
		sender:      sender,
		sched:       sched,
		logger:      zap.NewNop(),
		parser:      firmata.NewParser(0),
		analogPins:  make(map[int]int),
		outputs:     make(map[int]events.ListenerID),
		normalize:   true,
		i2cDevices:  make(map[int]*i2c.Device),
		serialPorts: make(map[int]*serialport.Port),
		pins:        make([]*pin.Pin, DefaultPinCount),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.logger = b.logger.With(zap.String("board_id", b.id))
	b.Dispatcher = events.NewDispatcher(b.eventOptions()...)
	b.demux = firmata.NewDemux(b.logger, b.metrics)
	b.demux.Add(firmata.RouteFunc(b.route))

	for i := range b.pins {
		b.pins[i] = b.newPin(i)
	}
	return b, nil
}

func (b *Board) eventOptions() []events.Option {
	return []events.Option{
		events.WithLogger(b.logger),
		events.WithErrorHandler(func(le events.ListenerError) {
			b.metrics.ListenerError(le.Type)
		}),
	}
}

func (b *Board) newPin(n int) *pin.Pin {
	p := pin.New(n, pin.ModeUnknown, b.eventOptions()...)
	label := strconv.Itoa(n)
	p.AddListener(pin.EventChange, func(ev *events.Event) error {
		b.metrics.PinChange(label)
		b.Emit(EventPinChange, b, ev.Payload)
		return nil
	})
	return p
}

// ensurePins grows the pin table to n entries
func (b *Board) ensurePins(n int) {
	for i := len(b.pins); i < n; i++ {
		b.pins = append(b.pins, b.newPin(i))
	}
}

// ID is the session id of this board context
func (b *Board) ID() string { return b.id }

// Scheduler is shared by every component built on this board
func (b *Board) Scheduler() clock.Scheduler { return b.sched }

func (b *Board) Logger() *zap.Logger { return b.logger }

func (b *Board) Metrics() *metrics.Metrics { return b.metrics }

// Normalized reports whether analog values are mapped to [0,1]
func (b *Board) Normalized() bool { return b.normalize }

// Ready reports whether capabilities and analog mapping were received
func (b *Board) Ready() bool { return b.ready }

func (b *Board) ProtocolVersion() string { return b.protocolVersion }
func (b *Board) FirmwareName() string    { return b.firmwareName }
func (b *Board) FirmwareVersion() string { return b.firmwareVersion }

// Pin returns pin n
func (b *Board) Pin(n int) (*pin.Pin, error) {
	if n < 0 || n >= len(b.pins) {
		return nil, fmt.Errorf("%w: %d", ErrPinNotFound, n)
	}
	return b.pins[n], nil
}

// AnalogPin returns the pin mapped to analog channel ch. Before a mapping
// response arrives channels follow the Uno layout.
func (b *Board) AnalogPin(ch int) (*pin.Pin, error) {
	n, ok := b.analogPins[ch]
	if !ok {
		if b.hasMapping || ch < 0 {
			return nil, fmt.Errorf("%w: A%d", ErrNotAnalogPin, ch)
		}
		n = defaultFirstAnalogPin + ch
	}
	return b.Pin(n)
}

// Pins returns every pin in number order
func (b *Board) Pins() []*pin.Pin {
	out := make([]*pin.Pin, len(b.pins))
	copy(out, b.pins)
	return out
}

// AddRoute registers an inbound route after the board's own
func (b *Board) AddRoute(r firmata.Route) firmata.RouteID {
	return b.demux.Add(r)
}

func (b *Board) RemoveRoute(id firmata.RouteID) bool {
	return b.demux.Remove(id)
}

// HandleBytes feeds transport data through the parser and routes every
// completed frame in arrival order.
func (b *Board) HandleBytes(data []byte) {
	before := b.parser.Dropped()
	frames := b.parser.Feed(data)
	b.metrics.Dropped(b.parser.Dropped() - before)

	for _, f := range frames {
		b.demux.Dispatch(f)
	}
}

// Attach feeds the message events of a transport into HandleBytes
func (b *Board) Attach(src events.Source) events.ListenerID {
	return src.AddListener(transport.EventMessage, func(ev *events.Event) error {
		b.HandleBytes(transport.MessageData(ev))
		return nil
	})
}

// I2C returns the device at address, creating it on first use
func (b *Board) I2C(address int) (*i2c.Device, error) {
	if d, ok := b.i2cDevices[address]; ok {
		return d, nil
	}
	d, err := i2c.New(b, address, b.eventOptions()...)
	if err != nil {
		return nil, err
	}
	b.i2cDevices[address] = d
	return d, nil
}

// Serial returns the port for cfg.ID, creating it on first use
func (b *Board) Serial(cfg serialport.Config) (*serialport.Port, error) {
	if p, ok := b.serialPorts[cfg.ID]; ok {
		return p, nil
	}
	p, err := serialport.New(b, cfg, b.eventOptions()...)
	if err != nil {
		return nil, err
	}
	b.serialPorts[cfg.ID] = p
	return p, nil
}
