package devices

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/KevinKickass/boardlink/internal/board"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/i2c"
	"github.com/KevinKickass/boardlink/internal/input"
	"github.com/KevinKickass/boardlink/internal/output"
	"github.com/KevinKickass/boardlink/internal/pin"
	"github.com/KevinKickass/boardlink/internal/serialport"
	"github.com/KevinKickass/boardlink/internal/types"
	"go.uber.org/zap"
)

var (
	ErrComponentNotFound = errors.New("component not found")
	ErrComponentExists   = errors.New("component already exists")
	ErrUnsupportedAction = errors.New("action not supported by component")
)

// EventComponent carries every event of every managed component
const EventComponent = "component_event"

const (
	defaultAnalogBits = 10
	defaultPWMBits    = 8
)

// Defaults fill in timing a component definition leaves out
type Defaults struct {
	DebounceInterval  time.Duration
	SustainedInterval time.Duration
}

// Component is one built profile entry and the device driving it
type Component struct {
	Definition types.ComponentDefinition

	button *input.Button
	pot    *input.Potentiometer
	led    *output.LED
	i2c    *i2c.Device
	serial *serialport.Port

	source    events.Source
	listeners map[string]events.ListenerID
	lastData  []int
}

// ComponentSnapshot is a copy of a component's state safe to hand off the loop
type ComponentSnapshot struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description,omitempty"`
	Pin         *int           `json:"pin,omitempty"`
	State       map[string]any `json:"state"`
}

// Command is an action requested on a component
type Command struct {
	Action     string  `json:"action" binding:"required"`
	Value      float64 `json:"value,omitempty"`
	DurationMs int     `json:"duration_ms,omitempty"`
	Register   int     `json:"register,omitempty"`
	Bytes      int     `json:"bytes,omitempty"`
	Data       []int   `json:"data,omitempty"`
	Text       string  `json:"text,omitempty"`
	Min        float64 `json:"min,omitempty"`
	Max        float64 `json:"max,omitempty"`
}

// Manager builds the components of a board profile on one board and
// forwards their events. Apart from Names, every method must run on the
// board's loop.
type Manager struct {
	*events.Dispatcher

	loader   *ProfileLoader
	composer *Composer
	board    *board.Board
	defaults Defaults
	profile  *types.BoardProfileDefinition

	components map[string]*Component
	mu         sync.RWMutex
	logger     *zap.Logger
}

func NewManager(loader *ProfileLoader, b *board.Board, defaults Defaults, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		loader:     loader,
		composer:   NewComposer(loader, logger),
		board:      b,
		defaults:   defaults,
		components: make(map[string]*Component),
		logger:     logger,
	}
	m.Dispatcher = events.NewDispatcher(m.eventOptions()...)
	return m
}

func (m *Manager) eventOptions() []events.Option {
	return []events.Option{
		events.WithLogger(m.logger),
		events.WithErrorHandler(func(le events.ListenerError) {
			m.board.Metrics().ListenerError(le.Type)
		}),
	}
}

// LoadProfile composes the named profile and builds all of its components
func (m *Manager) LoadProfile(name string) error {
	profile, err := m.composer.ComposeProfile(name)
	if err != nil {
		return fmt.Errorf("failed to compose profile %s: %w", name, err)
	}
	return m.Apply(profile)
}

// Apply builds the components of an already composed profile. Either all
// components are built or none are.
func (m *Manager) Apply(profile *types.BoardProfileDefinition) error {
	if err := checkConflicts(profile.Components); err != nil {
		return err
	}

	needsI2C := false
	for _, def := range profile.Components {
		if def.Type == types.ComponentI2C {
			needsI2C = true
		}
	}
	if needsI2C {
		if _, err := m.board.ConfigureI2C(profile.I2CDelayMicros); err != nil {
			return err
		}
	}

	built := make([]*Component, 0, len(profile.Components))
	for _, def := range profile.Components {
		c, err := m.add(def)
		if err != nil {
			for _, done := range built {
				m.remove(done)
			}
			return fmt.Errorf("component %s: %w", def.Name, err)
		}
		built = append(built, c)
	}

	m.profile = profile
	m.logger.Info("Board profile applied",
		zap.String("profile", profile.Profile.ID),
		zap.Int("components", len(built)))
	return nil
}

// Profile returns the last applied profile, nil if none
func (m *Manager) Profile() *types.BoardProfileDefinition {
	return m.profile
}

// Add builds a single component
func (m *Manager) Add(def types.ComponentDefinition) error {
	_, err := m.add(def)
	return err
}

func (m *Manager) add(def types.ComponentDefinition) (*Component, error) {
	m.mu.RLock()
	_, exists := m.components[def.Name]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrComponentExists, def.Name)
	}

	c, err := m.build(def)
	if err != nil {
		return nil, err
	}
	m.forward(c)

	m.mu.Lock()
	m.components[def.Name] = c
	m.mu.Unlock()

	m.logger.Debug("Component added",
		zap.String("component", def.Name),
		zap.String("type", string(def.Type)))
	return c, nil
}

func (m *Manager) build(def types.ComponentDefinition) (*Component, error) {
	c := &Component{Definition: def, listeners: make(map[string]events.ListenerID)}
	opts := m.eventOptions()

	switch def.Type {
	case types.ComponentButton:
		p, err := m.pinFor(def)
		if err != nil {
			return nil, err
		}
		cfg := input.ButtonConfig{
			DebounceInterval:  m.defaults.DebounceInterval,
			SustainedInterval: m.defaults.SustainedInterval,
		}
		mode := pin.ModeInput
		if def.Wiring == "pull_up" {
			cfg.Wiring = input.PullUp
			mode = pin.ModePullUp
		}
		if def.DebounceMs > 0 {
			cfg.DebounceInterval = time.Duration(def.DebounceMs) * time.Millisecond
		}
		if def.SustainedMs > 0 {
			cfg.SustainedInterval = time.Duration(def.SustainedMs) * time.Millisecond
		}
		if _, err := m.board.SetPinMode(p.Number(), mode); err != nil {
			return nil, err
		}
		m.board.EnableDigitalReporting(p.Number()/8, true)

		c.button, err = input.NewButton(p, m.board.Scheduler(), cfg, opts...)
		if err != nil {
			return nil, err
		}
		c.source = c.button

	case types.ComponentPotentiometer:
		if def.AnalogChannel == nil {
			return nil, fmt.Errorf("analog_channel is required")
		}
		p, err := m.board.AnalogPin(*def.AnalogChannel)
		if err != nil {
			return nil, err
		}
		if _, err := m.board.SetPinMode(p.Number(), pin.ModeAnalog); err != nil {
			return nil, err
		}
		m.board.EnableAnalogReporting(*def.AnalogChannel, true)

		cfg := input.PotentiometerConfig{
			InMin:   0,
			InMax:   m.fullScale(p, pin.ModeAnalog, defaultAnalogBits),
			Min:     def.Min,
			Max:     def.Max,
			Samples: def.Samples,
		}
		if def.Smoothing != nil {
			cfg.Smoothing = *def.Smoothing
		}
		c.pot, err = input.NewPotentiometer(p, cfg, opts...)
		if err != nil {
			return nil, err
		}
		c.source = c.pot

	case types.ComponentLED:
		p, err := m.pinFor(def)
		if err != nil {
			return nil, err
		}
		cfg := output.LEDConfig{FullScale: m.fullScale(p, pin.ModePWM, defaultPWMBits)}
		if def.Drive == "sink" {
			cfg.Drive = output.Sink
		}
		c.led, err = output.NewLED(p, m.board, m.board.Scheduler(), cfg, m.logger, opts...)
		if err != nil {
			return nil, err
		}
		c.source = c.led

	case types.ComponentI2C:
		d, err := m.board.I2C(def.Address)
		if err != nil {
			return nil, err
		}
		if def.Continuous && def.ReadBytes > 0 {
			if _, err := d.StartReading(def.Register, def.ReadBytes); err != nil {
				return nil, err
			}
		}
		c.i2c = d
		c.source = d

	case types.ComponentSerial:
		cfg := serialport.Config{ID: def.Port, Baud: def.Baud, RxPin: def.RxPin, TxPin: def.TxPin}
		p, err := m.board.Serial(cfg)
		if err != nil {
			return nil, err
		}
		p.Configure()
		p.StartReading(0)
		c.serial = p
		c.source = p

	default:
		return nil, fmt.Errorf("unknown component type %q", def.Type)
	}

	return c, nil
}

func (m *Manager) pinFor(def types.ComponentDefinition) (*pin.Pin, error) {
	if def.Pin == nil {
		return nil, fmt.Errorf("pin is required")
	}
	return m.board.Pin(*def.Pin)
}

// fullScale is the pin value range for mode, 1 on a normalizing board
func (m *Manager) fullScale(p *pin.Pin, mode pin.Mode, fallbackBits int) float64 {
	if m.board.Normalized() {
		return 1
	}
	bits := p.Resolution(mode)
	if bits == 0 {
		bits = fallbackBits
	}
	return math.Exp2(float64(bits)) - 1
}

// eventTypes lists what each component type emits
var eventTypes = map[types.ComponentType][]string{
	types.ComponentButton:        {input.EventPress, input.EventRelease, input.EventLongPress, input.EventSustainedPress},
	types.ComponentPotentiometer: {input.EventChange},
	types.ComponentLED:           {output.EventIntensity},
	types.ComponentI2C:           {i2c.EventData},
	types.ComponentSerial:        {serialport.EventData},
}

func (m *Manager) forward(c *Component) {
	name := c.Definition.Name
	kind := string(c.Definition.Type)

	for _, typ := range eventTypes[c.Definition.Type] {
		typ := typ
		c.listeners[typ] = c.source.AddListener(typ, func(ev *events.Event) error {
			// i2c devices are shared per address, so replies are filtered by register
			if c.i2c != nil && c.Definition.ReadBytes > 0 {
				if reg, ok := ev.Payload["register"].(int); ok && reg != c.Definition.Register {
					return nil
				}
			}
			if data, ok := ev.Payload["data"].([]int); ok {
				c.lastData = data
			}

			m.board.Metrics().ComponentEvent(name, typ)
			fields := make(map[string]any, len(ev.Payload)+3)
			for k, v := range ev.Payload {
				fields[k] = v
			}
			fields["component"] = name
			fields["component_type"] = kind
			fields["event"] = typ
			m.Emit(EventComponent, c, fields)
			return nil
		})
	}
}

// Remove tears down a single component
func (m *Manager) Remove(name string) error {
	c, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, name)
	}
	m.remove(c)
	return nil
}

func (m *Manager) remove(c *Component) {
	for typ, id := range c.listeners {
		c.source.RemoveListener(typ, id)
	}

	switch {
	case c.button != nil:
		c.button.Close()
	case c.pot != nil:
		c.pot.Close()
		m.board.EnableAnalogReporting(*c.Definition.AnalogChannel, false)
	case c.led != nil:
		c.led.Off()
	case c.i2c != nil:
		// the device stays with the board, other components may share the address
		if c.Definition.Continuous && c.Definition.ReadBytes > 0 {
			c.i2c.StopReading()
		}
	case c.serial != nil:
		c.serial.StopReading()
	}

	m.mu.Lock()
	delete(m.components, c.Definition.Name)
	m.mu.Unlock()
}

// Close removes every component
func (m *Manager) Close() {
	m.mu.RLock()
	all := make([]*Component, 0, len(m.components))
	for _, c := range m.components {
		all = append(all, c)
	}
	m.mu.RUnlock()

	for _, c := range all {
		m.remove(c)
	}
	m.profile = nil
}

// Get returns a component by name
func (m *Manager) Get(name string) (*Component, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.components[name]
	return c, ok
}

// Names returns the sorted component names. Safe from any goroutine.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.components))
	for name := range m.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshots copies the state of every component, sorted by name
func (m *Manager) Snapshots() []ComponentSnapshot {
	names := m.Names()
	out := make([]ComponentSnapshot, 0, len(names))
	for _, name := range names {
		if c, ok := m.Get(name); ok {
			out = append(out, c.Snapshot())
		}
	}
	return out
}

// Snapshot copies the component's current state
func (c *Component) Snapshot() ComponentSnapshot {
	s := ComponentSnapshot{
		Name:        c.Definition.Name,
		Type:        string(c.Definition.Type),
		Description: c.Definition.Description,
		Pin:         c.Definition.Pin,
		State:       map[string]any{},
	}

	switch {
	case c.button != nil:
		s.State["pressed"] = c.button.IsPressed()
		s.State["state"] = c.button.State().String()
	case c.pot != nil:
		s.State["value"] = c.pot.Value()
		s.State["raw"] = c.pot.Pin().PreFilterValue()
		s.State["analog_channel"] = *c.Definition.AnalogChannel
	case c.led != nil:
		s.State["intensity"] = c.led.Intensity()
		s.State["on"] = c.led.IsOn()
		s.State["pwm"] = c.led.PWM()
		s.State["animating"] = c.led.Animating()
	case c.i2c != nil:
		s.State["address"] = c.i2c.Address()
		s.State["last_data"] = c.lastData
	case c.serial != nil:
		s.State["port"] = c.serial.ID()
		s.State["baud"] = c.serial.Config().Baud
		s.State["last_data"] = c.lastData
	}
	return s
}

// Execute runs cmd on the named component
func (m *Manager) Execute(name string, cmd Command) error {
	c, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrComponentNotFound, name)
	}

	duration := time.Duration(cmd.DurationMs) * time.Millisecond

	switch {
	case c.led != nil:
		switch cmd.Action {
		case "on":
			c.led.On()
		case "off":
			c.led.Off()
		case "toggle":
			c.led.Toggle()
		case "intensity":
			c.led.SetIntensity(cmd.Value)
		case "fade":
			c.led.FadeTo(cmd.Value, duration)
		case "blink":
			if duration <= 0 {
				return fmt.Errorf("blink needs a positive duration_ms")
			}
			c.led.Blink(duration)
		case "stop":
			c.led.StopBlinking()
		default:
			return unsupported(c, cmd)
		}

	case c.pot != nil:
		if cmd.Action != "range" {
			return unsupported(c, cmd)
		}
		return c.pot.SetRange(cmd.Min, cmd.Max)

	case c.i2c != nil:
		switch cmd.Action {
		case "read":
			bytes := cmd.Bytes
			if bytes <= 0 {
				bytes = c.Definition.ReadBytes
			}
			_, err := c.i2c.Read(cmd.Register, bytes)
			return err
		case "write":
			_, err := c.i2c.Write(cmd.Data...)
			return err
		case "start_reading":
			_, err := c.i2c.StartReading(cmd.Register, cmd.Bytes)
			return err
		case "stop_reading":
			c.i2c.StopReading()
		default:
			return unsupported(c, cmd)
		}

	case c.serial != nil:
		switch cmd.Action {
		case "write":
			if cmd.Text != "" {
				_, err := c.serial.WriteString(cmd.Text)
				return err
			}
			_, err := c.serial.Write(cmd.Data...)
			return err
		case "start_reading":
			c.serial.StartReading(cmd.Bytes)
		case "stop_reading":
			c.serial.StopReading()
		case "flush":
			c.serial.Flush()
		case "listen":
			c.serial.Listen()
		default:
			return unsupported(c, cmd)
		}

	default:
		return unsupported(c, cmd)
	}
	return nil
}

func unsupported(c *Component, cmd Command) error {
	return fmt.Errorf("%w: %s on %s %s", ErrUnsupportedAction, cmd.Action, c.Definition.Type, c.Definition.Name)
}
