package events

import (
	"fmt"

	"go.uber.org/zap"
)

// Event is a single notification delivered to listeners.
// Payload is merged once at dispatch time and must be treated as read-only afterwards.
type Event struct {
	Type    string
	Target  any
	Payload map[string]any
}

// New creates an event without payload
func New(eventType string, target any) *Event {
	return &Event{Type: eventType, Target: target}
}

// Float returns a numeric payload field, false if absent or not a float64
func (e *Event) Float(key string) (float64, bool) {
	v, ok := e.Payload[key].(float64)
	return v, ok
}

// Listener reacts to an event. A returned error is reported, never propagated.
type Listener func(*Event) error

// ListenerID identifies a registered listener for removal
type ListenerID uint64

// ListenerError describes one failing listener invocation
type ListenerError struct {
	Type       string
	ListenerID ListenerID
	Err        error
}

func (e ListenerError) Error() string {
	return fmt.Sprintf("listener %d for %q failed: %v", e.ListenerID, e.Type, e.Err)
}

func (e ListenerError) Unwrap() error {
	return e.Err
}

// Source is implemented by everything that emits events
type Source interface {
	AddListener(eventType string, fn Listener) ListenerID
	RemoveListener(eventType string, id ListenerID) bool
	HasListener(eventType string) bool
}

type registration struct {
	id ListenerID
	fn Listener
}

// Dispatcher is a synchronous publish/subscribe primitive.
// It is not safe for concurrent use; callers run it on the clock loop.
type Dispatcher struct {
	listeners map[string][]registration
	nextID    ListenerID
	logger    *zap.Logger
	onError   func(ListenerError)
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger used to report failing listeners
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithErrorHandler receives every listener failure
func WithErrorHandler(fn func(ListenerError)) Option {
	return func(d *Dispatcher) {
		d.onError = fn
	}
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		listeners: make(map[string][]registration),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetErrorHandler replaces the listener failure handler
func (d *Dispatcher) SetErrorHandler(fn func(ListenerError)) {
	d.onError = fn
}

// AddListener registers fn for eventType and returns its id
func (d *Dispatcher) AddListener(eventType string, fn Listener) ListenerID {
	d.nextID++
	d.listeners[eventType] = append(d.listeners[eventType], registration{id: d.nextID, fn: fn})
	return d.nextID
}

// RemoveListener unregisters a listener, false if it was not registered
func (d *Dispatcher) RemoveListener(eventType string, id ListenerID) bool {
	regs := d.listeners[eventType]
	for i, reg := range regs {
		if reg.id != id {
			continue
		}
		// copy so an in-flight dispatch keeps its snapshot
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(d.listeners, eventType)
		} else {
			d.listeners[eventType] = next
		}
		return true
	}
	return false
}

// HasListener reports whether eventType has at least one listener
func (d *Dispatcher) HasListener(eventType string) bool {
	return len(d.listeners[eventType]) > 0
}

// Dispatch merges fields into ev.Payload and invokes all listeners for ev.Type
// in registration order. It returns false when nobody was listening.
func (d *Dispatcher) Dispatch(ev *Event, fields map[string]any) bool {
	if ev == nil {
		return false
	}
	if len(fields) > 0 {
		if ev.Payload == nil {
			ev.Payload = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			ev.Payload[k] = v
		}
	}

	regs := d.listeners[ev.Type]
	if len(regs) == 0 {
		return false
	}

	for _, reg := range regs {
		if err := d.invoke(reg, ev); err != nil {
			d.report(ListenerError{Type: ev.Type, ListenerID: reg.id, Err: err})
		}
	}
	return true
}

// Emit is shorthand for dispatching a fresh event
func (d *Dispatcher) Emit(eventType string, target any, fields map[string]any) bool {
	return d.Dispatch(New(eventType, target), fields)
}

func (d *Dispatcher) invoke(reg registration, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return reg.fn(ev)
}

func (d *Dispatcher) report(le ListenerError) {
	d.logger.Warn("Event listener failed",
		zap.String("event", le.Type),
		zap.Uint64("listener_id", uint64(le.ListenerID)),
		zap.Error(le.Err))

	if d.onError != nil {
		d.onError(le)
	}
}
