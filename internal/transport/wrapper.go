package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrNoBackend  = errors.New("transport: no backend accepts target")
	ErrBadState   = errors.New("transport: invalid state for operation")
	ErrConnClosed = errors.New("transport: connection closed")
)

const (
	EventConnected = "connected"
	EventMessage   = "message"
	EventClose     = "close"
)

// State is the connection state; it only ever moves forward
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is a connected backend. Read blocks until data arrives or the
// connection fails; a (nil, nil) return is treated as an idle timeout.
type Conn interface {
	Read() ([]byte, error)
	Write(p []byte) error
	Close() error
}

// Backend is one native socket implementation
type Backend interface {
	Name() string
	Accepts(target *url.URL) bool
	Dial(ctx context.Context, target *url.URL) (Conn, error)
}

// Poster runs callbacks on the single logical thread
type Poster interface {
	Post(fn func()) bool
}

type tryPoster interface {
	TryPost(fn func()) bool
}

// DefaultBackends is the probe order used by New
func DefaultBackends() []Backend {
	return []Backend{
		&WebSocketBackend{},
		&MQTTBackend{},
		&TCPBackend{},
		&SerialBackend{},
	}
}

// Wrapper normalizes a backend into connect/send/receive/close with an
// explicit state machine and no reconnection.
type Wrapper struct {
	*events.Dispatcher

	target  *url.URL
	backend Backend
	loop    Poster
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	state     atomic.Int32
	conn      Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Option configures a Wrapper
type Option func(*options)

type options struct {
	backends []Backend
	logger   *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func WithBackends(b ...Backend) Option {
	return func(o *options) { o.backends = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// New selects the first backend accepting target. Events are delivered on loop.
func New(target string, loop Poster, opts ...Option) (*Wrapper, error) {
	if loop == nil {
		return nil, fmt.Errorf("transport: loop is required")
	}
	o := options{
		backends: DefaultBackends(),
		logger:   zap.NewNop(),
		timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid transport target %q: %w", target, err)
	}

	var backend Backend
	for _, b := range o.backends {
		if b.Accepts(u) {
			backend = b
			break
		}
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, target)
	}

	w := &Wrapper{
		Dispatcher: events.NewDispatcher(events.WithLogger(o.logger)),
		target:     u,
		backend:    backend,
		loop:       loop,
		logger:     o.logger.With(zap.String("backend", backend.Name())),
		metrics:    o.metrics,
		timeout:    o.timeout,
		done:       make(chan struct{}),
	}
	w.state.Store(int32(StateConnecting))
	w.metrics.State(int(StateConnecting))
	return w, nil
}

// Backend returns the name of the selected backend
func (w *Wrapper) Backend() string {
	return w.backend.Name()
}

// Target returns the configured target
func (w *Wrapper) Target() string {
	return w.target.String()
}

// State returns the current connection state
func (w *Wrapper) State() State {
	return State(w.state.Load())
}

// Done is closed once the wrapper reaches CLOSED
func (w *Wrapper) Done() <-chan struct{} {
	return w.done
}

// Open dials the backend: CONNECTING -> OPEN, or CLOSED on failure
func (w *Wrapper) Open(ctx context.Context) error {
	if w.State() != StateConnecting {
		return fmt.Errorf("%w: open in %s", ErrBadState, w.State())
	}

	dialCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	conn, err := w.backend.Dial(dialCtx, w.target)
	if err != nil {
		w.finish(fmt.Errorf("dial %s: %w", w.target.Redacted(), err))
		return fmt.Errorf("failed to open transport: %w", err)
	}

	w.conn = conn
	if !w.setState(StateConnecting, StateOpen) {
		// closed while dialling
		conn.Close()
		return fmt.Errorf("%w: closed during open", ErrBadState)
	}

	w.logger.Info("Transport connected", zap.String("target", w.target.Redacted()))
	w.loop.Post(func() {
		w.Emit(EventConnected, w, map[string]any{"target": w.target.Redacted()})
	})

	go w.readLoop()
	return nil
}

// Send writes p when OPEN; otherwise it is a no-op returning false
func (w *Wrapper) Send(p []byte) bool {
	if w.State() != StateOpen {
		return false
	}

	w.writeMu.Lock()
	err := w.conn.Write(p)
	w.writeMu.Unlock()

	if err != nil {
		w.logger.Warn("Transport write failed", zap.Error(err))
		return false
	}
	w.metrics.BytesOut(len(p))
	return true
}

// Close moves OPEN -> CLOSING -> CLOSED; CONNECTING goes straight to CLOSED
func (w *Wrapper) Close() error {
	if w.setState(StateOpen, StateClosing) {
		err := w.conn.Close()
		w.finish(nil)
		return err
	}
	if w.setState(StateConnecting, StateClosed) {
		w.finish(nil)
	}
	return nil
}

func (w *Wrapper) readLoop() {
	for {
		data, err := w.conn.Read()
		if err != nil {
			if w.setState(StateOpen, StateClosing) {
				w.conn.Close()
				w.finish(err)
			}
			return
		}
		if len(data) == 0 {
			if w.State() != StateOpen {
				return
			}
			continue
		}

		w.metrics.BytesIn(len(data))
		w.loop.Post(func() {
			w.Emit(EventMessage, w, map[string]any{"data": data})
		})
	}
}

func (w *Wrapper) finish(cause error) {
	w.closeOnce.Do(func() {
		w.state.Store(int32(StateClosed))
		w.metrics.State(int(StateClosed))
		if cause != nil {
			w.logger.Warn("Transport closed", zap.Error(cause))
		} else {
			w.logger.Info("Transport closed")
		}

		fields := map[string]any{}
		if cause != nil {
			fields["error"] = cause.Error()
		}
		w.postClose(func() {
			w.Emit(EventClose, w, fields)
		})
		close(w.done)
	})
}

// postClose queues the close event without blocking the caller, so Close
// may run on the loop even while the read goroutine has filled the queue.
func (w *Wrapper) postClose(fn func()) {
	if tp, ok := w.loop.(tryPoster); ok && tp.TryPost(fn) {
		return
	}
	go w.loop.Post(fn)
}

func (w *Wrapper) setState(from, to State) bool {
	if !w.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	w.metrics.State(int(to))
	return true
}

// MessageData extracts the bytes of an EventMessage
func MessageData(ev *events.Event) []byte {
	b, _ := ev.Payload["data"].([]byte)
	return b
}
