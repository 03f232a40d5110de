package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/boardlink/internal/api/rest"
	"github.com/KevinKickass/boardlink/internal/api/websocket"
	"github.com/KevinKickass/boardlink/internal/board"
	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/config"
	"github.com/KevinKickass/boardlink/internal/devices"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/interfaces"
	"github.com/KevinKickass/boardlink/internal/metrics"
	"github.com/KevinKickass/boardlink/internal/transport"
	"go.uber.org/zap"
)

var ErrNotRunning = errors.New("system is not running")

// link is the board's sender. It forwards to whichever transport is current,
// so the board outlives reconnects.
type link struct {
	current atomic.Pointer[transport.Wrapper]
}

func (l *link) Send(p []byte) bool {
	w := l.current.Load()
	if w == nil {
		return false
	}
	return w.Send(p)
}

type LifecycleManager struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	loop       *clock.Loop
	link       *link
	board      *board.Board
	loader     *devices.ProfileLoader
	components *devices.Manager
	hub        *websocket.Hub
	backends   []transport.Backend

	restServer *rest.Server
	errc       chan error

	runCtx context.Context
	cancel context.CancelFunc

	stateMu      sync.RWMutex
	currentState SystemState
	profile      string
	lastError    string
	boardReady   atomic.Bool

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

// Option adjusts a LifecycleManager before Start
type Option func(*LifecycleManager)

// WithBackends replaces the transport backends, mainly for tests
func WithBackends(b ...transport.Backend) Option {
	return func(lm *LifecycleManager) { lm.backends = b }
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger, opts ...Option) (*LifecycleManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		metrics:      metrics.New(),
		loop:         clock.NewLoop(logger, 0),
		link:         &link{},
		hub:          websocket.NewHub(logger),
		backends:     transport.DefaultBackends(),
		errc:         make(chan error, 1),
		currentState: StateInitializing,
		profile:      cfg.Board.Profile,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(lm)
	}

	b, err := board.New(lm.link, clock.NewWallScheduler(lm.loop),
		board.WithLogger(logger),
		board.WithMetrics(lm.metrics),
		board.WithNormalize(cfg.Board.Normalize))
	if err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}
	lm.board = b

	lm.loader, err = devices.NewProfileLoader(cfg.Profiles.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}
	lm.components = devices.NewManager(lm.loader, b, devices.Defaults{
		DebounceInterval:  cfg.Input.DebounceInterval,
		SustainedInterval: cfg.Input.SustainedInterval,
	}, logger)

	lm.hub.SetStatusProvider(lm)
	lm.restServer = rest.NewServer(lm, logger, lm.hub)
	return lm, nil
}

func (lm *LifecycleManager) Config() *config.Config       { return lm.config }
func (lm *LifecycleManager) Board() *board.Board          { return lm.board }
func (lm *LifecycleManager) Components() *devices.Manager { return lm.components }
func (lm *LifecycleManager) Metrics() *metrics.Metrics    { return lm.metrics }

// Do runs fn on the event loop that owns the board
func (lm *LifecycleManager) Do(ctx context.Context, fn func()) error {
	return lm.loop.Do(ctx, fn)
}

// Errors delivers fatal background failures such as the HTTP listener dying
func (lm *LifecycleManager) Errors() <-chan error {
	return lm.errc
}

// Done is closed once Shutdown completes
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

// Start starts the entire system
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting boardlink",
		zap.String("target", lm.config.Transport.Target),
		zap.String("profile", lm.profile))

	lm.runCtx, lm.cancel = context.WithCancel(context.Background())
	go lm.loop.Run(lm.runCtx)
	go lm.hub.Run(lm.runCtx)

	if err := lm.loop.Do(ctx, lm.bindEvents); err != nil {
		return lm.fail(fmt.Errorf("failed to bind board events: %w", err))
	}

	// fail fast on a broken profile; it is applied once the board is ready
	if lm.profile != "" {
		if _, err := devices.NewComposer(lm.loader, lm.logger).ComposeProfile(lm.profile); err != nil {
			return lm.fail(fmt.Errorf("failed to load profile %s: %w", lm.profile, err))
		}
	}

	if err := lm.connect(); err != nil {
		return lm.fail(err)
	}

	lm.restServer.Start(lm.errc)

	lm.setState(StateRunning)
	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("board_id", lm.board.ID()))
	return nil
}

func (lm *LifecycleManager) fail(err error) error {
	lm.setError(err)
	if lm.cancel != nil {
		lm.cancel()
	}
	return err
}

// bindEvents forwards board and component events to websocket clients. Runs on the loop.
func (lm *LifecycleManager) bindEvents() {
	lm.board.AddListener(board.EventPinChange, func(ev *events.Event) error {
		n, _ := ev.Payload["pin"].(int)
		value, _ := ev.Float("value")
		last, _ := ev.Float("last_value")
		lm.hub.Broadcast(websocket.NewPinChangeMessage(n, value, last))
		return nil
	})

	lm.board.AddListener(board.EventReady, func(ev *events.Event) error {
		lm.boardReady.Store(true)
		lm.hub.Broadcast(websocket.NewMessage(websocket.MessageTypeBoardReady, lm.board.Info()))
		lm.applyProfile()
		return nil
	})

	lm.board.AddListener(board.EventString, func(ev *events.Event) error {
		lm.hub.Broadcast(websocket.NewMessage(websocket.MessageTypeBoardString, ev.Payload))
		return nil
	})

	lm.components.AddListener(devices.EventComponent, func(ev *events.Event) error {
		fields := make(map[string]interface{}, len(ev.Payload))
		for k, v := range ev.Payload {
			switch k {
			case "component", "component_type", "event":
			default:
				fields[k] = v
			}
		}
		name, _ := ev.Payload["component"].(string)
		kind, _ := ev.Payload["component_type"].(string)
		typ, _ := ev.Payload["event"].(string)
		lm.hub.Broadcast(websocket.NewComponentEventMessage(name, kind, typ, fields))
		return nil
	})
}

// applyProfile rebuilds the components against the capabilities the board
// just reported. Runs on the loop.
func (lm *LifecycleManager) applyProfile() {
	lm.stateMu.RLock()
	name := lm.profile
	lm.stateMu.RUnlock()
	if name == "" {
		return
	}

	lm.components.Close()
	if err := lm.components.LoadProfile(name); err != nil {
		lm.logger.Error("Failed to apply board profile",
			zap.String("profile", name),
			zap.Error(err))
		lm.recordError(err)
	}
}

// connect dials a fresh transport in the background
func (lm *LifecycleManager) connect() error {
	w, err := transport.New(lm.config.Transport.Target, lm.loop,
		transport.WithBackends(lm.backends...),
		transport.WithLogger(lm.logger),
		transport.WithMetrics(lm.metrics),
		transport.WithDialTimeout(lm.config.Transport.ConnectTimeout))
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	if err := lm.loop.Do(lm.runCtx, func() { lm.bindTransport(w) }); err != nil {
		return fmt.Errorf("failed to bind transport: %w", err)
	}
	lm.link.current.Store(w)

	lm.hub.Broadcast(websocket.NewTransportStateMessage(w.State().String(), w.Backend(), w.Target(), nil))
	go func() {
		if err := w.Open(lm.runCtx); err != nil {
			lm.logger.Warn("Transport open failed", zap.Error(err))
		}
	}()
	return nil
}

// bindTransport wires one transport generation to the board. Runs on the loop.
func (lm *LifecycleManager) bindTransport(w *transport.Wrapper) {
	lm.board.Attach(w)

	w.AddListener(transport.EventConnected, func(ev *events.Event) error {
		lm.hub.Broadcast(websocket.NewTransportStateMessage(w.State().String(), w.Backend(), w.Target(), nil))
		// the firmware may have restarted while unlinked
		lm.board.ForgetReport()
		lm.boardReady.Store(false)
		lm.board.Handshake(lm.config.Board.SamplingInterval)
		return nil
	})

	w.AddListener(transport.EventClose, func(ev *events.Event) error {
		var cause error
		if msg, ok := ev.Payload["error"].(string); ok {
			cause = errors.New(msg)
			lm.recordError(cause)
		}
		lm.hub.Broadcast(websocket.NewTransportStateMessage(w.State().String(), w.Backend(), w.Target(), cause))

		// a replaced transport must not trigger another dial
		if lm.link.current.Load() != w {
			return nil
		}
		lm.boardReady.Store(false)
		lm.scheduleReconnect()
		return nil
	})
}

func (lm *LifecycleManager) scheduleReconnect() {
	delay := lm.config.Transport.ReconnectInterval
	if delay <= 0 || lm.State() != StateRunning {
		return
	}

	lm.logger.Info("Transport lost, reconnecting", zap.Duration("delay", delay))
	time.AfterFunc(delay, func() {
		if lm.State() != StateRunning {
			return
		}
		if err := lm.connect(); err != nil {
			lm.logger.Error("Reconnect failed", zap.Error(err))
			lm.recordError(err)
		}
	})
}

// Reconnect drops the current transport and dials a new one
func (lm *LifecycleManager) Reconnect() error {
	if lm.State() != StateRunning {
		return ErrNotRunning
	}
	old := lm.link.current.Load()
	if err := lm.connect(); err != nil {
		return err
	}
	if old != nil {
		old.Close()
	}
	return nil
}

// LoadProfile switches to the named board profile
func (lm *LifecycleManager) LoadProfile(ctx context.Context, name string) error {
	var err error
	doErr := lm.loop.Do(ctx, func() {
		lm.components.Close()
		err = lm.components.LoadProfile(name)
	})
	if doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}

	lm.stateMu.Lock()
	lm.profile = name
	lm.stateMu.Unlock()
	lm.logger.Info("Board profile loaded", zap.String("profile", name))
	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	if err := lm.restServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
	}

	// leave outputs off before the link goes away
	if lm.cancel != nil {
		if err := lm.loop.Do(ctx, lm.components.Close); err != nil && !errors.Is(err, clock.ErrLoopStopped) {
			errs = append(errs, fmt.Errorf("component shutdown failed: %w", err))
		}
	}

	if w := lm.link.current.Load(); w != nil {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("transport close failed: %w", err))
		}
	}

	if lm.cancel != nil {
		lm.cancel()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Ignoring state change", zap.Error(err))
		return
	}
	lm.logger.Debug("System state changed",
		zap.String("from", lm.currentState.String()),
		zap.String("to", state.String()))
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))
	lm.recordError(err)
	lm.setState(StateError)
}

func (lm *LifecycleManager) recordError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.lastError = err.Error()
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	status := interfaces.SystemStatus{
		State:     lm.currentState.String(),
		Transport: transport.StateClosed.String(),
		Profile:   lm.profile,
		LastError: lm.lastError,
	}
	lm.stateMu.RUnlock()

	if w := lm.link.current.Load(); w != nil {
		status.Transport = w.State().String()
		status.Backend = w.Backend()
		status.Target = w.Target()
	}
	status.BoardReady = lm.boardReady.Load()
	status.ComponentCount = len(lm.components.Names())
	status.Clients = lm.hub.GetClientCount()
	return status
}

// Status feeds the websocket welcome message
func (lm *LifecycleManager) Status(ctx context.Context) (any, error) {
	return lm.GetCurrentStatus(), nil
}
