package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/boardlink/internal/api/websocket"
	"github.com/KevinKickass/boardlink/internal/interfaces"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// requestTimeout bounds how long a handler waits for the event loop
const requestTimeout = 5 * time.Second

type Server struct {
	router *gin.Engine
	lm     interfaces.LifecycleManager
	logger *zap.Logger
	server *http.Server
	wsHub  *websocket.Hub
}

func NewServer(lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router: gin.New(),
		lm:     lm,
		logger: logger,
		wsHub:  wsHub,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", lm.Config().Server.HTTPPort),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background. Listen errors are sent to errc.
func (s *Server) Start(errc chan<- error) {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
			if errc != nil {
				errc <- err
			}
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger, s.lm.Metrics()))
	s.router.Use(CORSMiddleware())

	s.router.GET("/health", s.healthCheck)
	if reg := s.lm.Metrics().Registry(); reg != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		{
			system.GET("/status", s.getSystemStatus)
			system.POST("/reconnect", s.reconnect)
			system.POST("/shutdown", s.shutdown)
		}

		// ==================== BOARD ====================
		board := v1.Group("/board")
		{
			board.GET("", s.getBoard)
			board.POST("/reset", s.resetBoard)
			board.POST("/query", s.queryBoard)
			board.POST("/sampling", s.setSampling)
			board.POST("/string", s.sendString)
		}

		// ==================== PINS ====================
		pins := v1.Group("/pins")
		{
			pins.GET("", s.listPins)
			pins.GET("/:pin", s.getPin)
			pins.PUT("/:pin", s.updatePin)
			pins.POST("/:pin/clear", s.clearPin)
			pins.POST("/:pin/reporting", s.setPinReporting)
		}

		// ==================== PROFILE & COMPONENTS ====================
		v1.GET("/profile", s.getProfile)
		v1.PUT("/profile", s.loadProfile)

		components := v1.Group("/components")
		{
			components.GET("", s.listComponents)
			components.GET("/:name", s.getComponent)
			components.POST("/:name/command", s.commandComponent)
		}

		// ==================== WEBSOCKET ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// onLoop runs fn on the event loop. On failure the error response has been written.
func (s *Server) onLoop(c *gin.Context, fn func()) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := s.lm.Do(ctx, fn); err != nil {
		s.abort(c, http.StatusServiceUnavailable, "event loop unavailable", err)
		return false
	}
	return true
}
