package rest

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// POST /api/v1/system/reconnect
func (s *Server) reconnect(c *gin.Context) {
	if err := s.lm.Reconnect(); err != nil {
		s.abort(c, http.StatusServiceUnavailable, "Reconnect failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Reconnect initiated"})
}

// POST /api/v1/system/shutdown
func (s *Server) shutdown(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{
		"message": "Shutdown initiated",
	})

	// the request context ends with this handler
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.lm.Config().Server.ShutdownTimeout)
		defer cancel()
		if err := s.lm.Shutdown(ctx); err != nil {
			s.logger.Error("Shutdown via API failed", zap.Error(err))
		}
	}()
}
