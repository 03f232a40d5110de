package rest

import (
	"net/http"
	"time"

	"github.com/KevinKickass/boardlink/internal/metrics"
	"github.com/KevinKickass/boardlink/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggerMiddleware logs every request and records it in m
func LoggerMiddleware(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		took := time.Since(start)
		m.HTTPRequest(c.Request.Method, route, status, took)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", route),
			zap.Int("status", status),
			zap.Duration("duration", took),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= 500:
			logger.Error("HTTP request", fields...)
		case status >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Debug("HTTP request", fields...)
		}
	}
}

// CORSMiddleware allows browser dashboards on other origins
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// abort writes a consistent error body
func (s *Server) abort(c *gin.Context, status int, message string, err error) {
	code := types.ErrCodeInternal
	switch status {
	case http.StatusBadRequest:
		code = types.ErrCodeInvalidRequest
	case http.StatusNotFound:
		code = types.ErrCodeNotFound
	case http.StatusServiceUnavailable:
		code = types.ErrCodeUnavailable
	}

	var details any
	if err != nil {
		details = err.Error()
	}
	c.AbortWithStatusJSON(status, types.NewErrorResponse(code, message, details))
}
