package rest

import (
	"net/http"
	"time"

	"github.com/KevinKickass/boardlink/internal/board"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/board
func (s *Server) getBoard(c *gin.Context) {
	var info board.Info
	if !s.onLoop(c, func() { info = s.lm.Board().Info() }) {
		return
	}
	c.JSON(http.StatusOK, info)
}

// POST /api/v1/board/reset
func (s *Server) resetBoard(c *gin.Context) {
	var sent bool
	if !s.onLoop(c, func() { sent = s.lm.Board().Reset() }) {
		return
	}
	s.sent(c, sent)
}

// POST /api/v1/board/query
func (s *Server) queryBoard(c *gin.Context) {
	var req struct {
		What string `json:"what" binding:"required,oneof=version firmware capabilities analog_mapping pin_state"`
		Pin  int    `json:"pin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var sent bool
	if !s.onLoop(c, func() {
		b := s.lm.Board()
		switch req.What {
		case "version":
			sent = b.QueryVersion()
		case "firmware":
			sent = b.QueryFirmware()
		case "capabilities":
			sent = b.QueryCapabilities()
		case "analog_mapping":
			sent = b.QueryAnalogMapping()
		case "pin_state":
			sent = b.QueryPinState(req.Pin)
		}
	}) {
		return
	}
	s.sent(c, sent)
}

// POST /api/v1/board/sampling
func (s *Server) setSampling(c *gin.Context) {
	var req struct {
		IntervalMs int `json:"interval_ms" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var sent bool
	var err error
	if !s.onLoop(c, func() {
		sent, err = s.lm.Board().SetSamplingInterval(time.Duration(req.IntervalMs) * time.Millisecond)
	}) {
		return
	}
	if err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid sampling interval", err)
		return
	}
	s.sent(c, sent)
}

// POST /api/v1/board/string
func (s *Server) sendString(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var sent bool
	if !s.onLoop(c, func() { sent = s.lm.Board().SendString(req.Text) }) {
		return
	}
	s.sent(c, sent)
}

// sent reports whether a frame reached the transport
func (s *Server) sent(c *gin.Context, ok bool) {
	if !ok {
		s.abort(c, http.StatusServiceUnavailable, "Transport is not open", nil)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"sent": true})
}
