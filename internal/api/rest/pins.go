package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/KevinKickass/boardlink/internal/board"
	"github.com/KevinKickass/boardlink/internal/pin"
	"github.com/gin-gonic/gin"
)

var errNotOutput = errors.New("pin is not in an output mode")

// GET /api/v1/pins
func (s *Server) listPins(c *gin.Context) {
	var pins []board.PinSnapshot
	if !s.onLoop(c, func() { pins = s.lm.Board().PinSnapshots() }) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pins":  pins,
		"count": len(pins),
	})
}

// GET /api/v1/pins/:pin
func (s *Server) getPin(c *gin.Context) {
	s.withPin(c, nil)
}

// PUT /api/v1/pins/:pin
func (s *Server) updatePin(c *gin.Context) {
	var req struct {
		Mode  *string  `json:"mode"`
		Value *float64 `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var mode pin.Mode
	if req.Mode != nil {
		var ok bool
		if mode, ok = pin.ParseMode(*req.Mode); !ok {
			s.abort(c, http.StatusBadRequest, "Unknown pin mode", fmt.Errorf("mode %q", *req.Mode))
			return
		}
	}

	s.withPin(c, func(b *board.Board, p *pin.Pin) error {
		if req.Mode != nil {
			if _, err := b.SetPinMode(p.Number(), mode); err != nil {
				return err
			}
		}
		if req.Value != nil {
			if !p.Mode().IsOutput() {
				return errNotOutput
			}
			p.SetValue(*req.Value)
		}
		return nil
	})
}

// POST /api/v1/pins/:pin/clear
func (s *Server) clearPin(c *gin.Context) {
	s.withPin(c, func(_ *board.Board, p *pin.Pin) error {
		p.Clear()
		return nil
	})
}

// POST /api/v1/pins/:pin/reporting
func (s *Server) setPinReporting(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s.withPin(c, func(b *board.Board, p *pin.Pin) error {
		if p.Mode() == pin.ModeAnalog && p.AnalogChannel() >= 0 {
			b.EnableAnalogReporting(p.AnalogChannel(), *req.Enabled)
			return nil
		}
		b.EnableDigitalReporting(p.Number()/8, *req.Enabled)
		return nil
	})
}

// withPin resolves :pin, runs fn on the loop and replies with the pin snapshot
func (s *Server) withPin(c *gin.Context, fn func(*board.Board, *pin.Pin) error) {
	n, err := strconv.Atoi(c.Param("pin"))
	if err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid pin number", err)
		return
	}

	var snap board.PinSnapshot
	var lookupErr, fnErr error
	if !s.onLoop(c, func() {
		b := s.lm.Board()
		p, err := b.Pin(n)
		if err != nil {
			lookupErr = err
			return
		}
		if fn != nil {
			fnErr = fn(b, p)
		}
		snap = board.Snapshot(p)
	}) {
		return
	}

	switch {
	case lookupErr != nil:
		s.abort(c, http.StatusNotFound, "Pin not found", lookupErr)
	case fnErr != nil:
		s.abort(c, http.StatusBadRequest, "Pin update failed", fnErr)
	default:
		c.JSON(http.StatusOK, snap)
	}
}
