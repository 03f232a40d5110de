package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/KevinKickass/boardlink/internal/devices"
	"github.com/KevinKickass/boardlink/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/profile
func (s *Server) getProfile(c *gin.Context) {
	var profile *types.BoardProfileDefinition
	if !s.onLoop(c, func() { profile = s.lm.Components().Profile() }) {
		return
	}
	if profile == nil {
		s.abort(c, http.StatusNotFound, "No profile loaded", nil)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// PUT /api/v1/profile
func (s *Server) loadProfile(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := s.lm.LoadProfile(ctx, req.Name); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, devices.ErrProfileNotFound) {
			status = http.StatusNotFound
		}
		s.abort(c, status, "Failed to load profile", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile loaded",
		"profile": req.Name,
	})
}

// GET /api/v1/components
func (s *Server) listComponents(c *gin.Context) {
	var components []devices.ComponentSnapshot
	if !s.onLoop(c, func() { components = s.lm.Components().Snapshots() }) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"components": components,
		"count":      len(components),
	})
}

// GET /api/v1/components/:name
func (s *Server) getComponent(c *gin.Context) {
	name := c.Param("name")

	var snap devices.ComponentSnapshot
	var found bool
	if !s.onLoop(c, func() {
		var comp *devices.Component
		if comp, found = s.lm.Components().Get(name); found {
			snap = comp.Snapshot()
		}
	}) {
		return
	}
	if !found {
		s.abort(c, http.StatusNotFound, "Component not found", nil)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// POST /api/v1/components/:name/command
func (s *Server) commandComponent(c *gin.Context) {
	name := c.Param("name")

	var cmd devices.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		s.abort(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var err error
	var snap devices.ComponentSnapshot
	if !s.onLoop(c, func() {
		m := s.lm.Components()
		if err = m.Execute(name, cmd); err != nil {
			return
		}
		if comp, ok := m.Get(name); ok {
			snap = comp.Snapshot()
		}
	}) {
		return
	}

	switch {
	case errors.Is(err, devices.ErrComponentNotFound):
		s.abort(c, http.StatusNotFound, "Component not found", err)
	case err != nil:
		s.abort(c, http.StatusBadRequest, "Command failed", err)
	default:
		c.JSON(http.StatusOK, snap)
	}
}
