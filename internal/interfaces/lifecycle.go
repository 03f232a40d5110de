package interfaces

import (
	"context"

	"github.com/KevinKickass/boardlink/internal/board"
	"github.com/KevinKickass/boardlink/internal/config"
	"github.com/KevinKickass/boardlink/internal/devices"
	"github.com/KevinKickass/boardlink/internal/metrics"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State          string `json:"state"`
	Transport      string `json:"transport"`
	Backend        string `json:"backend,omitempty"`
	Target         string `json:"target,omitempty"`
	BoardReady     bool   `json:"board_ready"`
	Profile        string `json:"profile,omitempty"`
	ComponentCount int    `json:"component_count"`
	Clients        int    `json:"ws_clients"`
	LastError      string `json:"last_error,omitempty"`
}

// LifecycleManager is what the API layer needs from the running system.
// Board and Components must only be touched inside Do.
type LifecycleManager interface {
	Config() *config.Config
	Do(ctx context.Context, fn func()) error
	Board() *board.Board
	Components() *devices.Manager
	Metrics() *metrics.Metrics
	GetCurrentStatus() SystemStatus
	LoadProfile(ctx context.Context, name string) error
	Reconnect() error
	Shutdown(ctx context.Context) error
}
