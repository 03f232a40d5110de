package firmata

import (
	"fmt"

	"github.com/KevinKickass/boardlink/internal/metrics"
	"go.uber.org/zap"
)

// Result tells whether a route consumed a frame
type Result int

const (
	Ignored Result = iota
	Handled
)

func (r Result) String() string {
	if r == Handled {
		return "handled"
	}
	return "ignored"
}

// Route is one logical channel sharing the transport
type Route interface {
	Route(Frame) Result
}

// RouteFunc adapts a function to Route
type RouteFunc func(Frame) Result

func (fn RouteFunc) Route(f Frame) Result {
	return fn(f)
}

// RouteID identifies a registered route
type RouteID uint64

type routeEntry struct {
	id    RouteID
	route Route
}

// Demux offers each inbound frame to every route in registration order.
// Several routes may share a command (one I2C device per address), so a
// Handled result does not stop the walk.
type Demux struct {
	routes  []routeEntry
	nextID  RouteID
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewDemux creates an empty demultiplexer
func NewDemux(logger *zap.Logger, m *metrics.Metrics) *Demux {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Demux{logger: logger, metrics: m}
}

// Add registers r and returns its id
func (d *Demux) Add(r Route) RouteID {
	d.nextID++
	d.routes = append(d.routes, routeEntry{id: d.nextID, route: r})
	return d.nextID
}

// Remove unregisters a route
func (d *Demux) Remove(id RouteID) bool {
	for i, e := range d.routes {
		if e.id == id {
			d.routes = append(d.routes[:i:i], d.routes[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered routes
func (d *Demux) Len() int {
	return len(d.routes)
}

// Dispatch routes f and reports whether any route handled it
func (d *Demux) Dispatch(f Frame) Result {
	result := Ignored
	for _, e := range d.routes {
		if e.route.Route(f) == Handled {
			result = Handled
		}
	}

	d.metrics.Frame(KindName(f), result.String())
	if result == Ignored {
		d.logger.Debug("Frame ignored", zap.String("frame", f.String()))
	}
	return result
}

// KindName is a stable label for a frame's command
func KindName(f Frame) string {
	if f.Sysex {
		switch f.Command {
		case I2CReply:
			return "i2c_reply"
		case SerialMessage:
			return "serial"
		case CapabilityResponse:
			return "capability_response"
		case AnalogMappingResponse:
			return "analog_mapping_response"
		case PinStateResponse:
			return "pin_state_response"
		case ReportFirmware:
			return "report_firmware"
		case StringData:
			return "string_data"
		default:
			return fmt.Sprintf("sysex_0x%02x", f.Command)
		}
	}
	switch f.Kind() {
	case DigitalMessage:
		return "digital"
	case AnalogMessage:
		return "analog"
	case ReportVersion:
		return "report_version"
	default:
		return fmt.Sprintf("cmd_0x%02x", f.Kind())
	}
}

// Host is the board side a logical channel talks through: one shared
// outbound sysex path plus route registration on the inbound demux.
type Host interface {
	SendSysex(command byte, payload ...byte) bool
	AddRoute(r Route) RouteID
	RemoveRoute(id RouteID) bool
}
