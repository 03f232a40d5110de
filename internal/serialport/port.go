package serialport

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/firmata"
)

var ErrPortID = errors.New("serialport: invalid port id")

const EventData = "data"

// Port ids. The id shares a byte with the sub-opcode nibble, so software
// ports stop at 15.
const (
	HW0 = 0x00
	HW1 = 0x01
	HW2 = 0x02
	HW3 = 0x03
	SW0 = 0x08
	SW7 = 0x0F
)

// DefaultBaud matches the firmware default
const DefaultBaud = 57600

// Config describes one UART on the board. RxPin and TxPin apply to software ports only.
type Config struct {
	ID    int
	Baud  int
	RxPin int
	TxPin int
}

// Port is a logical serial channel multiplexed over the board link
type Port struct {
	*events.Dispatcher

	host    firmata.Host
	cfg     Config
	routeID firmata.RouteID
}

// IsSoftware reports whether id names a software serial port
func IsSoftware(id int) bool {
	return id >= SW0 && id <= SW7
}

func validID(id int) bool {
	return (id >= HW0 && id <= HW3) || IsSoftware(id)
}

// New registers a port on host. Configure must still be called to open it.
func New(host firmata.Host, cfg Config, opts ...events.Option) (*Port, error) {
	if host == nil {
		return nil, fmt.Errorf("serialport: host is required")
	}
	if !validID(cfg.ID) {
		return nil, fmt.Errorf("%w: %d", ErrPortID, cfg.ID)
	}
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	if IsSoftware(cfg.ID) && (cfg.RxPin < 0 || cfg.TxPin < 0 || cfg.RxPin > 0x7F || cfg.TxPin > 0x7F) {
		return nil, fmt.Errorf("serialport: software port %d needs rx and tx pins", cfg.ID)
	}

	p := &Port{
		Dispatcher: events.NewDispatcher(opts...),
		host:       host,
		cfg:        cfg,
	}
	p.routeID = host.AddRoute(p)
	return p, nil
}

func (p *Port) ID() int        { return p.cfg.ID }
func (p *Port) Config() Config { return p.cfg }

func (p *Port) op(code byte) byte {
	return code | byte(p.cfg.ID)
}

// Configure opens the port: [CONFIG|id, baud lsb, mid, high, (rx, tx)]
func (p *Port) Configure() bool {
	baud := p.cfg.Baud
	payload := []byte{
		p.op(firmata.SerialConfig),
		byte(baud & 0x7F),
		byte((baud >> 7) & 0x7F),
		byte((baud >> 14) & 0x7F),
	}
	if IsSoftware(p.cfg.ID) {
		payload = append(payload, byte(p.cfg.RxPin), byte(p.cfg.TxPin))
	}
	return p.host.SendSysex(firmata.SerialMessage, payload...)
}

// Write sends bytes as 7-bit pairs
func (p *Port) Write(values ...int) (bool, error) {
	data, err := firmata.Encode7(values...)
	if err != nil {
		return false, fmt.Errorf("serial port %d write: %w", p.cfg.ID, err)
	}
	payload := append([]byte{p.op(firmata.SerialWrite)}, data...)
	return p.host.SendSysex(firmata.SerialMessage, payload...), nil
}

// WriteString sends the bytes of s
func (p *Port) WriteString(s string) (bool, error) {
	values := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		values[i] = int(s[i])
	}
	return p.Write(values...)
}

// StartReading streams received bytes; maxBytes 0 means whatever is available
func (p *Port) StartReading(maxBytes int) bool {
	return p.readControl(firmata.SerialReadContinuous, maxBytes)
}

// StopReading halts the stream
func (p *Port) StopReading() bool {
	return p.readControl(firmata.SerialStopReading, 0)
}

func (p *Port) readControl(mode byte, maxBytes int) bool {
	lsb, msb := firmata.Split14(maxBytes)
	return p.host.SendSysex(firmata.SerialMessage, p.op(firmata.SerialRead), mode, lsb, msb)
}

func (p *Port) Close() bool {
	return p.host.SendSysex(firmata.SerialMessage, p.op(firmata.SerialClose))
}

func (p *Port) Flush() bool {
	return p.host.SendSysex(firmata.SerialMessage, p.op(firmata.SerialFlush))
}

// Listen selects this software port as the active receiver; hardware ports ignore it
func (p *Port) Listen() bool {
	if !IsSoftware(p.cfg.ID) {
		return false
	}
	return p.host.SendSysex(firmata.SerialMessage, p.op(firmata.SerialListen))
}

// Detach removes the port from the inbound demux
func (p *Port) Detach() {
	p.host.RemoveRoute(p.routeID)
}

// Route accepts serial replies tagged with this port id
func (p *Port) Route(f firmata.Frame) firmata.Result {
	if !f.Sysex || f.Command != firmata.SerialMessage || len(f.Payload) == 0 {
		return firmata.Ignored
	}
	if f.Payload[0] != p.op(firmata.SerialReply) {
		return firmata.Ignored
	}

	p.Emit(EventData, p, map[string]any{
		"port": p.cfg.ID,
		"data": firmata.Decode7(f.Payload[1:]),
	})
	return firmata.Handled
}

// Data extracts received bytes from an EventData event
func Data(ev *events.Event) []int {
	v, _ := ev.Payload["data"].([]int)
	return v
}
