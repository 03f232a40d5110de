package board

import (
	"fmt"

	"github.com/KevinKickass/boardlink/internal/firmata"
	"github.com/KevinKickass/boardlink/internal/pin"
	"go.uber.org/zap"
)

// route handles the core channel and the board-level sysex replies. I2C and
// serial replies are left to their channels.
func (b *Board) route(f firmata.Frame) firmata.Result {
	if f.Sysex {
		switch f.Command {
		case firmata.ReportFirmware:
			b.handleFirmware(f.Payload)
		case firmata.CapabilityResponse:
			b.handleCapabilities(f.Payload)
		case firmata.AnalogMappingResponse:
			b.handleAnalogMapping(f.Payload)
		case firmata.PinStateResponse:
			return b.handlePinState(f.Payload)
		case firmata.StringData:
			b.handleString(f.Payload)
		default:
			return firmata.Ignored
		}
		return firmata.Handled
	}

	if len(f.Payload) < 2 {
		return firmata.Ignored
	}

	switch f.Kind() {
	case firmata.AnalogMessage:
		return b.handleAnalog(f.Channel(), firmata.Join14(f.Payload[0], f.Payload[1]))
	case firmata.DigitalMessage:
		b.handleDigitalPort(f.Channel(), firmata.Join14(f.Payload[0], f.Payload[1]))
		return firmata.Handled
	case firmata.ReportVersion:
		b.protocolVersion = fmt.Sprintf("%d.%d", f.Payload[0], f.Payload[1])
		b.logger.Info("Protocol version reported", zap.String("version", b.protocolVersion))
		b.Emit(EventVersion, b, map[string]any{"version": b.protocolVersion})
		return firmata.Handled
	}
	return firmata.Ignored
}

func (b *Board) handleAnalog(channel, raw int) firmata.Result {
	n, ok := b.analogPins[channel]
	if !ok {
		// without a mapping, channels follow the Uno layout
		if b.hasMapping {
			return firmata.Ignored
		}
		n = defaultFirstAnalogPin + channel
		if n < 0 || n >= len(b.pins) {
			return firmata.Ignored
		}
	}

	p := b.pins[n]
	value := float64(raw)
	if b.normalize {
		res := p.Resolution(pin.ModeAnalog)
		if res == 0 {
			res = defaultAnalogResolution
		}
		value = value / float64(int(1)<<res-1)
	}
	p.SetValue(value)
	return firmata.Handled
}

func (b *Board) handleDigitalPort(port, mask int) {
	base := port * firmata.TotalPinsPerPort
	for i := 0; i < firmata.TotalPinsPerPort; i++ {
		n := base + i
		if n >= len(b.pins) {
			return
		}
		p := b.pins[n]
		if p.Mode() != pin.ModeInput && p.Mode() != pin.ModePullUp {
			continue
		}
		p.SetValue(float64((mask >> i) & 0x01))
	}
}

func (b *Board) handleFirmware(payload []byte) {
	if len(payload) < 2 {
		return
	}
	b.firmwareVersion = fmt.Sprintf("%d.%d", payload[0], payload[1])
	b.firmwareName = firmata.DecodeString(payload[2:])

	b.logger.Info("Firmware reported",
		zap.String("name", b.firmwareName),
		zap.String("version", b.firmwareVersion))
	b.Emit(EventFirmware, b, map[string]any{
		"name":    b.firmwareName,
		"version": b.firmwareVersion,
	})
}

// handleCapabilities parses (mode, resolution) pairs per pin, each pin terminated by 0x7F
func (b *Board) handleCapabilities(payload []byte) {
	var tables []map[pin.Mode]int
	current := make(map[pin.Mode]int)
	for i := 0; i < len(payload); {
		if payload[i] == firmata.CapabilityEnd {
			tables = append(tables, current)
			current = make(map[pin.Mode]int)
			i++
			continue
		}
		if i+1 >= len(payload) {
			break
		}
		current[pin.Mode(payload[i])] = int(payload[i+1])
		i += 2
	}

	b.ensurePins(len(tables))
	for n, caps := range tables {
		b.pins[n].SetCapabilities(caps)
	}

	b.hasCapabilities = true
	b.logger.Info("Capabilities received", zap.Int("pins", len(tables)))
	b.checkReady()
}

func (b *Board) handleAnalogMapping(payload []byte) {
	b.ensurePins(len(payload))
	b.analogPins = make(map[int]int)
	for n, ch := range payload {
		if ch == firmata.CapabilityEnd {
			b.pins[n].SetAnalogChannel(-1)
			continue
		}
		b.pins[n].SetAnalogChannel(int(ch))
		b.analogPins[int(ch)] = n
	}

	b.hasMapping = true
	b.logger.Info("Analog mapping received", zap.Int("channels", len(b.analogPins)))
	b.checkReady()
}

// handlePinState parses [pin, mode, state lsb..msb in 7-bit groups]
func (b *Board) handlePinState(payload []byte) firmata.Result {
	if len(payload) < 2 {
		return firmata.Ignored
	}
	n := int(payload[0])
	if n >= len(b.pins) {
		return firmata.Ignored
	}

	state := 0
	for i, v := range payload[2:] {
		state |= int(v&firmata.DataMask) << (7 * i)
	}

	p := b.pins[n]
	mode := pin.Mode(payload[1])
	if p.Mode() != mode {
		b.applyMode(p, mode)
	}
	b.Emit(EventPinState, b, map[string]any{
		"pin":   n,
		"mode":  mode.String(),
		"state": state,
	})
	return firmata.Handled
}

func (b *Board) handleString(payload []byte) {
	s := firmata.DecodeString(payload)
	b.logger.Info("Board message", zap.String("text", s))
	b.Emit(EventString, b, map[string]any{"text": s})
}

// ForgetReport drops the capability and mapping report without touching the
// firmware. The next complete report emits EventReady again.
func (b *Board) ForgetReport() {
	b.ready = false
	b.hasCapabilities = false
	b.hasMapping = false
}

func (b *Board) checkReady() {
	if b.ready || !b.hasCapabilities || !b.hasMapping {
		return
	}
	b.ready = true
	b.Emit(EventReady, b, map[string]any{"pins": len(b.pins)})
}
