package board

import (
	"fmt"
	"math"
	"time"

	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/firmata"
	"github.com/KevinKickass/boardlink/internal/pin"
	"go.uber.org/zap"
)

// fallbacks lists the nearest mode to try when a pin lacks the requested one
var fallbacks = map[pin.Mode][]pin.Mode{
	pin.ModePWM:    {pin.ModeOutput},
	pin.ModeServo:  {pin.ModePWM, pin.ModeOutput},
	pin.ModePullUp: {pin.ModeInput},
	pin.ModeAnalog: {pin.ModeInput},
}

// SetPinMode configures pin n. An unsupported mode degrades to the nearest
// supported one with a warning; the applied mode is returned.
func (b *Board) SetPinMode(n int, mode pin.Mode) (pin.Mode, error) {
	p, err := b.Pin(n)
	if err != nil {
		return pin.ModeUnknown, err
	}

	applied := mode
	if !p.Supports(mode) {
		applied = pin.ModeUnknown
		for _, alt := range fallbacks[mode] {
			if p.Supports(alt) {
				applied = alt
				break
			}
		}
		if applied == pin.ModeUnknown {
			b.logger.Warn("Pin mode unsupported, no fallback available",
				zap.Int("pin", n),
				zap.String("mode", mode.String()))
			return p.Mode(), nil
		}
		b.logger.Warn("Pin mode unsupported, falling back",
			zap.Int("pin", n),
			zap.String("requested", mode.String()),
			zap.String("applied", applied.String()))
	}

	b.send(firmata.NewMessage(firmata.SetPinMode, byte(n), byte(applied)))
	b.applyMode(p, applied)
	return applied, nil
}

// applyMode updates the local pin and its output binding
func (b *Board) applyMode(p *pin.Pin, mode pin.Mode) {
	p.SetMode(mode)

	n := p.Number()
	id, bound := b.outputs[n]
	switch {
	case mode.IsOutput() && !bound:
		b.outputs[n] = p.AddListener(pin.EventChange, func(ev *events.Event) error {
			b.writePin(p)
			return nil
		})
	case !mode.IsOutput() && bound:
		p.RemoveListener(pin.EventChange, id)
		delete(b.outputs, n)
	}
}

// writePin puts an output pin's value on the wire
func (b *Board) writePin(p *pin.Pin) {
	switch p.Mode() {
	case pin.ModeOutput:
		b.writeDigitalPort(p.Number() / firmata.TotalPinsPerPort)
	case pin.ModePWM, pin.ModeServo:
		b.writeAnalog(p.Number(), b.rawOutput(p))
	}
}

func (b *Board) writeDigitalPort(port int) {
	mask := 0
	base := port * firmata.TotalPinsPerPort
	for i := 0; i < firmata.TotalPinsPerPort && base+i < len(b.pins); i++ {
		p := b.pins[base+i]
		if p.Mode() == pin.ModeOutput && p.Value() >= 0.5 {
			mask |= 1 << i
		}
	}
	lsb, msb := firmata.Split14(mask)
	b.send(firmata.NewMessage(firmata.DigitalMessage|byte(port&0x0F), lsb, msb))
}

// rawOutput converts a pin value to the integer the firmware expects
func (b *Board) rawOutput(p *pin.Pin) int {
	v := p.Value()
	if b.normalize {
		v = math.Max(0, math.Min(1, v))
		if p.Mode() == pin.ModeServo {
			v *= defaultServoRange
		} else {
			res := p.Resolution(pin.ModePWM)
			if res == 0 {
				res = defaultPWMResolution
			}
			v *= float64(int(1)<<res - 1)
		}
	}
	if v < 0 {
		return 0
	}
	return int(math.Round(v))
}

// writeAnalog uses the short analog message when pin and value fit, extended analog otherwise
func (b *Board) writeAnalog(n, value int) {
	if n <= 0x0F && value <= firmata.Max14 {
		lsb, msb := firmata.Split14(value)
		b.send(firmata.NewMessage(firmata.AnalogMessage|byte(n), lsb, msb))
		return
	}

	payload := []byte{byte(n)}
	for v := value; ; v >>= 7 {
		payload = append(payload, byte(v&firmata.DataMask))
		if v>>7 == 0 {
			break
		}
	}
	b.send(firmata.NewSysex(firmata.ExtendedAnalog, payload...))
}

// DigitalWrite sets an output pin through the pin model so listeners see the change
func (b *Board) DigitalWrite(n int, on bool) error {
	p, err := b.Pin(n)
	if err != nil {
		return err
	}
	if p.Mode() != pin.ModeOutput {
		if _, err := b.SetPinMode(n, pin.ModeOutput); err != nil {
			return err
		}
	}
	v := 0.0
	if on {
		v = 1
	}
	p.SetValue(v)
	return nil
}

// EnableDigitalReporting turns streaming of a digital port on or off
func (b *Board) EnableDigitalReporting(port int, on bool) bool {
	base := port * firmata.TotalPinsPerPort
	for i := 0; i < firmata.TotalPinsPerPort && base+i < len(b.pins); i++ {
		b.pins[base+i].SetReportingEnabled(on)
	}
	return b.send(firmata.NewMessage(firmata.ReportDigital|byte(port&0x0F), boolByte(on)))
}

// EnableAnalogReporting turns streaming of analog channel ch on or off
func (b *Board) EnableAnalogReporting(ch int, on bool) bool {
	if p, err := b.AnalogPin(ch); err == nil {
		p.SetReportingEnabled(on)
	}
	return b.send(firmata.NewMessage(firmata.ReportAnalog|byte(ch&0x0F), boolByte(on)))
}

// SetSamplingInterval sets how often the firmware reports analog values
func (b *Board) SetSamplingInterval(d time.Duration) (bool, error) {
	ms := int(d / time.Millisecond)
	data, err := firmata.Encode7(ms)
	if err != nil {
		return false, fmt.Errorf("sampling interval %s: %w", d, err)
	}
	return b.SendSysex(firmata.SamplingInterval, data...), nil
}

func (b *Board) QueryVersion() bool {
	return b.send(firmata.NewMessage(firmata.ReportVersion))
}

func (b *Board) QueryFirmware() bool {
	return b.SendSysex(firmata.ReportFirmware)
}

func (b *Board) QueryCapabilities() bool {
	return b.SendSysex(firmata.CapabilityQuery)
}

func (b *Board) QueryAnalogMapping() bool {
	return b.SendSysex(firmata.AnalogMappingQuery)
}

func (b *Board) QueryPinState(n int) bool {
	return b.SendSysex(firmata.PinStateQuery, byte(n))
}

// Handshake asks for everything the board context learns on connect
func (b *Board) Handshake(sampling time.Duration) {
	b.QueryVersion()
	b.QueryFirmware()
	b.QueryCapabilities()
	b.QueryAnalogMapping()
	if sampling > 0 {
		if _, err := b.SetSamplingInterval(sampling); err != nil {
			b.logger.Warn("Invalid sampling interval", zap.Error(err))
		}
	}
}

// SendSysex frames and sends a sysex message
func (b *Board) SendSysex(command byte, payload ...byte) bool {
	return b.send(firmata.NewSysex(command, payload...))
}

// SendString sends text to the firmware
func (b *Board) SendString(s string) bool {
	return b.SendSysex(firmata.StringData, firmata.EncodeString(s)...)
}

// ConfigureI2C enables the bus with the given read delay
func (b *Board) ConfigureI2C(delayMicros int) (bool, error) {
	data, err := firmata.Encode7(delayMicros)
	if err != nil {
		return false, fmt.Errorf("i2c config: %w", err)
	}
	return b.SendSysex(firmata.I2CConfig, data...), nil
}

// Reset asks the firmware to reset and forgets reported state
func (b *Board) Reset() bool {
	b.ForgetReport()
	return b.send(firmata.NewMessage(firmata.SystemReset))
}

func (b *Board) send(f firmata.Frame) bool {
	ok := b.sender.Send(f.Encode())
	if !ok {
		b.logger.Debug("Frame not sent", zap.String("frame", f.String()))
	}
	return ok
}

func boolByte(on bool) byte {
	if on {
		return 1
	}
	return 0
}
