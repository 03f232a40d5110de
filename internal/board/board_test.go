package board

import (
	"testing"
	"time"

	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/firmata"
	"github.com/KevinKickass/boardlink/internal/i2c"
	"github.com/KevinKickass/boardlink/internal/pin"
	"github.com/KevinKickass/boardlink/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	frames [][]byte
}

func (s *recordingSender) Send(p []byte) bool {
	s.frames = append(s.frames, append([]byte(nil), p...))
	return true
}

func (s *recordingSender) last() []byte {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func newBoard(t *testing.T, opts ...Option) (*Board, *recordingSender) {
	t.Helper()
	s := &recordingSender{}
	b, err := New(s, clock.NewVirtual(time.Unix(0, 0)), opts...)
	require.NoError(t, err)
	return b, s
}

// three pins: 0 digital in/out, 1 output/pwm, 2 analog A0
var handshake = []byte{
	0xF0, 0x6C,
	0x00, 0x01, 0x01, 0x01, 0x7F,
	0x01, 0x01, 0x03, 0x08, 0x7F,
	0x02, 0x0A, 0x7F,
	0xF7,
	0xF0, 0x6A, 0x7F, 0x7F, 0x00, 0xF7,
}

func TestNew_RequiresSender(t *testing.T) {
	_, err := New(nil, clock.NewVirtual(time.Unix(0, 0)))
	assert.ErrorIs(t, err, ErrNoSender)
	_, err = New(&recordingSender{}, nil)
	assert.ErrorIs(t, err, ErrNoScheduler)
}

func TestCapabilitiesAndMapping(t *testing.T) {
	b, _ := newBoard(t, WithPinCount(0))
	ready := 0
	b.AddListener(EventReady, func(*events.Event) error { ready++; return nil })

	b.HandleBytes(handshake)
	assert.Equal(t, 1, ready)
	assert.True(t, b.Ready())
	require.Len(t, b.Pins(), 3)

	p1, err := b.Pin(1)
	require.NoError(t, err)
	assert.Equal(t, 8, p1.Resolution(pin.ModePWM))
	assert.False(t, p1.Supports(pin.ModeAnalog))

	a0, err := b.AnalogPin(0)
	require.NoError(t, err)
	assert.Equal(t, 2, a0.Number())
	assert.Equal(t, 0, a0.AnalogChannel())

	b.HandleBytes([]byte{0xE0, 0x7F, 0x07})
	assert.Equal(t, 1.0, a0.Value())

	// a second mapping does not emit ready again
	b.HandleBytes(handshake)
	assert.Equal(t, 1, ready)
}

func TestForgetReport_ReadyAgain(t *testing.T) {
	b, s := newBoard(t, WithPinCount(0))
	ready := 0
	b.AddListener(EventReady, func(*events.Event) error { ready++; return nil })

	b.HandleBytes(handshake)
	require.Equal(t, 1, ready)

	sent := len(s.frames)
	b.ForgetReport()
	assert.False(t, b.Ready())
	assert.Len(t, s.frames, sent)

	b.HandleBytes(handshake)
	assert.Equal(t, 2, ready)
	assert.True(t, b.Ready())
	assert.Len(t, b.Pins(), 3)
}

func TestAnalog_RawWhenNotNormalized(t *testing.T) {
	b, _ := newBoard(t, WithNormalize(false))
	b.HandleBytes([]byte{0xE1, 0x10, 0x04})

	p, err := b.Pin(15)
	require.NoError(t, err)
	assert.Equal(t, 528.0, p.Value())
}

func TestSetPinMode_FallsBackWithWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b, s := newBoard(t, WithPinCount(0), WithLogger(zap.New(core)))
	b.HandleBytes(handshake)

	applied, err := b.SetPinMode(0, pin.ModePWM)
	require.NoError(t, err)
	assert.Equal(t, pin.ModeOutput, applied)
	assert.Equal(t, []byte{0xF4, 0x00, 0x01}, s.last())
	assert.Equal(t, 1, logs.FilterMessage("Pin mode unsupported, falling back").Len())

	_, err = b.SetPinMode(9, pin.ModeOutput)
	assert.ErrorIs(t, err, ErrPinNotFound)
}

func TestOutputPins_WriteOnChange(t *testing.T) {
	b, s := newBoard(t, WithPinCount(0))
	b.HandleBytes(handshake)

	_, err := b.SetPinMode(1, pin.ModePWM)
	require.NoError(t, err)
	p1, _ := b.Pin(1)
	p1.SetValue(0.5)
	assert.Equal(t, []byte{0xE1, 0x00, 0x01}, s.last())

	require.NoError(t, b.DigitalWrite(0, true))
	assert.Equal(t, []byte{0x90, 0x01, 0x00}, s.last())

	// switching back to input unbinds the writer
	_, err = b.SetPinMode(0, pin.ModeInput)
	require.NoError(t, err)
	sent := len(s.frames)
	p0, _ := b.Pin(0)
	p0.SetValue(0)
	assert.Len(t, s.frames, sent)
}

func TestOutputPins_ExtendedAnalog(t *testing.T) {
	b, s := newBoard(t, WithPinCount(24), WithNormalize(false))
	_, err := b.SetPinMode(20, pin.ModePWM)
	require.NoError(t, err)

	p, _ := b.Pin(20)
	p.SetValue(300)
	assert.Equal(t, []byte{0xF0, 0x6F, 0x14, 0x2C, 0x02, 0xF7}, s.last())
}

func TestDigitalInputPort(t *testing.T) {
	b, _ := newBoard(t)
	_, err := b.SetPinMode(2, pin.ModeInput)
	require.NoError(t, err)
	_, err = b.SetPinMode(3, pin.ModeOutput)
	require.NoError(t, err)

	var changes []any
	b.AddListener(EventPinChange, func(ev *events.Event) error {
		changes = append(changes, ev.Payload["pin"])
		return nil
	})

	b.HandleBytes([]byte{0x90, 0x0C, 0x00})
	p2, _ := b.Pin(2)
	p3, _ := b.Pin(3)
	assert.Equal(t, 1.0, p2.Value())
	assert.Equal(t, 0.0, p3.Value())
	assert.Equal(t, []any{2}, changes)
}

func TestFirmwareVersionAndString(t *testing.T) {
	b, _ := newBoard(t)
	var text string
	b.AddListener(EventString, func(ev *events.Event) error {
		text, _ = ev.Payload["text"].(string)
		return nil
	})

	frame := append([]byte{0xF0, 0x79, 0x02, 0x05}, firmata.EncodeString("Std")...)
	frame = append(frame, 0xF7, 0xF9, 0x02, 0x06)
	frame = append(frame, firmata.NewSysex(firmata.StringData, firmata.EncodeString("hello")...).Encode()...)
	b.HandleBytes(frame)

	assert.Equal(t, "Std", b.FirmwareName())
	assert.Equal(t, "2.5", b.FirmwareVersion())
	assert.Equal(t, "2.6", b.ProtocolVersion())
	assert.Equal(t, "hello", text)
}

func TestPinStateResponse(t *testing.T) {
	b, _ := newBoard(t)
	var state any
	b.AddListener(EventPinState, func(ev *events.Event) error {
		state = ev.Payload["state"]
		return nil
	})

	b.HandleBytes([]byte{0xF0, 0x6E, 0x05, 0x03, 0x7F, 0x01, 0xF7})
	p, _ := b.Pin(5)
	assert.Equal(t, pin.ModePWM, p.Mode())
	assert.Equal(t, 255, state)
}

func TestChannelsShareTheDemux(t *testing.T) {
	b, s := newBoard(t)
	dev, err := b.I2C(0x09)
	require.NoError(t, err)
	same, err := b.I2C(0x09)
	require.NoError(t, err)
	assert.Same(t, dev, same)

	var data []int
	dev.AddListener(i2c.EventData, func(ev *events.Event) error {
		data = i2c.Data(ev)
		return nil
	})

	b.HandleBytes([]byte{0xF0, 0x77, 0x09, 0x00, 0x00, 0x00, 0x2A, 0x00, 0xF7})
	assert.Equal(t, []int{42}, data)

	_, err = dev.Write(0x01)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0x76, 0x09, 0x00, 0x01, 0x00, 0xF7}, s.last())
}

func TestAttach(t *testing.T) {
	b, _ := newBoard(t)
	src := events.NewDispatcher()
	b.Attach(src)

	src.Emit(transport.EventMessage, nil, map[string]any{"data": []byte{0xF9, 0x02}})
	src.Emit(transport.EventMessage, nil, map[string]any{"data": []byte{0x05}})
	assert.Equal(t, "2.5", b.ProtocolVersion())
}

func TestHandshakeAndReset(t *testing.T) {
	b, s := newBoard(t)
	b.Handshake(19 * time.Millisecond)

	require.Len(t, s.frames, 5)
	assert.Equal(t, []byte{0xF9}, s.frames[0])
	assert.Equal(t, []byte{0xF0, 0x79, 0xF7}, s.frames[1])
	assert.Equal(t, []byte{0xF0, 0x6B, 0xF7}, s.frames[2])
	assert.Equal(t, []byte{0xF0, 0x69, 0xF7}, s.frames[3])
	assert.Equal(t, []byte{0xF0, 0x7A, 0x13, 0x00, 0xF7}, s.frames[4])

	b.Reset()
	assert.Equal(t, []byte{0xFF}, s.last())
	assert.False(t, b.Ready())
}

func TestReporting(t *testing.T) {
	b, s := newBoard(t)
	b.EnableDigitalReporting(1, true)
	assert.Equal(t, []byte{0xD1, 0x01}, s.last())
	p9, _ := b.Pin(9)
	assert.True(t, p9.ReportingEnabled())

	b.EnableAnalogReporting(0, true)
	assert.Equal(t, []byte{0xC0, 0x01}, s.last())
	a0, _ := b.Pin(14)
	assert.True(t, a0.ReportingEnabled())
}
