package output

import (
	"testing"
	"time"

	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/pin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// modes grants PWM only when pwm is set, like a board with capability data
type modes struct {
	pins map[int]*pin.Pin
	pwm  bool
}

func (m *modes) SetPinMode(n int, mode pin.Mode) (pin.Mode, error) {
	applied := mode
	if mode == pin.ModePWM && !m.pwm {
		applied = pin.ModeOutput
	}
	m.pins[n].SetMode(applied)
	return applied, nil
}

func newLED(t *testing.T, pwm bool, cfg LEDConfig, logger *zap.Logger) (*LED, *pin.Pin, *clock.Virtual) {
	t.Helper()
	p := pin.New(9, pin.ModeUnknown)
	v := clock.NewVirtual(epoch)
	led, err := NewLED(p, &modes{pins: map[int]*pin.Pin{9: p}, pwm: pwm}, v, cfg, logger)
	require.NoError(t, err)
	return led, p, v
}

func TestLED_SourceAndSink(t *testing.T) {
	src, sp, _ := newLED(t, true, LEDConfig{Drive: Source}, nil)
	sink, kp, _ := newLED(t, true, LEDConfig{Drive: Sink}, nil)

	assert.Equal(t, pin.ModePWM, sp.Mode())
	assert.Equal(t, 0.0, sp.Value())
	assert.Equal(t, 1.0, kp.Value())

	src.SetIntensity(0.25)
	sink.SetIntensity(0.25)
	assert.Equal(t, 0.25, sp.Value())
	assert.Equal(t, 0.75, kp.Value())
	assert.InDelta(t, 0.25, sink.Intensity(), 1e-9)

	sink.Toggle()
	assert.False(t, sink.IsOn())
	sink.Toggle()
	assert.Equal(t, 0.0, kp.Value())
}

func TestLED_FullScale(t *testing.T) {
	led, p, _ := newLED(t, true, LEDConfig{FullScale: 255}, nil)
	led.SetIntensity(0.5)
	assert.Equal(t, 127.5, p.Value())
	assert.InDelta(t, 0.5, led.Intensity(), 1e-9)
}

func TestLED_FadeIn(t *testing.T) {
	led, p, v := newLED(t, true, LEDConfig{}, nil)
	led.FadeIn(100 * time.Millisecond)
	assert.True(t, led.Animating())

	v.Advance(50 * time.Millisecond)
	assert.Greater(t, p.Value(), 0.0)
	assert.Less(t, p.Value(), 1.0)

	v.Advance(150 * time.Millisecond)
	assert.Equal(t, 1.0, p.Value())
	assert.False(t, led.Animating())
}

func TestLED_NoPWMFallsBackToDigital(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	led, p, v := newLED(t, false, LEDConfig{}, zap.New(core))

	assert.False(t, led.PWM())
	assert.Equal(t, pin.ModeOutput, p.Mode())
	assert.Equal(t, 1, logs.Len())

	led.SetIntensity(0.7)
	assert.Equal(t, 1.0, p.Value())

	led.FadeOut(time.Second)
	assert.Equal(t, 0.0, p.Value())
	assert.False(t, led.Animating())
	assert.Equal(t, 0, v.Pending())
}

func TestLED_BlinkAndStop(t *testing.T) {
	led, p, v := newLED(t, false, LEDConfig{}, nil)
	led.Blink(100 * time.Millisecond)
	assert.Equal(t, 1.0, p.Value())

	v.Advance(60 * time.Millisecond)
	assert.Equal(t, 1.0, p.Value())
	v.Advance(90 * time.Millisecond)
	assert.Equal(t, 0.0, p.Value())
	v.Advance(100 * time.Millisecond)
	assert.Equal(t, 1.0, p.Value())

	led.StopBlinking()
	assert.Nil(t, p.Generator())
	v.Advance(time.Second)
	assert.Equal(t, 1.0, p.Value())
	assert.Equal(t, 0, v.Pending())
}
