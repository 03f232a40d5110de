package output

import (
	"errors"
	"math"
	"time"

	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/generator"
	"github.com/KevinKickass/boardlink/internal/pin"
	"go.uber.org/zap"
)

var ErrMissingPin = errors.New("output: pin, mode setter and scheduler are required")

// EventIntensity is emitted whenever the LED is set directly
const EventIntensity = "intensity"

// Drive tells how intensity maps to the pin level
type Drive int

const (
	// Source lights the LED when the pin is high
	Source Drive = iota
	// Sink lights the LED when the pin is low
	Sink
)

func (d Drive) String() string {
	if d == Sink {
		return "sink"
	}
	return "source"
}

// ModeSetter configures pin modes with capability fallback
type ModeSetter interface {
	SetPinMode(n int, mode pin.Mode) (pin.Mode, error)
}

type LEDConfig struct {
	Drive Drive
	// FullScale is the pin value for full brightness, 1 when values are normalized
	FullScale float64
}

// LED drives one output pin, dimming through PWM when the pin supports it
type LED struct {
	*events.Dispatcher

	pin    *pin.Pin
	sched  clock.Scheduler
	cfg    LEDConfig
	pwm    bool
	logger *zap.Logger
}

// NewLED switches p to PWM, or digital output when PWM is unavailable
func NewLED(p *pin.Pin, modes ModeSetter, sched clock.Scheduler, cfg LEDConfig, logger *zap.Logger, opts ...events.Option) (*LED, error) {
	if p == nil || modes == nil || sched == nil {
		return nil, ErrMissingPin
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FullScale <= 0 {
		cfg.FullScale = 1
	}

	applied, err := modes.SetPinMode(p.Number(), pin.ModePWM)
	if err != nil {
		return nil, err
	}

	led := &LED{
		Dispatcher: events.NewDispatcher(opts...),
		pin:        p,
		sched:      sched,
		cfg:        cfg,
		pwm:        applied == pin.ModePWM,
		logger:     logger.With(zap.Int("pin", p.Number())),
	}
	if !led.pwm {
		led.logger.Warn("LED pin has no PWM, dimming falls back to on/off",
			zap.String("mode", applied.String()))
	}
	led.write(0)
	return led, nil
}

func (l *LED) Pin() *pin.Pin     { return l.pin }
func (l *LED) PWM() bool         { return l.pwm }
func (l *LED) Config() LEDConfig { return l.cfg }

// level maps an intensity in [0,1] to the pin value for the drive mode
func (l *LED) level(intensity float64) float64 {
	if l.cfg.Drive == Sink {
		intensity = 1 - intensity
	}
	return intensity * l.cfg.FullScale
}

// Intensity is the current brightness in [0,1]
func (l *LED) Intensity() float64 {
	v := l.pin.Value() / l.cfg.FullScale
	if l.cfg.Drive == Sink {
		v = 1 - v
	}
	return v
}

// IsOn reports whether the LED is lit at all
func (l *LED) IsOn() bool {
	return l.Intensity() > 0
}

func (l *LED) On()  { l.SetIntensity(1) }
func (l *LED) Off() { l.SetIntensity(0) }

func (l *LED) Toggle() {
	if l.IsOn() {
		l.Off()
		return
	}
	l.On()
}

// SetIntensity stops any fade or blink and sets the brightness
func (l *LED) SetIntensity(v float64) {
	l.pin.RemoveGenerator()
	v = math.Max(0, math.Min(1, v))
	if !l.pwm {
		v = math.Round(v)
	}
	l.write(v)
	l.Emit(EventIntensity, l, map[string]any{"intensity": v})
}

func (l *LED) write(intensity float64) {
	l.pin.SetValue(l.level(intensity))
}

// FadeTo ramps linearly to target over d. Without PWM it jumps to the
// nearest on/off level.
func (l *LED) FadeTo(target float64, d time.Duration) {
	target = math.Max(0, math.Min(1, target))
	if !l.pwm || d <= 0 {
		l.SetIntensity(target)
		return
	}

	from := l.level(l.Intensity())
	to := l.level(target)
	l.play(generator.Config{
		Wave:      generator.Linear,
		Frequency: 1 / d.Seconds(),
		Amplitude: to - from,
		Offset:    from,
		Times:     1,
	})
}

func (l *LED) FadeIn(d time.Duration)  { l.FadeTo(1, d) }
func (l *LED) FadeOut(d time.Duration) { l.FadeTo(0, d) }

// Blink alternates on and off every interval until stopped
func (l *LED) Blink(interval time.Duration) {
	if interval <= 0 {
		return
	}
	on, off := l.level(1), l.level(0)
	tick := interval / 4
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	l.play(generator.Config{
		Wave:      generator.Square,
		Frequency: 1 / (2 * interval.Seconds()),
		Amplitude: on - off,
		Offset:    off,
		Interval:  tick,
	})
}

// StopBlinking halts a blink or fade, leaving the current level
func (l *LED) StopBlinking() {
	l.pin.RemoveGenerator()
}

// Animating reports whether a fade or blink is attached and running
func (l *LED) Animating() bool {
	osc, ok := l.pin.Generator().(*generator.Oscillator)
	return ok && osc.Running()
}

func (l *LED) play(cfg generator.Config) {
	osc := generator.NewOscillator(l.sched, cfg)
	l.pin.AddGenerator(osc)
	osc.Start()
	osc.Update(0)
}
