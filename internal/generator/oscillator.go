package generator

import (
	"time"

	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/events"
)

// EventUpdate carries every newly computed value
const EventUpdate = "update"

// DefaultInterval is the tick period when none is configured (~30 Hz)
const DefaultInterval = 33 * time.Millisecond

// Config describes an oscillator. Times 0 runs forever.
type Config struct {
	Wave      Wave
	Frequency float64
	Amplitude float64
	Offset    float64
	Phase     float64
	Times     int
	Interval  time.Duration
}

// Oscillator produces amplitude*wave(frequency*(t+phase))+offset on every tick
type Oscillator struct {
	*events.Dispatcher

	sched clock.Scheduler
	timer *clock.Timer

	wave      Wave
	frequency float64
	amplitude float64
	offset    float64
	phase     float64
	times     int

	elapsed  float64
	lastPos  float64
	lastTick time.Time
	value    float64
}

// NewOscillator creates a stopped oscillator
func NewOscillator(sched clock.Scheduler, cfg Config, opts ...events.Option) *Oscillator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	o := &Oscillator{
		Dispatcher: events.NewDispatcher(opts...),
		sched:      sched,
		timer:      clock.NewTimer(sched, cfg.Interval, 0, opts...),
		wave:       cfg.Wave,
		frequency:  cfg.Frequency,
		amplitude:  cfg.Amplitude,
		offset:     cfg.Offset,
		phase:      cfg.Phase,
		times:      cfg.Times,
	}
	o.value = o.offset
	o.timer.AddListener(clock.EventTick, func(*events.Event) error {
		o.Update(-1)
		return nil
	})
	return o
}

func (o *Oscillator) Value() float64       { return o.value }
func (o *Oscillator) Running() bool        { return o.timer.Running() }
func (o *Oscillator) Wave() Wave           { return o.wave }
func (o *Oscillator) Frequency() float64   { return o.frequency }
func (o *Oscillator) Amplitude() float64   { return o.amplitude }
func (o *Oscillator) Offset() float64      { return o.offset }
func (o *Oscillator) Phase() float64       { return o.phase }
func (o *Oscillator) Times() int           { return o.times }
func (o *Oscillator) Elapsed() float64     { return o.elapsed }
func (o *Oscillator) SetWave(w Wave)       { o.wave = w }
func (o *Oscillator) SetFrequency(f float64) { o.frequency = f }
func (o *Oscillator) SetAmplitude(a float64) { o.amplitude = a }
func (o *Oscillator) SetOffset(v float64)  { o.offset = v }
func (o *Oscillator) SetPhase(p float64)   { o.phase = p }
func (o *Oscillator) SetTimes(n int)       { o.times = n }

// Start begins ticking from the current elapsed time
func (o *Oscillator) Start() {
	if o.timer.Running() {
		return
	}
	o.lastTick = o.sched.Now()
	o.timer.Start()
}

// Stop halts ticking without emitting
func (o *Oscillator) Stop() {
	o.timer.Stop()
}

// Reset rewinds to the beginning of the waveform
func (o *Oscillator) Reset() {
	o.elapsed = 0
	o.lastPos = 0
	o.lastTick = o.sched.Now()
}

// Update advances by interval and emits the new value. A negative interval
// uses the wall-clock time since the previous tick.
func (o *Oscillator) Update(interval time.Duration) {
	now := o.sched.Now()
	if interval < 0 {
		interval = now.Sub(o.lastTick)
	}
	o.lastTick = now
	o.elapsed += interval.Seconds()

	if o.times != 0 && o.frequency*o.elapsed >= float64(o.times) {
		o.Stop()
		o.value = o.settleValue()
		o.Emit(EventUpdate, o, map[string]any{"value": o.value, "done": true})
		return
	}

	pos := o.frequency * (o.elapsed + o.phase)
	o.value = o.amplitude*o.wave.Eval(pos, o.lastPos) + o.offset
	o.lastPos = pos
	o.Emit(EventUpdate, o, map[string]any{"value": o.value})
}

func (o *Oscillator) settleValue() float64 {
	if o.wave == Linear {
		return o.amplitude*Linear.Eval(1, 0) + o.offset
	}
	return o.offset
}
