package generator

import (
	"testing"
	"time"

	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func collect(o *Oscillator) *[]float64 {
	var values []float64
	o.AddListener(EventUpdate, func(ev *events.Event) error {
		v, _ := ev.Float("value")
		values = append(values, v)
		return nil
	})
	return &values
}

func TestWaves(t *testing.T) {
	assert.InDelta(t, 0.0, Sine.Eval(0, 0), 1e-9)
	assert.InDelta(t, 1.0, Sine.Eval(0.5, 0), 1e-9)
	assert.InDelta(t, 0.5, Sine.Eval(0.25, 0), 1e-9)

	assert.Equal(t, 1.0, Square.Eval(0.25, 0))
	assert.Equal(t, 0.0, Square.Eval(0.75, 0))
	assert.Equal(t, 1.0, Square.Eval(1.25, 0))

	assert.InDelta(t, 0.5, Triangle.Eval(0.25, 0), 1e-9)
	assert.InDelta(t, 1.0, Triangle.Eval(0.5, 0), 1e-9)
	assert.InDelta(t, 0.5, Triangle.Eval(0.75, 0), 1e-9)

	assert.InDelta(t, 0.75, Saw.Eval(0.25, 0), 1e-9)
	assert.InDelta(t, 0.25, Saw.Eval(0.75, 0), 1e-9)

	assert.Equal(t, 0.0, Impulse.Eval(0.5, 0.4))
	assert.Equal(t, 1.0, Impulse.Eval(1.05, 0.95))
	assert.Equal(t, 1.0, Impulse.Eval(3.5, 1.5))

	assert.InDelta(t, 0.3, Linear.Eval(0.3, 0), 1e-9)
	assert.Equal(t, 1.0, Linear.Eval(4, 0))
}

func TestParseWave(t *testing.T) {
	w, err := ParseWave("sawtooth")
	require.NoError(t, err)
	assert.Equal(t, Saw, w)
	assert.Equal(t, "saw", w.String())

	_, err = ParseWave("noise")
	assert.Error(t, err)
}

func TestOscillator_ExplicitUpdate(t *testing.T) {
	v := clock.NewVirtual(epoch)
	o := NewOscillator(v, Config{Wave: Triangle, Frequency: 1, Amplitude: 2, Offset: 1})
	values := collect(o)

	o.Update(250 * time.Millisecond)
	o.Update(250 * time.Millisecond)
	o.Update(250 * time.Millisecond)

	assert.InDeltaSlice(t, []float64{2, 3, 2}, *values, 1e-9)
	assert.InDelta(t, 0.75, o.Elapsed(), 1e-9)
}

func TestOscillator_StopsAfterTimes(t *testing.T) {
	v := clock.NewVirtual(epoch)
	o := NewOscillator(v, Config{Wave: Sine, Frequency: 1, Amplitude: 1, Offset: 0.25, Times: 2})
	values := collect(o)

	o.Start()
	require.True(t, o.Running())

	v.Advance(2100 * time.Millisecond)
	assert.False(t, o.Running())
	assert.Equal(t, 0.25, o.Value())

	n := len(*values)
	require.Greater(t, n, 50)
	assert.Equal(t, 0.25, (*values)[n-1])

	v.Advance(5 * time.Second)
	assert.Len(t, *values, n)
}

func TestOscillator_LinearSettlesAtTarget(t *testing.T) {
	v := clock.NewVirtual(epoch)
	o := NewOscillator(v, Config{Wave: Linear, Frequency: 2, Amplitude: 0.8, Offset: 0.1, Times: 1, Interval: 50 * time.Millisecond})

	o.Start()
	v.Advance(time.Second)

	assert.False(t, o.Running())
	assert.InDelta(t, 0.9, o.Value(), 1e-9)
}

func TestOscillator_ResetRewinds(t *testing.T) {
	v := clock.NewVirtual(epoch)
	o := NewOscillator(v, Config{Wave: Linear, Frequency: 1, Amplitude: 1})

	o.Update(500 * time.Millisecond)
	assert.InDelta(t, 0.5, o.Value(), 1e-9)

	o.Reset()
	o.Update(100 * time.Millisecond)
	assert.InDelta(t, 0.1, o.Value(), 1e-9)
}

func TestOscillator_StopHaltsTicks(t *testing.T) {
	v := clock.NewVirtual(epoch)
	o := NewOscillator(v, Config{Wave: Square, Frequency: 1, Amplitude: 1, Interval: 10 * time.Millisecond})
	values := collect(o)

	o.Start()
	v.Advance(100 * time.Millisecond)
	assert.Len(t, *values, 10)

	o.Stop()
	v.Advance(100 * time.Millisecond)
	assert.Len(t, *values, 10)
}
