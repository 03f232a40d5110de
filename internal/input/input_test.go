package input

import (
	"testing"
	"time"

	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/pin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func record(b *Button) *[]string {
	var seen []string
	for _, typ := range []string{EventPress, EventRelease, EventLongPress, EventSustainedPress} {
		typ := typ
		b.AddListener(typ, func(*events.Event) error {
			seen = append(seen, typ)
			return nil
		})
	}
	return &seen
}

func newButton(t *testing.T, wiring Wiring, idle float64) (*Button, *pin.Pin, *clock.Virtual) {
	t.Helper()
	v := clock.NewVirtual(epoch)
	p := pin.New(2, pin.ModeInput)
	p.SetValue(idle)
	b, err := NewButton(p, v, ButtonConfig{
		Wiring:            wiring,
		DebounceInterval:  20 * time.Millisecond,
		SustainedInterval: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	return b, p, v
}

func TestButton_BounceWithinDebounceIsSilent(t *testing.T) {
	b, p, v := newButton(t, PullUp, 1)
	seen := record(b)

	p.SetValue(0)
	v.Advance(5 * time.Millisecond)
	p.SetValue(1)
	v.Advance(5 * time.Millisecond)
	p.SetValue(0)
	v.Advance(5 * time.Millisecond)
	p.SetValue(1)
	assert.Equal(t, DebouncePending, b.State())

	v.Advance(100 * time.Millisecond)
	assert.Empty(t, *seen)
	assert.Equal(t, Idle, b.State())
	assert.False(t, b.IsPressed())
}

func TestButton_PressLongPressSustainedRelease(t *testing.T) {
	b, p, v := newButton(t, PullDown, 0)
	seen := record(b)

	p.SetValue(1)
	v.Advance(19 * time.Millisecond)
	assert.Empty(t, *seen)
	v.Advance(time.Millisecond)
	assert.Equal(t, []string{EventPress}, *seen)
	assert.Equal(t, Pressed, b.State())

	v.Advance(500 * time.Millisecond)
	assert.Equal(t, []string{EventPress, EventLongPress}, *seen)
	assert.Equal(t, Sustained, b.State())

	v.Advance(1000 * time.Millisecond)
	assert.Equal(t, []string{EventPress, EventLongPress, EventSustainedPress, EventSustainedPress}, *seen)

	p.SetValue(0)
	v.Advance(20 * time.Millisecond)
	v.Advance(2 * time.Second)
	assert.Equal(t, []string{EventPress, EventLongPress, EventSustainedPress, EventSustainedPress, EventRelease}, *seen)
	assert.Equal(t, Idle, b.State())
}

func TestButton_BouncyPressYieldsOnePress(t *testing.T) {
	b, p, v := newButton(t, PullUp, 1)
	seen := record(b)

	p.SetValue(0)
	v.Advance(5 * time.Millisecond)
	p.SetValue(1)
	v.Advance(5 * time.Millisecond)
	p.SetValue(0)
	v.Advance(30 * time.Millisecond)

	assert.Equal(t, []string{EventPress}, *seen)
	assert.True(t, b.IsPressed())
}

func TestButton_CloseStopsTimers(t *testing.T) {
	b, p, v := newButton(t, PullDown, 0)
	seen := record(b)

	p.SetValue(1)
	v.Advance(20 * time.Millisecond)
	b.Close()
	v.Advance(2 * time.Second)
	p.SetValue(0)
	v.Advance(time.Second)

	assert.Equal(t, []string{EventPress}, *seen)
	assert.Equal(t, 0, v.Pending())
}

func TestNewButton_RequiresPin(t *testing.T) {
	_, err := NewButton(nil, clock.NewVirtual(epoch), ButtonConfig{})
	assert.ErrorIs(t, err, ErrMissingPin)
}

func TestPotentiometer_ScalesToRange(t *testing.T) {
	p := pin.New(14, pin.ModeAnalog)
	pot, err := NewPotentiometer(p, PotentiometerConfig{Min: 0, Max: 100, Samples: 1})
	require.NoError(t, err)

	var got []float64
	pot.AddListener(EventChange, func(ev *events.Event) error {
		v, _ := ev.Float("value")
		got = append(got, v)
		return nil
	})

	p.SetValue(0.5)
	p.SetValue(2)
	require.Len(t, got, 2)
	assert.InDelta(t, 50, got[0], 1e-9)
	assert.InDelta(t, 100, got[1], 1e-9)
	assert.Equal(t, 2.0, p.Maximum())
}

func TestPotentiometer_Smooths(t *testing.T) {
	p := pin.New(14, pin.ModeAnalog)
	pot, err := NewPotentiometer(p, PotentiometerConfig{Min: 0, Max: 90, Samples: 3, Smoothing: false})
	require.NoError(t, err)

	p.SetValue(1)
	assert.InDelta(t, 30, pot.Value(), 1e-9)
	p.SetValue(1)
	assert.InDelta(t, 60, pot.Value(), 1e-9)
	p.SetValue(1)
	assert.InDelta(t, 90, pot.Value(), 1e-9)

	pot.Close()
	assert.Empty(t, p.Filters())
}
