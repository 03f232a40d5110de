package devices

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/boardlink/internal/board"
	"github.com/KevinKickass/boardlink/internal/clock"
	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/pin"
	"github.com/KevinKickass/boardlink/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const benchProfile = `
profile:
  id: bench
  name: Bench Uno
  board: uno
components:
  - name: btn
    type: button
    pin: 2
    wiring: pull_up
  - name: knob
    type: potentiometer
    analog_channel: 0
    min: 0
    max: 100
    samples: 1
  - name: led
    type: led
    pin: 9
  - name: temp
    type: i2c
    address: 72
    register: 0
    read_bytes: 2
    continuous: true
  - name: gps
    type: serial
    port: 1
    baud: 9600
`

const shieldedProfile = `{
  "profile": {"id": "shielded", "name": "Uno with keypad"},
  "shields": [{"module": "keypad", "prefix": "pad", "pin_offset": 4}],
  "components": [{"name": "led", "type": "led", "pin": 13}]
}`

const keypadShield = `
shield:
  id: keypad
  vendor: acme
components:
  - name: a
    type: button
    pin: 0
  - name: b
    type: button
    pin: 1
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newLoader(t *testing.T) (*ProfileLoader, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "bench.yaml", benchProfile)
	writeFile(t, dir, "shielded.json", shieldedProfile)
	writeFile(t, dir, "keypad.yml", keypadShield)

	loader, err := NewProfileLoader([]string{filepath.Join(dir, "missing"), dir})
	require.NoError(t, err)
	return loader, dir
}

type recordingSender struct {
	frames [][]byte
}

func (s *recordingSender) Send(p []byte) bool {
	s.frames = append(s.frames, append([]byte(nil), p...))
	return true
}

func (s *recordingSender) sent(frame ...byte) bool {
	for _, f := range s.frames {
		if string(f) == string(frame) {
			return true
		}
	}
	return false
}

func newManager(t *testing.T) (*Manager, *board.Board, *recordingSender, *clock.Virtual) {
	t.Helper()
	loader, _ := newLoader(t)
	s := &recordingSender{}
	v := clock.NewVirtual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	b, err := board.New(s, v)
	require.NoError(t, err)
	return NewManager(loader, b, Defaults{}, nil), b, s, v
}

func TestLoader_YAMLAndJSON(t *testing.T) {
	loader, _ := newLoader(t)

	bench, err := loader.Load("bench")
	require.NoError(t, err)
	assert.Equal(t, "bench", bench.Profile.ID)
	require.Len(t, bench.Components, 5)
	assert.Equal(t, types.ComponentButton, bench.Components[0].Type)
	require.NotNil(t, bench.Components[1].AnalogChannel)
	assert.Equal(t, 0, *bench.Components[1].AnalogChannel)

	again, err := loader.Load("bench")
	require.NoError(t, err)
	assert.Same(t, bench, again)

	shielded, err := loader.Load("shielded")
	require.NoError(t, err)
	require.Len(t, shielded.Shields, 1)
	assert.Equal(t, 4, shielded.Shields[0].PinOffset)
}

func TestLoader_NotFound(t *testing.T) {
	loader, _ := newLoader(t)
	_, err := loader.Load("nope")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestLoader_RejectsInvalidProfile(t *testing.T) {
	loader, dir := newLoader(t)
	writeFile(t, dir, "broken.yaml", `
profile: {id: broken, name: Broken}
components:
  - name: btn
    type: button
`)
	_, err := loader.Load("broken")
	assert.ErrorContains(t, err, "validation failed")

	writeFile(t, dir, "badport.yaml", `
profile: {id: badport, name: Bad port}
components:
  - name: link
    type: serial
    port: 16
`)
	_, err = loader.Load("badport")
	assert.Error(t, err)
}

func TestComposer_MergesShields(t *testing.T) {
	loader, _ := newLoader(t)
	profile, err := NewComposer(loader, nil).ComposeProfile("shielded")
	require.NoError(t, err)

	require.Len(t, profile.Components, 3)
	assert.Empty(t, profile.Shields)
	assert.Equal(t, "pad.a", profile.Components[1].Name)
	assert.Equal(t, 4, *profile.Components[1].Pin)
	assert.Equal(t, "pad.b", profile.Components[2].Name)
	assert.Equal(t, 5, *profile.Components[2].Pin)

	cached, err := loader.Load("shielded")
	require.NoError(t, err)
	assert.Len(t, cached.Components, 1)
}

func TestComposer_PinConflict(t *testing.T) {
	loader, dir := newLoader(t)
	writeFile(t, dir, "clash.json", `{
  "profile": {"id": "clash", "name": "Clash"},
  "shields": [{"module": "keypad", "pin_offset": 13}],
  "components": [{"name": "led", "type": "led", "pin": 13}]
}`)
	_, err := NewComposer(loader, nil).ComposeProfile("clash")
	assert.ErrorContains(t, err, "pin 13 used by both")
}

func TestManager_LoadProfileConfiguresBoard(t *testing.T) {
	m, _, s, _ := newManager(t)
	require.NoError(t, m.LoadProfile("bench"))

	assert.Equal(t, []string{"btn", "gps", "knob", "led", "temp"}, m.Names())
	assert.True(t, s.sent(0xF4, 0x02, 0x0B), "button pin in pull-up")
	assert.True(t, s.sent(0xD0, 0x01), "digital reporting on port 0")
	assert.True(t, s.sent(0xF4, 0x0E, 0x02), "pot pin in analog mode")
	assert.True(t, s.sent(0xC0, 0x01), "analog reporting on A0")
	assert.True(t, s.sent(0xF4, 0x09, 0x03), "led pin in pwm")
	assert.True(t, s.sent(0xF0, 0x78, 0x00, 0x00, 0xF7), "i2c config")
	assert.True(t, s.sent(0xF0, 0x76, 0x48, 0x10, 0x00, 0x00, 0x02, 0x00, 0xF7), "i2c continuous read")
	assert.True(t, s.sent(0xF0, 0x60, 0x11, 0x00, 0x4B, 0x00, 0xF7), "serial config at 9600")
}

func TestManager_ForwardsComponentEvents(t *testing.T) {
	m, b, _, v := newManager(t)
	require.NoError(t, m.LoadProfile("bench"))

	var got []*events.Event
	m.AddListener(EventComponent, func(ev *events.Event) error {
		got = append(got, ev)
		return nil
	})

	// button idles high, then is pressed
	b.HandleBytes([]byte{0x90, 0x04, 0x00})
	v.Advance(20 * time.Millisecond)
	b.HandleBytes([]byte{0x90, 0x00, 0x00})
	v.Advance(20 * time.Millisecond)

	b.HandleBytes([]byte{0xE0, 0x7F, 0x07})
	b.HandleBytes([]byte{0xF0, 0x77, 0x48, 0x00, 0x00, 0x00, 0x12, 0x00, 0x34, 0x00, 0xF7})

	require.Len(t, got, 3)
	assert.Equal(t, "btn", got[0].Payload["component"])
	assert.Equal(t, "press", got[0].Payload["event"])

	assert.Equal(t, "knob", got[1].Payload["component"])
	value, _ := got[1].Float("value")
	assert.InDelta(t, 100, value, 1e-9)

	assert.Equal(t, "temp", got[2].Payload["component"])
	assert.Equal(t, []int{0x12, 0x34}, got[2].Payload["data"])

	c, ok := m.Get("temp")
	require.True(t, ok)
	assert.Equal(t, []int{0x12, 0x34}, c.Snapshot().State["last_data"])
}

func TestManager_Execute(t *testing.T) {
	m, b, s, _ := newManager(t)
	require.NoError(t, m.LoadProfile("bench"))

	require.NoError(t, m.Execute("led", Command{Action: "on"}))
	assert.Equal(t, []byte{0xE9, 0x7F, 0x01}, s.frames[len(s.frames)-1])

	p, err := b.Pin(9)
	require.NoError(t, err)
	assert.Equal(t, pin.ModePWM, p.Mode())

	require.NoError(t, m.Execute("led", Command{Action: "blink", DurationMs: 100}))
	c, _ := m.Get("led")
	assert.True(t, c.Snapshot().State["animating"].(bool))
	require.NoError(t, m.Execute("led", Command{Action: "stop"}))
	assert.False(t, c.Snapshot().State["animating"].(bool))

	require.NoError(t, m.Execute("gps", Command{Action: "write", Text: "A"}))
	assert.Equal(t, []byte{0xF0, 0x60, 0x21, 0x41, 0x00, 0xF7}, s.frames[len(s.frames)-1])

	require.NoError(t, m.Execute("knob", Command{Action: "range", Min: 0, Max: 10}))

	assert.ErrorIs(t, m.Execute("btn", Command{Action: "on"}), ErrUnsupportedAction)
	assert.ErrorIs(t, m.Execute("ghost", Command{Action: "on"}), ErrComponentNotFound)
}

func TestManager_ApplyIsAllOrNothing(t *testing.T) {
	m, _, _, _ := newManager(t)
	bad := 99
	good := 3
	err := m.Apply(&types.BoardProfileDefinition{
		Profile: types.BoardProfileInfo{ID: "partial", Name: "Partial"},
		Components: []types.ComponentDefinition{
			{Name: "ok", Type: types.ComponentLED, Pin: &good},
			{Name: "missing", Type: types.ComponentLED, Pin: &bad},
		},
	})
	assert.ErrorIs(t, err, board.ErrPinNotFound)
	assert.Empty(t, m.Names())
	assert.Nil(t, m.Profile())
}

func TestManager_CloseDetachesComponents(t *testing.T) {
	m, b, _, v := newManager(t)
	require.NoError(t, m.LoadProfile("bench"))

	count := 0
	m.AddListener(EventComponent, func(*events.Event) error { count++; return nil })
	m.Close()
	assert.Empty(t, m.Names())

	b.HandleBytes([]byte{0xE0, 0x10, 0x00})
	b.HandleBytes([]byte{0x90, 0x04, 0x00})
	v.Advance(time.Second)
	assert.Zero(t, count)
	assert.Equal(t, 0, v.Pending())
}
