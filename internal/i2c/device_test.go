package i2c

import (
	"testing"

	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/firmata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	*firmata.Demux
	sent []firmata.Frame
}

func newFakeHost() *fakeHost {
	return &fakeHost{Demux: firmata.NewDemux(nil, nil)}
}

func (h *fakeHost) SendSysex(command byte, payload ...byte) bool {
	h.sent = append(h.sent, firmata.NewSysex(command, payload...))
	return true
}

func (h *fakeHost) AddRoute(r firmata.Route) firmata.RouteID { return h.Add(r) }
func (h *fakeHost) RemoveRoute(id firmata.RouteID) bool      { return h.Remove(id) }

func TestNew_RejectsTenBitAddress(t *testing.T) {
	_, err := New(newFakeHost(), 0x80)
	assert.ErrorIs(t, err, ErrAddressRange)
	_, err = New(newFakeHost(), -1)
	assert.ErrorIs(t, err, ErrAddressRange)
}

func TestSendRequest_Encoding(t *testing.T) {
	host := newFakeHost()
	dev, err := New(host, 0x09)
	require.NoError(t, err)

	ok, err := dev.SendRequest(firmata.I2CWrite, 0x6E, 10, 20, 30)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, host.sent, 1)
	f := host.sent[0]
	assert.Equal(t, firmata.I2CRequest, f.Command)
	assert.Equal(t, []byte{0x09, firmata.I2CWrite << 3, 0x6E, 0x00, 10, 0x00, 20, 0x00, 30, 0x00}, f.Payload)
	assert.Equal(t, []byte{0xF0, 0x76, 0x09, 0x00, 0x6E, 0x00, 10, 0x00, 20, 0x00, 30, 0x00, 0xF7}, f.Encode())
}

func TestReadModes(t *testing.T) {
	host := newFakeHost()
	dev, err := New(host, 0x48)
	require.NoError(t, err)

	_, err = dev.Read(0x00, 2)
	require.NoError(t, err)
	_, err = dev.StartReading(0x00, 2)
	require.NoError(t, err)
	dev.StopReading()

	require.Len(t, host.sent, 3)
	assert.Equal(t, firmata.I2CRead<<3, host.sent[0].Payload[1])
	assert.Equal(t, firmata.I2CReadContinuous<<3, host.sent[1].Payload[1])
	assert.Equal(t, []byte{0x48, firmata.I2CStopReading << 3}, host.sent[2].Payload)
}

func TestSendRequest_ValueRange(t *testing.T) {
	dev, err := New(newFakeHost(), 0x10)
	require.NoError(t, err)
	_, err = dev.Write(1 << 14)
	assert.ErrorIs(t, err, firmata.ErrValueRange)
}

func TestConfig(t *testing.T) {
	host := newFakeHost()
	dev, err := New(host, 0x10)
	require.NoError(t, err)
	_, err = dev.Config(200)
	require.NoError(t, err)
	assert.Equal(t, firmata.NewSysex(firmata.I2CConfig, 0x48, 0x01), host.sent[0])
}

func TestRoute_OnlyMatchingAddress(t *testing.T) {
	host := newFakeHost()
	a, err := New(host, 0x09)
	require.NoError(t, err)
	b, err := New(host, 0x48)
	require.NoError(t, err)

	var gotA, gotB []*events.Event
	a.AddListener(EventData, func(ev *events.Event) error { gotA = append(gotA, ev); return nil })
	b.AddListener(EventData, func(ev *events.Event) error { gotB = append(gotB, ev); return nil })

	reply := firmata.NewSysex(firmata.I2CReply, 0x48, 0x00, 0x01, 0x00, 0x55, 0x01, 0x2A, 0x00)
	assert.Equal(t, firmata.Handled, host.Dispatch(reply))

	assert.Empty(t, gotA)
	require.Len(t, gotB, 1)
	assert.Equal(t, 1, gotB[0].Payload["register"])
	assert.Equal(t, []int{213, 42}, Data(gotB[0]))

	assert.Equal(t, firmata.Ignored, host.Dispatch(firmata.NewSysex(firmata.I2CReply, 0x11, 0x00, 0x00, 0x00)))
	assert.Equal(t, firmata.Ignored, host.Dispatch(firmata.NewSysex(firmata.SerialMessage, 0x48, 0x00, 0x00, 0x00)))

	b.Close()
	assert.Equal(t, firmata.Ignored, host.Dispatch(reply))
	assert.Len(t, gotB, 1)
}
