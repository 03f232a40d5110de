package i2c

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/boardlink/internal/events"
	"github.com/KevinKickass/boardlink/internal/firmata"
)

var ErrAddressRange = errors.New("i2c: address outside 7-bit range")

// EventData is dispatched for every reply addressed to the device
const EventData = "data"

// MaxAddress is the highest 7-bit address; 10-bit addressing is not supported
const MaxAddress = 0x7F

// Device is one addressed peripheral on the shared I2C bus
type Device struct {
	*events.Dispatcher

	host    firmata.Host
	address int
	routeID firmata.RouteID
}

// New registers a device at address on host
func New(host firmata.Host, address int, opts ...events.Option) (*Device, error) {
	if host == nil {
		return nil, fmt.Errorf("i2c: host is required")
	}
	if address < 0 || address > MaxAddress {
		return nil, fmt.Errorf("%w: 0x%X", ErrAddressRange, address)
	}

	d := &Device{
		Dispatcher: events.NewDispatcher(opts...),
		host:       host,
		address:    address,
	}
	d.routeID = host.AddRoute(d)
	return d, nil
}

// Address returns the device address
func (d *Device) Address() int {
	return d.address
}

// SendRequest sends [address, mode<<3, pairs...]. The returned bool is the
// transport's send result; encoding failures are errors.
func (d *Device) SendRequest(mode byte, values ...int) (bool, error) {
	data, err := firmata.Encode7(values...)
	if err != nil {
		return false, fmt.Errorf("i2c 0x%02X request: %w", d.address, err)
	}

	payload := make([]byte, 0, len(data)+2)
	payload = append(payload, byte(d.address), (mode&0x07)<<3)
	payload = append(payload, data...)
	return d.host.SendSysex(firmata.I2CRequest, payload...), nil
}

// Write sends raw bytes, usually a register followed by its data
func (d *Device) Write(values ...int) (bool, error) {
	return d.SendRequest(firmata.I2CWrite, values...)
}

// Read requests n bytes starting at register once
func (d *Device) Read(register, n int) (bool, error) {
	return d.SendRequest(firmata.I2CRead, register, n)
}

// StartReading asks the board to poll register continuously
func (d *Device) StartReading(register, n int) (bool, error) {
	return d.SendRequest(firmata.I2CReadContinuous, register, n)
}

// StopReading cancels continuous reads for this address
func (d *Device) StopReading() bool {
	ok, _ := d.SendRequest(firmata.I2CStopReading)
	return ok
}

// Config sets the bus read delay in microseconds (board wide)
func (d *Device) Config(delayMicros int) (bool, error) {
	data, err := firmata.Encode7(delayMicros)
	if err != nil {
		return false, fmt.Errorf("i2c config: %w", err)
	}
	return d.host.SendSysex(firmata.I2CConfig, data...), nil
}

// Route accepts I2C replies carrying this device's address
func (d *Device) Route(f firmata.Frame) firmata.Result {
	if !f.Sysex || f.Command != firmata.I2CReply || len(f.Payload) < 4 {
		return firmata.Ignored
	}
	values := firmata.Decode7(f.Payload)
	if values[0] != d.address {
		return firmata.Ignored
	}

	d.Emit(EventData, d, map[string]any{
		"address":  d.address,
		"register": values[1],
		"data":     values[2:],
	})
	return firmata.Handled
}

// Close detaches the device from the inbound demux
func (d *Device) Close() {
	d.host.RemoveRoute(d.routeID)
}

// Data extracts the reply bytes from an EventData event
func Data(ev *events.Event) []int {
	v, _ := ev.Payload["data"].([]int)
	return v
}
