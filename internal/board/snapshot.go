package board

import "github.com/KevinKickass/boardlink/internal/pin"

// PinSnapshot is a copy of a pin's state safe to hand off the loop
type PinSnapshot struct {
	Number           int            `json:"number"`
	Mode             string         `json:"mode"`
	Type             string         `json:"type"`
	Value            float64        `json:"value"`
	LastValue        float64        `json:"last_value"`
	PreFilterValue   float64        `json:"pre_filter_value"`
	Minimum          float64        `json:"minimum"`
	Maximum          float64        `json:"maximum"`
	Average          float64        `json:"average"`
	SampleCount      int            `json:"sample_count"`
	ReportingEnabled bool           `json:"reporting_enabled"`
	AnalogChannel    int            `json:"analog_channel"`
	Capabilities     map[string]int `json:"capabilities,omitempty"`
	Generator        bool           `json:"generator"`
}

// Info summarizes the board context
type Info struct {
	ID              string `json:"id"`
	Ready           bool   `json:"ready"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	FirmwareName    string `json:"firmware_name,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	PinCount        int    `json:"pin_count"`
	Normalized      bool   `json:"normalized"`
	I2CDevices      int    `json:"i2c_devices"`
	SerialPorts     int    `json:"serial_ports"`
}

// Snapshot copies pin p
func Snapshot(p *pin.Pin) PinSnapshot {
	s := PinSnapshot{
		Number:           p.Number(),
		Mode:             p.Mode().String(),
		Type:             p.Type().String(),
		Value:            p.Value(),
		LastValue:        p.LastValue(),
		PreFilterValue:   p.PreFilterValue(),
		Minimum:          p.Minimum(),
		Maximum:          p.Maximum(),
		Average:          p.Average(),
		SampleCount:      p.SampleCount(),
		ReportingEnabled: p.ReportingEnabled(),
		AnalogChannel:    p.AnalogChannel(),
		Generator:        p.Generator() != nil,
	}
	if caps := p.Capabilities(); len(caps) > 0 {
		s.Capabilities = make(map[string]int, len(caps))
		for m, res := range caps {
			s.Capabilities[m.String()] = res
		}
	}
	return s
}

// PinSnapshots copies every pin
func (b *Board) PinSnapshots() []PinSnapshot {
	out := make([]PinSnapshot, len(b.pins))
	for i, p := range b.pins {
		out[i] = Snapshot(p)
	}
	return out
}

// Info summarizes the board
func (b *Board) Info() Info {
	return Info{
		ID:              b.id,
		Ready:           b.ready,
		ProtocolVersion: b.protocolVersion,
		FirmwareName:    b.firmwareName,
		FirmwareVersion: b.firmwareVersion,
		PinCount:        len(b.pins),
		Normalized:      b.normalize,
		I2CDevices:      len(b.i2cDevices),
		SerialPorts:     len(b.serialPorts),
	}
}
