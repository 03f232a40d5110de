package firmata

import "fmt"

// Frame is one wire unit. For sysex frames Command is the sysex sub-command
// and Payload excludes the start/end bytes.
type Frame struct {
	Command byte
	Payload []byte
	Sysex   bool
}

// NewSysex builds a sysex frame
func NewSysex(command byte, payload ...byte) Frame {
	return Frame{Command: command, Payload: payload, Sysex: true}
}

// NewMessage builds a core channel frame
func NewMessage(command byte, payload ...byte) Frame {
	return Frame{Command: command, Payload: payload}
}

// Encode returns the bytes put on the wire
func (f Frame) Encode() []byte {
	if f.Sysex {
		out := make([]byte, 0, len(f.Payload)+3)
		out = append(out, StartSysex, f.Command&DataMask)
		for _, b := range f.Payload {
			out = append(out, b&DataMask)
		}
		return append(out, EndSysex)
	}
	out := make([]byte, 0, len(f.Payload)+1)
	out = append(out, f.Command)
	for _, b := range f.Payload {
		out = append(out, b&DataMask)
	}
	return out
}

// Kind returns the command with the channel nibble cleared for channel messages
func (f Frame) Kind() byte {
	if f.Sysex {
		return f.Command
	}
	if f.Command >= 0x80 && f.Command < 0xF0 {
		return f.Command & 0xF0
	}
	return f.Command
}

// Channel returns the low nibble of a channel message (pin or port)
func (f Frame) Channel() int {
	return int(f.Command & 0x0F)
}

func (f Frame) String() string {
	if f.Sysex {
		return fmt.Sprintf("sysex 0x%02X % X", f.Command, f.Payload)
	}
	return fmt.Sprintf("0x%02X % X", f.Command, f.Payload)
}

// dataLength returns the number of data bytes following a core command, -1 if unknown
func dataLength(cmd byte) int {
	switch cmd & 0xF0 {
	case DigitalMessage, AnalogMessage:
		return 2
	case ReportAnalog, ReportDigital:
		return 1
	}
	switch cmd {
	case SetPinMode, SetDigitalPinValue, ReportVersion:
		return 2
	case SystemReset:
		return 0
	}
	return -1
}
