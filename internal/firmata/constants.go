package firmata

// Core channel command bytes (128-255 / 0x80-0xFF)
const (
	DigitalMessage     byte = 0x90 // digital port values, low nibble = port
	AnalogMessage      byte = 0xE0 // analog pin value, low nibble = pin
	ReportAnalog       byte = 0xC0 // enable analog reporting, low nibble = pin
	ReportDigital      byte = 0xD0 // enable digital reporting, low nibble = port
	SetPinMode         byte = 0xF4
	SetDigitalPinValue byte = 0xF5
	ReportVersion      byte = 0xF9
	SystemReset        byte = 0xFF
	StartSysex         byte = 0xF0
	EndSysex           byte = 0xF7
)

// Sysex sub-commands (0x00-0x7F)
const (
	SerialMessage         byte = 0x60
	EncoderData           byte = 0x61
	AnalogMappingQuery    byte = 0x69
	AnalogMappingResponse byte = 0x6A
	CapabilityQuery       byte = 0x6B
	CapabilityResponse    byte = 0x6C
	PinStateQuery         byte = 0x6D
	PinStateResponse      byte = 0x6E
	ExtendedAnalog        byte = 0x6F
	ServoConfig           byte = 0x70
	StringData            byte = 0x71
	ShiftData             byte = 0x75
	I2CRequest            byte = 0x76
	I2CReply              byte = 0x77
	I2CConfig             byte = 0x78
	ReportFirmware        byte = 0x79
	SamplingInterval      byte = 0x7A
	SysexNonRealtime      byte = 0x7E
	SysexRealtime         byte = 0x7F
)

// Serial sub-opcodes, OR'd with a port id
const (
	SerialConfig byte = 0x10
	SerialWrite  byte = 0x20
	SerialRead   byte = 0x30
	SerialReply  byte = 0x40
	SerialClose  byte = 0x50
	SerialFlush  byte = 0x60
	SerialListen byte = 0x70
)

// Serial read modes
const (
	SerialReadContinuous byte = 0x00
	SerialStopReading    byte = 0x01
)

// I2C request modes, sent as mode<<3
const (
	I2CWrite          byte = 0x00
	I2CRead           byte = 0x01
	I2CReadContinuous byte = 0x02
	I2CStopReading    byte = 0x03
)

// CapabilityEnd terminates a pin's entry in a capability response;
// in an analog mapping response it marks a pin without analog channel.
const CapabilityEnd byte = 0x7F

// TotalPinsPerPort is the width of a digital port message
const TotalPinsPerPort = 8

// DataMask keeps a byte inside the 7-bit data range
const DataMask = 0x7F
