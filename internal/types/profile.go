package types

// BoardProfileDefinition describes what is wired to a board
type BoardProfileDefinition struct {
	Profile        BoardProfileInfo      `json:"profile"`
	I2CDelayMicros int                   `json:"i2c_delay_us,omitempty"`
	Shields        []ShieldReference     `json:"shields,omitempty"`
	Components     []ComponentDefinition `json:"components"`
}

type BoardProfileInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Board       string `json:"board,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
}

type ComponentType string

const (
	ComponentButton        ComponentType = "button"
	ComponentPotentiometer ComponentType = "potentiometer"
	ComponentLED           ComponentType = "led"
	ComponentI2C           ComponentType = "i2c"
	ComponentSerial        ComponentType = "serial"
)

// ComponentDefinition is one physical component. Only the fields of its type apply.
type ComponentDefinition struct {
	Name        string        `json:"name"`
	Type        ComponentType `json:"type"`
	Description string        `json:"description,omitempty"`

	// button, led
	Pin *int `json:"pin,omitempty"`

	// button
	Wiring      string `json:"wiring,omitempty"`
	DebounceMs  int    `json:"debounce_ms,omitempty"`
	SustainedMs int    `json:"sustained_ms,omitempty"`

	// potentiometer
	AnalogChannel *int    `json:"analog_channel,omitempty"`
	Min           float64 `json:"min,omitempty"`
	Max           float64 `json:"max,omitempty"`
	Samples       int     `json:"samples,omitempty"`
	Smoothing     *bool   `json:"smoothing,omitempty"`

	// led
	Drive string `json:"drive,omitempty"`

	// i2c
	Address    int  `json:"address,omitempty"`
	Register   int  `json:"register,omitempty"`
	ReadBytes  int  `json:"read_bytes,omitempty"`
	Continuous bool `json:"continuous,omitempty"`

	// serial
	Port  int `json:"port,omitempty"`
	Baud  int `json:"baud,omitempty"`
	RxPin int `json:"rx_pin,omitempty"`
	TxPin int `json:"tx_pin,omitempty"`
}
