package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Board messages
	MessageTypePinChange   MessageType = "pin_change"
	MessageTypeBoardReady  MessageType = "board_ready"
	MessageTypeBoardString MessageType = "board_string"

	// Component messages
	MessageTypeComponentEvent MessageType = "component_event"

	// Link messages
	MessageTypeTransportState MessageType = "transport_state"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeError        MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// PinChangeData is a pin value update
type PinChangeData struct {
	Pin       int     `json:"pin"`
	Value     float64 `json:"value"`
	LastValue float64 `json:"last_value"`
}

// ComponentEventData is an event of a profile component
type ComponentEventData struct {
	Component     string                 `json:"component"`
	ComponentType string                 `json:"component_type"`
	Event         string                 `json:"event"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// TransportStateData describes a link state change
type TransportStateData struct {
	State   string `json:"state"`
	Backend string `json:"backend,omitempty"`
	Target  string `json:"target,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ClientRequest is what clients may send: {"type":"subscribe","topics":["pin_change"]}
type ClientRequest struct {
	Type   string        `json:"type"`
	Topics []MessageType `json:"topics,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Helper functions for creating specific message types

func NewPinChangeMessage(n int, value, lastValue float64) Message {
	return NewMessage(MessageTypePinChange, PinChangeData{
		Pin:       n,
		Value:     value,
		LastValue: lastValue,
	})
}

func NewComponentEventMessage(component, componentType, event string, fields map[string]interface{}) Message {
	return NewMessage(MessageTypeComponentEvent, ComponentEventData{
		Component:     component,
		ComponentType: componentType,
		Event:         event,
		Fields:        fields,
	})
}

func NewTransportStateMessage(state, backend, target string, err error) Message {
	data := TransportStateData{
		State:   state,
		Backend: backend,
		Target:  target,
	}
	if err != nil {
		data.Error = err.Error()
	}
	return NewMessage(MessageTypeTransportState, data)
}
