package websocket

import (
	"time"

	"github.com/KevinKickass/eposio/internal/devices"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Input configuration messages
	MessageTypeInputConfig MessageType = "input_config"
	MessageTypeInputSetup  MessageType = "input_setup"
	MessageTypeInputDrift  MessageType = "input_drift"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"

	// Client control messages
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeError       MessageType = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	DeviceID  string      `json:"device_id,omitempty"`
	Device    string      `json:"device,omitempty"`
	Data      interface{} `json:"data"`
}

// ClientMessage is what clients send to narrow the stream. An empty device
// list subscribes to all devices.
type ClientMessage struct {
	Type    MessageType `json:"type"`
	Devices []string    `json:"devices"`
}

func NewMessage(kind MessageType, data interface{}) Message {
	return Message{
		Type:      kind,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewDeviceMessage converts a device event into its wire message.
func NewDeviceMessage(e devices.Event) Message {
	msg := NewMessage(MessageType(e.Type), e.Data)
	msg.DeviceID = e.DeviceID.String()
	msg.Device = e.Device
	return msg
}
