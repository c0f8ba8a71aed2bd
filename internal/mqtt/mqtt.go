// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// Topic is the MQTT topic for sensor readings.
const Topic = "fridge/sensor/readings"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "fridge/sensor/system"

// Publisher publishes readings to MQTT.
type Publisher interface {
	// Publish sends one batch of readings to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(b logic.Batch) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Fridge FridgePayload `json:"fridge"`
}

// FridgePayload contains one batch.
type FridgePayload struct {
	Timestamp    string       `json:"timestamp"`
	Refrigerator ChannelState `json:"refrigerator"`
	Freezer      ChannelState `json:"freezer"`
}

// ChannelState represents a single channel's reading. Temperature and
// Humidity are null when the read failed; Error then names the failure kind.
type ChannelState struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Error       string   `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a batch.
func FormatPayload(b logic.Batch) ([]byte, error) {
	payload := Payload{
		Fridge: FridgePayload{
			Timestamp:    b.Timestamp.UTC().Format(time.RFC3339),
			Refrigerator: channelState(b.Refrigerator),
			Freezer:      channelState(b.Freezer),
		},
	}
	return json.Marshal(payload)
}

func channelState(r logic.ChannelResult) ChannelState {
	if !r.OK() {
		return ChannelState{Error: string(logic.KindOf(r.Err))}
	}
	t, h := r.Reading.Temperature(), r.Reading.Humidity()
	return ChannelState{Temperature: &t, Humidity: &h}
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
