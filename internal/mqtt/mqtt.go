// Package mqtt publishes weight readings to an MQTT broker, with an
// abstraction for testing. The core hx711 package knows nothing about this;
// the CLI feeds measurement batches in.
package mqtt

import (
	"encoding/json"
	"time"
)

// Topic is the MQTT topic for weight reading batches.
const Topic = "sensors/hx711/readings"

// Publisher publishes reading batches.
type Publisher interface {
	// Publish sends one batch to the broker. Returns error if publishing
	// fails (should not crash the process).
	Publish(batch Batch) error

	// Close disconnects from the broker.
	Close() error
}

// Reading is one device's measurement within a batch. Valid mirrors the
// core's absent-value semantics: a reading can be present-but-invalid when
// that device produced no usable data.
type Reading struct {
	Device int     `json:"device"`
	Raw    float64 `json:"raw"`
	Weight float64 `json:"weight"`
	Valid  bool    `json:"valid"`
}

// Batch is one synchronized read across all devices.
type Batch struct {
	Timestamp time.Time
	Readings  []Reading
}

// Payload is the MQTT message structure.
type Payload struct {
	Scale ScalePayload `json:"scale"`
}

// ScalePayload carries the batch details.
type ScalePayload struct {
	Timestamp string    `json:"timestamp"`
	Readings  []Reading `json:"readings"`
}

// FormatPayload creates the JSON payload for a batch.
func FormatPayload(batch Batch) ([]byte, error) {
	payload := Payload{
		Scale: ScalePayload{
			Timestamp: batch.Timestamp.UTC().Format(time.RFC3339),
			Readings:  batch.Readings,
		},
	}
	return json.Marshal(payload)
}
