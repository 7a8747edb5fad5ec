package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/james-e-morris/hx711-multi/internal/gpio"
	"github.com/james-e-morris/hx711-multi/internal/hx711"
	"github.com/james-e-morris/hx711-multi/internal/mqtt"
)

// TestIntegrationFullFlow tests the complete flow from GPIO to MQTT using
// fakes: power-up, zeroing, calibrated reads, and publishing.
func TestIntegrationFullFlow(t *testing.T) {
	// Two chips on one clock. Each shifts out its configuration-latching
	// frame, three baseline frames for zeroing, then loaded frames; the last
	// frame repeats.
	chipA := gpio.NewFakeChip(1000, 1000, 1000, 1000, 1050)
	chipB := gpio.NewFakeChip(2000, 2000, 2000, 2000, 2100)
	port := gpio.NewFakePort(chipA, chipB)

	scale, err := hx711.New(port, hx711.Options{
		AllOrNothing:      true,
		ReadyPolls:        2,
		ReadyPollInterval: time.Millisecond,
		SettleTime:        time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scale: %v", err)
	}

	if err := scale.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := scale.Zero(3); err != nil {
		t.Fatalf("zero: %v", err)
	}
	if err := scale.SetWeightMultiples([]float64{50, 100}); err != nil {
		t.Fatalf("multiples: %v", err)
	}

	// One measurement: raw deltas plus converted weights from the same
	// hardware cycles.
	raw, err := scale.ReadRaw(3)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	weights, err := scale.ReadWeight(3, true)
	if err != nil {
		t.Fatalf("read weight: %v", err)
	}

	if !raw[0].Valid || raw[0].Value != 50 {
		t.Errorf("device 0 raw: got %+v, want 50", raw[0])
	}
	if !raw[1].Valid || raw[1].Value != 100 {
		t.Errorf("device 1 raw: got %+v, want 100", raw[1])
	}
	if !weights[0].Valid || weights[0].Value != 1.0 {
		t.Errorf("device 0 weight: got %+v, want 1.0", weights[0])
	}
	if !weights[1].Valid || weights[1].Value != 1.0 {
		t.Errorf("device 1 weight: got %+v, want 1.0", weights[1])
	}

	// Publish the batch the way the daemon loop does.
	publisher := mqtt.NewFakePublisher()
	batch := mqtt.Batch{Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	for i := range raw {
		batch.Readings = append(batch.Readings, mqtt.Reading{
			Device: i,
			Raw:    raw[i].Value,
			Weight: weights[i].Value,
			Valid:  raw[i].Valid && weights[i].Valid,
		})
	}
	if err := publisher.Publish(batch); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(publisher.Payloads) != 1 {
		t.Fatalf("payloads: got %d, want 1", len(publisher.Payloads))
	}
	var decoded mqtt.Payload
	if err := json.Unmarshal(publisher.Payloads[0], &decoded); err != nil {
		t.Fatalf("invalid JSON payload: %v", err)
	}
	if decoded.Scale.Timestamp != "2026-01-01T12:00:00Z" {
		t.Errorf("timestamp: got %q", decoded.Scale.Timestamp)
	}
	if len(decoded.Scale.Readings) != 2 {
		t.Fatalf("readings: got %d, want 2", len(decoded.Scale.Readings))
	}
	if decoded.Scale.Readings[1].Weight != 1.0 || !decoded.Scale.Readings[1].Valid {
		t.Errorf("reading 1: got %+v", decoded.Scale.Readings[1])
	}

	if err := scale.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !port.Closed {
		t.Error("port should be closed")
	}
}

// TestIntegrationDeviceDropout exercises the independent-device policy: one
// chip stops responding after zeroing and only that device's readings go
// absent.
func TestIntegrationDeviceDropout(t *testing.T) {
	chipA := gpio.NewFakeChip(1000, 1000, 1000, 1000, 1050)
	chipB := gpio.NewFakeChip(2000, 2000, 2000, 2000, 2100)
	port := gpio.NewFakePort(chipA, chipB)

	scale, err := hx711.New(port, hx711.Options{
		AllOrNothing:      false,
		ReadyPolls:        2,
		ReadyPollInterval: time.Millisecond,
		SettleTime:        time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new scale: %v", err)
	}
	defer scale.Close()

	if err := scale.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := scale.Zero(3); err != nil {
		t.Fatalf("zero: %v", err)
	}

	chipB.NeverReady = true

	raw, err := scale.ReadRaw(3)
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !raw[0].Valid || raw[0].Value != 50 {
		t.Errorf("device 0: got %+v, want valid 50", raw[0])
	}
	if raw[1].Valid {
		t.Errorf("device 1: got %+v, want absent", raw[1])
	}
}
