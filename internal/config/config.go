// Package config holds the file-backed configuration for the CLI: pin
// assignment, channel/gain, filtering thresholds, calibration multiples, and
// the optional MQTT output. The core packages never read or write files;
// calibration results are persisted here by the CLI so a calibrated setup
// survives restarts.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Config is the JSON configuration. Flags override values present in the
// file.
type Config struct {
	GPIOChip string `json:"gpio_chip"`
	ClockPin int    `json:"clock_pin"`
	DataPins []int  `json:"data_pins"`

	Channel      string `json:"channel"`
	GainA        int    `json:"gain_a"`
	AllOrNothing bool   `json:"all_or_nothing"`

	ReadingsToAverage int `json:"readings_to_average"`

	// Filter thresholds; see the hx711 package for semantics.
	MaxStdev                float64 `json:"max_stdev"`
	MaxDeviationsFromMedian float64 `json:"max_deviations_from_median"`

	// WeightMultiples is written back after calibration, one per data pin.
	WeightMultiples []float64 `json:"weight_multiples,omitempty"`

	// Broker enables MQTT publishing when non-empty (tcp://host:port).
	Broker     string `json:"broker,omitempty"`
	IntervalMs int    `json:"interval_ms"`
}

// Default returns the configuration used when no file or flags are given.
func Default() Config {
	return Config{
		GPIOChip:                "gpiochip0",
		ClockPin:                -1,
		Channel:                 "A",
		GainA:                   128,
		AllOrNothing:            true,
		ReadingsToAverage:       10,
		MaxStdev:                100,
		MaxDeviationsFromMedian: 2.0,
		IntervalMs:              1000,
	}
}

// Load reads a JSON config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration back as indented JSON. Used to persist
// calibration results.
func Save(path string, cfg Config) error {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the fields the core cannot default its way around.
func (c Config) Validate() error {
	if c.ClockPin < 0 {
		return errors.New("clock pin is required")
	}
	if len(c.DataPins) == 0 {
		return errors.New("at least one data pin is required")
	}
	seen := make(map[int]bool, len(c.DataPins)+1)
	seen[c.ClockPin] = true
	for _, p := range c.DataPins {
		if p < 0 {
			return fmt.Errorf("invalid data pin %d", p)
		}
		if seen[p] {
			return fmt.Errorf("pin %d assigned twice", p)
		}
		seen[p] = true
	}
	if c.Channel != "A" && c.Channel != "B" {
		return fmt.Errorf("channel must be A or B, got %q", c.Channel)
	}
	if c.GainA != 128 && c.GainA != 64 {
		return fmt.Errorf("gain_a must be 128 or 64, got %d", c.GainA)
	}
	if c.ReadingsToAverage < 1 || c.ReadingsToAverage > 10000 {
		return fmt.Errorf("readings_to_average out of range: %d", c.ReadingsToAverage)
	}
	if len(c.WeightMultiples) != 0 && len(c.WeightMultiples) != len(c.DataPins) {
		return fmt.Errorf("weight_multiples: got %d values for %d data pins",
			len(c.WeightMultiples), len(c.DataPins))
	}
	if c.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be > 0, got %d", c.IntervalMs)
	}
	return nil
}
