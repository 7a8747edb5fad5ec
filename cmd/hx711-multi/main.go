// Command hx711-multi reads calibrated weights from HX711 load cell ADCs on
// a shared clock line, printing them and optionally publishing to MQTT. It
// also runs the interactive calibration flow that derives the per-device
// weight multiples.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/eiannone/keyboard"

	"github.com/james-e-morris/hx711-multi/internal/config"
	"github.com/james-e-morris/hx711-multi/internal/gpio"
	"github.com/james-e-morris/hx711-multi/internal/hx711"
	"github.com/james-e-morris/hx711-multi/internal/mqtt"
)

func main() {
	cfgPath := flag.String("config", "", "path to JSON config file")
	chipName := flag.String("chip", "", "GPIO character device name")
	clockPin := flag.Int("clock", -1, "BCM pin for the shared PD_SCK clock")
	dataPins := flag.String("data", "", "comma-separated BCM pins, one per HX711 DOUT")
	channel := flag.String("channel", "", "input channel (A or B)")
	gainA := flag.Int("gain", 0, "channel A gain (128 or 64)")
	allOrNothing := flag.Bool("all-or-nothing", true, "invalidate a whole batch when any device fails")
	readings := flag.Int("readings", 0, "readings to average per measurement")
	interval := flag.Duration("interval", 0, "delay between measurements")
	broker := flag.String("broker", "", "MQTT broker address (empty to disable publishing)")
	once := flag.Bool("once", false, "take one measurement and exit")
	calibrate := flag.Bool("calibrate", false, "run calibration and exit")
	weights := flag.String("weights", "", "comma-separated reference weights for calibration (prompted if empty)")
	save := flag.Bool("save", false, "write calibrated multiples back to --config")
	verbose := flag.Bool("verbose", false, "log raw deltas alongside weights")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := buildConfig(*cfgPath, flagOverrides{
		chip:         *chipName,
		clockPin:     *clockPin,
		dataPins:     *dataPins,
		channel:      *channel,
		gainA:        *gainA,
		allOrNothing: *allOrNothing,
		readings:     *readings,
		interval:     *interval,
		broker:       *broker,
	}, set)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	refWeights, err := parseWeights(*weights)
	if err != nil {
		log.Fatalf("weights: %v", err)
	}

	if err := run(cfg, options{
		calibrate:  *calibrate,
		once:       *once,
		save:       *save,
		configPath: *cfgPath,
		weights:    refWeights,
		verbose:    *verbose,
	}); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// flagOverrides carries the flag values that may override the config file.
type flagOverrides struct {
	chip         string
	clockPin     int
	dataPins     string
	channel      string
	gainA        int
	allOrNothing bool
	readings     int
	interval     time.Duration
	broker       string
}

type options struct {
	calibrate  bool
	once       bool
	save       bool
	configPath string
	weights    []float64
	verbose    bool
}

// buildConfig loads the config file (if any) and applies flag overrides.
// set marks which flags were given on the command line.
func buildConfig(path string, f flagOverrides, set map[string]bool) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, err
		}
	}

	if f.chip != "" {
		cfg.GPIOChip = f.chip
	}
	if f.clockPin >= 0 {
		cfg.ClockPin = f.clockPin
	}
	if f.dataPins != "" {
		pins, err := parsePins(f.dataPins)
		if err != nil {
			return cfg, err
		}
		cfg.DataPins = pins
	}
	if f.channel != "" {
		cfg.Channel = strings.ToUpper(f.channel)
	}
	if f.gainA != 0 {
		cfg.GainA = f.gainA
	}
	if set["all-or-nothing"] {
		cfg.AllOrNothing = f.allOrNothing
	}
	if f.readings != 0 {
		cfg.ReadingsToAverage = f.readings
	}
	if f.interval != 0 {
		cfg.IntervalMs = int(f.interval.Milliseconds())
	}
	if f.broker != "" {
		cfg.Broker = f.broker
	}

	return cfg, cfg.Validate()
}

// parsePins parses a comma-separated pin list like "5,6,13".
func parsePins(s string) ([]int, error) {
	var pins []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pin, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid pin %q: %w", part, err)
		}
		pins = append(pins, pin)
	}
	if len(pins) == 0 {
		return nil, errors.New("no pins given")
	}
	return pins, nil
}

// parseWeights parses a comma-separated weight list like "10,20,50".
func parseWeights(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	var ws []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		w, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", part, err)
		}
		ws = append(ws, w)
	}
	return ws, nil
}

func run(cfg config.Config, opts options) error {
	port, err := gpio.NewRealPort(cfg.GPIOChip, cfg.ClockPin, cfg.DataPins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}

	scale, err := hx711.New(port, hx711.Options{
		Channel:      hx711.Channel(cfg.Channel),
		GainA:        cfg.GainA,
		AllOrNothing: cfg.AllOrNothing,
		Filter: hx711.Filter{
			MaxStdev:                cfg.MaxStdev,
			MaxDeviationsFromMedian: cfg.MaxDeviationsFromMedian,
		},
	})
	if err != nil {
		port.Close()
		return fmt.Errorf("init scale: %w", err)
	}
	// Close leaves the clock line low so the chips are not abandoned
	// powered-down or mid-frame, including on signal-driven shutdown.
	defer scale.Close()

	log.Printf("resetting %d device(s) on clock pin %d", scale.DeviceCount(), cfg.ClockPin)
	if err := scale.Reset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	if opts.calibrate {
		return runCalibration(scale, cfg, opts)
	}

	if len(cfg.WeightMultiples) > 0 {
		if err := scale.SetWeightMultiples(cfg.WeightMultiples); err != nil {
			return fmt.Errorf("weight multiples: %w", err)
		}
	} else {
		log.Printf("no weight multiples configured; reporting raw units (run -calibrate)")
	}

	log.Printf("zeroing with %d readings", cfg.ReadingsToAverage)
	if err := scale.Zero(cfg.ReadingsToAverage); err != nil {
		return fmt.Errorf("zero: %w", err)
	}

	var publisher mqtt.Publisher
	if cfg.Broker != "" {
		publisher, err = mqtt.NewRealPublisher(cfg.Broker)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer publisher.Close()
		log.Printf("publishing to %s on %s", cfg.Broker, mqtt.Topic)
	}

	if opts.once {
		return measureOnce(scale, publisher, cfg.ReadingsToAverage, opts.verbose)
	}

	interval := time.Duration(cfg.IntervalMs) * time.Millisecond
	log.Printf("started: readings=%d interval=%v all_or_nothing=%v",
		cfg.ReadingsToAverage, interval, cfg.AllOrNothing)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(scale, publisher, cfg.ReadingsToAverage, opts.verbose, time.Now, ticker.C, sigCh)
}

// measurer is the slice of the scale the read loop needs.
type measurer interface {
	ReadRaw(readings int) ([]hx711.Measurement, error)
	ReadWeight(readings int, usePrev bool) ([]hx711.Measurement, error)
}

// runLoop measures on every tick until a signal arrives. Time sources and
// channels are injected for testing.
func runLoop(scale measurer, publisher mqtt.Publisher, readings int, verbose bool, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			return nil

		case <-tick:
			batch, err := measure(scale, readings, now())
			if err != nil {
				log.Printf("read error: %v", err)
				continue
			}

			if verbose {
				log.Printf("raw: %s weight: %s", formatRaw(batch), formatWeights(batch))
			} else {
				log.Printf("weight: %s", formatWeights(batch))
			}

			if publisher != nil {
				if err := publisher.Publish(batch); err != nil {
					log.Printf("publish error: %v", err)
				}
			}
		}
	}
}

func measureOnce(scale measurer, publisher mqtt.Publisher, readings int, verbose bool) error {
	batch, err := measure(scale, readings, time.Now())
	if err != nil {
		return err
	}
	if verbose {
		fmt.Printf("raw: %s\n", formatRaw(batch))
	}
	fmt.Printf("weight: %s\n", formatWeights(batch))
	if publisher != nil {
		return publisher.Publish(batch)
	}
	return nil
}

// measure takes one averaged reading and pairs raw deltas with converted
// weights into a batch. The weight conversion reuses the raw read, so only
// one set of hardware cycles runs.
func measure(scale measurer, readings int, at time.Time) (mqtt.Batch, error) {
	raw, err := scale.ReadRaw(readings)
	if err != nil {
		return mqtt.Batch{}, err
	}
	weights, err := scale.ReadWeight(readings, true)
	if err != nil {
		return mqtt.Batch{}, err
	}

	batch := mqtt.Batch{Timestamp: at}
	for i := range raw {
		r := mqtt.Reading{Device: i, Valid: raw[i].Valid && weights[i].Valid}
		if r.Valid {
			r.Raw = raw[i].Value
			r.Weight = weights[i].Value
		}
		batch.Readings = append(batch.Readings, r)
	}
	return batch, nil
}

func formatWeights(batch mqtt.Batch) string {
	parts := make([]string, len(batch.Readings))
	for i, r := range batch.Readings {
		if r.Valid {
			parts[i] = strconv.FormatFloat(r.Weight, 'f', 3, 64)
		} else {
			parts[i] = "-"
		}
	}
	return strings.Join(parts, " ")
}

func formatRaw(batch mqtt.Batch) string {
	parts := make([]string, len(batch.Readings))
	for i, r := range batch.Readings {
		if r.Valid {
			parts[i] = strconv.FormatFloat(r.Raw, 'f', 1, 64)
		} else {
			parts[i] = "-"
		}
	}
	return strings.Join(parts, " ")
}

// runCalibration walks the operator through the reference weights, then
// prints the fitted multiples and optionally persists them to the config
// file.
func runCalibration(scale *hx711.Scale, cfg config.Config, opts options) error {
	cal := &hx711.Calibrator{Scale: scale, Readings: cfg.ReadingsToAverage}
	op := &consoleOperator{weights: opts.weights, stdin: bufio.NewReader(os.Stdin)}

	multiples, err := cal.Run(op)
	if err != nil {
		return fmt.Errorf("calibration: %w", err)
	}

	for i, m := range multiples {
		fmt.Printf("device %d: weight multiple = %g\n", i, m)
	}

	if opts.save {
		if opts.configPath == "" {
			return errors.New("-save requires -config")
		}
		cfg.WeightMultiples = multiples
		if err := config.Save(opts.configPath, cfg); err != nil {
			return err
		}
		log.Printf("saved weight multiples to %s", opts.configPath)
	}
	return nil
}

// errAborted is returned when the operator exits calibration with ESC.
var errAborted = errors.New("aborted by operator")

// consoleOperator paces calibration at the terminal: weights come from the
// -weights flag or are prompted on stdin; physical steps are confirmed with
// a keypress (C to continue, ESC to abort).
type consoleOperator struct {
	weights []float64
	next    int
	stdin   *bufio.Reader
}

func (o *consoleOperator) NextWeight() (float64, bool, error) {
	if o.next < len(o.weights) {
		w := o.weights[o.next]
		o.next++
		return w, true, nil
	}
	if len(o.weights) > 0 {
		// A fixed list was given; don't fall through to prompting.
		return 0, false, nil
	}

	fmt.Print("Enter reference weight (empty to finish): ")
	line, err := o.stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, false, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false, nil
	}
	w, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid weight %q: %w", line, err)
	}
	return w, true, nil
}

func (o *consoleOperator) Confirm(prompt string) error {
	fmt.Printf("%s, then press C to continue (ESC to abort)\n", prompt)
	for {
		ch, key, err := keyboard.GetSingleKey()
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		switch {
		case key == keyboard.KeyEsc:
			return errAborted
		case ch == 'c' || ch == 'C':
			return nil
		}
	}
}
