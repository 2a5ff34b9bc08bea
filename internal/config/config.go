package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/satindergrewal/songwheel/internal/wheel"
	"gopkg.in/yaml.v3"
)

// Instrument sink names accepted in Config.Instrument.
const (
	SinkConsole = "console"
	SinkSerial  = "serial"
	SinkMIDI    = "midi"
	SinkSynth   = "synth"
)

var ErrInvalid = errors.New("invalid config")

// Config holds all runtime configuration. Values come from the defaults,
// then the YAML file named by SONGWHEEL_CONFIG, then environment variables.
type Config struct {
	// Server
	Port int `yaml:"port"`

	// Wheel timing
	BPM    float64       `yaml:"bpm"`
	Step   time.Duration `yaml:"step"`    // motor update interval
	WarmUp time.Duration `yaml:"warm_up"` // wheel spin-up before the first note

	// Instrument sinks, comma separated: console, serial, midi, synth
	Instrument string `yaml:"instrument"`

	SerialDevice string `yaml:"serial_device"`
	SerialBaud   int    `yaml:"serial_baud"`

	MIDIPort    string `yaml:"midi_port"` // output port name, substring match
	MIDIChannel uint8  `yaml:"midi_channel"`

	BasePitch int     `yaml:"base_pitch"` // MIDI key of pick 1
	SynthGain float64 `yaml:"synth_gain"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:         8000,
		BPM:          60,
		Step:         25 * time.Millisecond,
		WarmUp:       time.Second,
		Instrument:   SinkConsole + "," + SinkSynth,
		SerialDevice: "/dev/ttyUSB0",
		SerialBaud:   115200,
		MIDIChannel:  0,
		BasePitch:    57,
		SynthGain:    0.25,
	}
}

// Load reads configuration with sane defaults. It fails only when
// SONGWHEEL_CONFIG names a file that cannot be read or parsed, or when
// the result does not validate.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("SONGWHEEL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Port = envInt("SONGWHEEL_PORT", envInt("LISTEN_PORT", cfg.Port))
	cfg.BPM = envFloat("SONGWHEEL_BPM", cfg.BPM)
	cfg.Step = envDuration("SONGWHEEL_STEP", cfg.Step)
	cfg.WarmUp = envDuration("SONGWHEEL_WARMUP", cfg.WarmUp)
	cfg.Instrument = envStr("SONGWHEEL_INSTRUMENT", cfg.Instrument)
	cfg.SerialDevice = envStr("SONGWHEEL_SERIAL_DEVICE", cfg.SerialDevice)
	cfg.SerialBaud = envInt("SONGWHEEL_SERIAL_BAUD", cfg.SerialBaud)
	cfg.MIDIPort = envStr("SONGWHEEL_MIDI_PORT", cfg.MIDIPort)
	cfg.MIDIChannel = uint8(envInt("SONGWHEEL_MIDI_CHANNEL", int(cfg.MIDIChannel)))
	cfg.BasePitch = envInt("SONGWHEEL_BASE_PITCH", cfg.BasePitch)
	cfg.SynthGain = envFloat("SONGWHEEL_SYNTH_GAIN", cfg.SynthGain)

	return cfg, cfg.Validate()
}

// Instruments returns the configured sink names, lower-cased and trimmed.
func (c Config) Instruments() []string {
	var names []string
	for _, n := range strings.Split(c.Instrument, ",") {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Validate checks value ranges and sink names.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	}
	if c.BPM <= 0 {
		return fmt.Errorf("%w: bpm %v", ErrInvalid, c.BPM)
	}
	if c.Step <= 0 {
		return fmt.Errorf("%w: step %v", ErrInvalid, c.Step)
	}
	if err := wheel.CheckTempo(c.BPM, c.Step); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.MIDIChannel > 15 {
		return fmt.Errorf("%w: midi channel %d", ErrInvalid, c.MIDIChannel)
	}
	if c.BasePitch < 0 || c.BasePitch+11 > 127 {
		return fmt.Errorf("%w: base pitch %d", ErrInvalid, c.BasePitch)
	}
	if len(c.Instruments()) == 0 {
		return fmt.Errorf("%w: no instrument", ErrInvalid)
	}
	for _, n := range c.Instruments() {
		switch n {
		case SinkConsole, SinkSerial, SinkMIDI, SinkSynth:
		default:
			return fmt.Errorf("%w: unknown instrument %q", ErrInvalid, n)
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("25ms") or bare milliseconds ("25").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}
