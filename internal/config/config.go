// ABOUTME: Configuration for the audioio binaries
// ABOUTME: Flags, AUDIOIO_ environment variables and an optional config file, merged by viper
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AUDIOIO"

// Config is the merged configuration.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Device  DeviceConfig  `mapstructure:"device"`
	MIDI    MIDIConfig    `mapstructure:"midi"`
	State   StateConfig   `mapstructure:"state"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	ScanInterval time.Duration `mapstructure:"scaninterval"`
	TestTone     bool          `mapstructure:"testtone"`
	TUI          bool          `mapstructure:"tui"`
	Play         string        `mapstructure:"play"`
	Record       string        `mapstructure:"record"`
	Loop         bool          `mapstructure:"loop"`
	List         bool          `mapstructure:"list"`

	// ConfigFile is the file that was read, empty when none
	ConfigFile string `mapstructure:"-"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
	JSON  bool   `mapstructure:"json"`
}

// DeviceConfig is the preferred setup. Zero values mean "device default".
type DeviceConfig struct {
	Type           string  `mapstructure:"type"`
	Output         string  `mapstructure:"output"`
	Input          string  `mapstructure:"input"`
	SampleRate     float64 `mapstructure:"samplerate"`
	BufferSize     int     `mapstructure:"buffersize"`
	InputChannels  int     `mapstructure:"inputchannels"`
	OutputChannels int     `mapstructure:"outputchannels"`
}

type MIDIConfig struct {
	Inputs []string `mapstructure:"inputs"`
	Output string   `mapstructure:"output"`
}

type StateConfig struct {
	File string `mapstructure:"file"`
	// Disabled skips loading and saving the device setup document
	Disabled bool `mapstructure:"disabled"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	dir := defaultDir()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.json", false)
	v.SetDefault("device.type", "")
	v.SetDefault("device.output", "")
	v.SetDefault("device.input", "")
	v.SetDefault("device.samplerate", 0.0)
	v.SetDefault("device.buffersize", 0)
	v.SetDefault("device.inputchannels", 0)
	v.SetDefault("device.outputchannels", 2)
	v.SetDefault("midi.inputs", []string{})
	v.SetDefault("midi.output", "")
	v.SetDefault("state.file", filepath.Join(dir, "devicesetup.toml"))
	v.SetDefault("state.disabled", false)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("scaninterval", 2*time.Second)
	v.SetDefault("testtone", false)
	v.SetDefault("tui", true)
	v.SetDefault("play", "")
	v.SetDefault("record", "")
	v.SetDefault("loop", false)
	v.SetDefault("list", false)
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "audioio")
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-file":     "log.file",
	"log-json":     "log.json",
	"type":         "device.type",
	"output":       "device.output",
	"input":        "device.input",
	"rate":         "device.samplerate",
	"buffer":       "device.buffersize",
	"in-channels":  "device.inputchannels",
	"out-channels": "device.outputchannels",
	"midi-in":      "midi.inputs",
	"midi-out":     "midi.output",
	"state":        "state.file",
	"no-state":     "state.disabled",
	"metrics":      "metrics.addr",
	"scan":         "scaninterval",
	"tone":         "testtone",
	"tui":          "tui",
	"play":         "play",
	"record":       "record",
	"loop":         "loop",
	"list":         "list",
}

// NewFlagSet returns the flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "config file (toml, yaml or json)")
	fs.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	fs.String("log-file", "", "rotated log file")
	fs.Bool("log-json", false, "log JSON to the console")
	fs.StringP("type", "t", "", "device type")
	fs.StringP("output", "o", "", "output device name or glob")
	fs.StringP("input", "i", "", "input device name or glob")
	fs.Float64P("rate", "r", 0, "sample rate, 0 for the device default")
	fs.IntP("buffer", "b", 0, "buffer size in frames, 0 for the device default")
	fs.Int("in-channels", 0, "number of input channels")
	fs.Int("out-channels", 2, "number of output channels")
	fs.StringSlice("midi-in", nil, "MIDI inputs to enable")
	fs.String("midi-out", "", "default MIDI output")
	fs.String("state", "", "device setup file")
	fs.Bool("no-state", false, "do not load or save the device setup")
	fs.String("metrics", "", "serve prometheus metrics on this address")
	fs.Duration("scan", 2*time.Second, "device rescan interval")
	fs.Bool("tone", false, "play the test tone once the device opens")
	fs.Bool("tui", true, "show the device monitor")
	fs.StringP("play", "p", "", "audio file to play (wav, mp3, flac)")
	fs.String("record", "", "record the input to this WAV file")
	fs.Bool("loop", false, "loop the played file")
	fs.BoolP("list", "l", false, "list device types, devices and MIDI ports, then exit")
	return fs
}

// Load parses args and merges them over the environment, the config file
// and the defaults, in that order of precedence.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file, _ := fs.GetString("config")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(defaultDir())
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no device could satisfy.
func (c *Config) Validate() error {
	switch {
	case c.Device.SampleRate < 0:
		return fmt.Errorf("invalid sample rate %v", c.Device.SampleRate)
	case c.Device.BufferSize < 0:
		return fmt.Errorf("invalid buffer size %d", c.Device.BufferSize)
	case c.Device.InputChannels < 0 || c.Device.OutputChannels < 0:
		return errors.New("channel counts must not be negative")
	case c.ScanInterval <= 0:
		return fmt.Errorf("invalid scan interval %v", c.ScanInterval)
	}
	return nil
}
