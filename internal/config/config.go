// ABOUTME: Runtime configuration loaded from flags, environment and an optional YAML file
// ABOUTME: Provides defaults, validation and the session audio format
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/codec"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. RESONATE_VOICE_PORT
const EnvPrefix = "RESONATE_VOICE"

// Config holds every runtime setting. Keys match the YAML file and the
// RESONATE_VOICE_* environment variables.
type Config struct {
	Host            bool   `mapstructure:"host"`
	Server          string `mapstructure:"server"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	Backend         string `mapstructure:"backend"`
	Codec           string `mapstructure:"codec"`
	Decoder         string `mapstructure:"decoder"`
	BufferMs        int    `mapstructure:"buffer_ms"`
	SampleRate      int    `mapstructure:"sample_rate"`
	Channels        int    `mapstructure:"channels"`
	Bitrate         int    `mapstructure:"bitrate"`
	Capacity        int    `mapstructure:"capacity"`
	DisableLoopback bool   `mapstructure:"disable_loopback"`
	ListenOnly      bool   `mapstructure:"listen_only"`
	TestTone        bool   `mapstructure:"test_tone"`
	MDNS            bool   `mapstructure:"mdns"`
	NoTUI           bool   `mapstructure:"no_tui"`
	LogFile         string `mapstructure:"log_file"`
	LogLevel        string `mapstructure:"log_level"`
}

// Default returns the settings used when nothing overrides them
func Default() *Config {
	return &Config{
		Port:            8927,
		Backend:         output.BackendMalgo,
		Codec:           "opus",
		Decoder:         codec.DecoderLibopus,
		BufferMs:        output.DefaultBufferMs,
		SampleRate:      audio.DefaultFormat.SampleRate,
		Channels:        audio.DefaultFormat.Channels,
		Bitrate:         codec.DefaultBitrate,
		Capacity:        4,
		DisableLoopback: true,
		MDNS:            true,
		LogFile:         "resonate-voice.log",
		LogLevel:        "info",
	}
}

type flagDef struct {
	name  string
	key   string
	usage string
}

var flagDefs = []flagDef{
	{"host", "host", "Host a session instead of joining one"},
	{"server", "server", "Hub address to join (host:port); empty uses mDNS discovery"},
	{"port", "port", "Hub listen port when hosting"},
	{"name", "name", "Display name (default: <hostname>-voice)"},
	{"backend", "backend", "Playback backend: " + strings.Join(output.Backends(), ", ")},
	{"codec", "codec", "Wire codec when hosting: opus or pcm"},
	{"decoder", "decoder", "Opus decoder: libopus or pion"},
	{"buffer-ms", "buffer_ms", "Per-peer playback buffer in milliseconds"},
	{"sample-rate", "sample_rate", "Session sample rate (host only)"},
	{"channels", "channels", "Session channel count (host only)"},
	{"bitrate", "bitrate", "Opus bitrate in bits per second"},
	{"capacity", "capacity", "Maximum session members (host only)"},
	{"disable-loopback", "disable_loopback", "Do not play back your own voice"},
	{"listen-only", "listen_only", "Join without opening the microphone"},
	{"test-tone", "test_tone", "Send a 440Hz test tone instead of the microphone"},
	{"mdns", "mdns", "Advertise or discover sessions over mDNS"},
	{"no-tui", "no_tui", "Disable the TUI and stream logs to stdout"},
	{"log-file", "log_file", "Log file path"},
	{"log-level", "log_level", "Log level: debug, info, warn, error"},
}

// hubFlags are the settings a dedicated hub understands
var hubFlags = []string{"port", "name", "codec", "sample-rate", "channels", "capacity", "mdns", "log-file", "log-level"}

// RegisterFlags adds every setting to cmd and binds it to v
func RegisterFlags(cmd *cobra.Command, v *viper.Viper) error {
	return register(cmd, v, flagDefs)
}

// RegisterHubFlags adds only the session settings used by a dedicated hub
func RegisterHubFlags(cmd *cobra.Command, v *viper.Viper) error {
	defs := make([]flagDef, 0, len(hubFlags))
	for _, fd := range flagDefs {
		if slices.Contains(hubFlags, fd.name) {
			defs = append(defs, fd)
		}
	}
	return register(cmd, v, defs)
}

// register declares each flag with its default from Default and binds it
// to its viper key
func register(cmd *cobra.Command, v *viper.Viper, defs []flagDef) error {
	defaults := make(map[string]any)
	if err := mapstructure.Decode(*Default(), &defaults); err != nil {
		return err
	}

	f := cmd.Flags()
	for _, fd := range defs {
		switch def := defaults[fd.key].(type) {
		case bool:
			f.Bool(fd.name, def, fd.usage)
		case int:
			f.Int(fd.name, def, fd.usage)
		case string:
			f.String(fd.name, def, fd.usage)
		default:
			return fmt.Errorf("no default for flag %s", fd.name)
		}

		if err := v.BindPFlag(fd.key, f.Lookup(fd.name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", fd.name, err)
		}
	}
	return nil
}

// Load merges defaults, the config file, environment and bound flags
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("resonate-voice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(configDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Name = hostname + "-voice"
	}

	return cfg, nil
}

// opusRates are the sample rates libopus accepts
var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// Validate rejects settings the session cannot run with
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(opusRates, c.SampleRate) {
		errs = append(errs, fmt.Errorf("sample_rate %d not supported by opus (use one of %v)", c.SampleRate, opusRates))
	}
	if c.Channels < 1 || c.Channels > 2 {
		errs = append(errs, fmt.Errorf("channels must be 1 or 2, got %d", c.Channels))
	}
	if c.BufferMs < 20 || c.BufferMs > 5000 {
		errs = append(errs, fmt.Errorf("buffer_ms must be between 20 and 5000, got %d", c.BufferMs))
	}
	if c.Capacity < 2 || c.Capacity > 64 {
		errs = append(errs, fmt.Errorf("capacity must be between 2 and 64, got %d", c.Capacity))
	}
	if !slices.Contains(output.Backends(), c.Backend) {
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Codec != "opus" && c.Codec != "pcm" {
		errs = append(errs, fmt.Errorf("unknown codec %q", c.Codec))
	}
	if c.Decoder != codec.DecoderLibopus && c.Decoder != codec.DecoderPion {
		errs = append(errs, fmt.Errorf("unknown decoder %q", c.Decoder))
	}
	if c.Bitrate < 6000 || c.Bitrate > 510000 {
		errs = append(errs, fmt.Errorf("bitrate must be between 6000 and 510000, got %d", c.Bitrate))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// Format returns the session audio format a host announces
func (c *Config) Format() audio.Format {
	return audio.Format{
		Codec:      c.Codec,
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		BitDepth:   16,
	}
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "resonate-voice")
}
