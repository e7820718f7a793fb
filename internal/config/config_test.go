// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers defaults, YAML files, environment overrides and flag binding
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 8927, cfg.Port)
	assert.Equal(t, "malgo", cfg.Backend)
	assert.True(t, cfg.DisableLoopback)
	assert.NotEmpty(t, cfg.Name, "name falls back to the hostname")
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\nbackend: \"null\"\nbuffer_ms: 250\nname: desk\n"), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "null", cfg.Backend)
	assert.Equal(t, 250, cfg.BufferMs)
	assert.Equal(t, "desk", cfg.Name)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RESONATE_VOICE_CAPACITY", "8")
	t.Setenv("RESONATE_VOICE_BACKEND", "oto")

	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	require.NoError(t, RegisterFlags(cmd, v))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Capacity)
	assert.Equal(t, "oto", cfg.Backend)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	require.NoError(t, RegisterFlags(cmd, v))
	require.NoError(t, cmd.ParseFlags([]string{"--host", "--buffer-ms", "100", "--disable-loopback=false", "--decoder", "pion"}))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.True(t, cfg.Host)
	assert.Equal(t, 100, cfg.BufferMs)
	assert.False(t, cfg.DisableLoopback)
	assert.Equal(t, "pion", cfg.Decoder)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"bad sample rate", func(c *Config) { c.SampleRate = 44100 }, "sample_rate"},
		{"too many channels", func(c *Config) { c.Channels = 6 }, "channels"},
		{"buffer too small", func(c *Config) { c.BufferMs = 5 }, "buffer_ms"},
		{"buffer too large", func(c *Config) { c.BufferMs = 10000 }, "buffer_ms"},
		{"capacity too small", func(c *Config) { c.Capacity = 1 }, "capacity"},
		{"unknown backend", func(c *Config) { c.Backend = "portaudio" }, "backend"},
		{"unknown codec", func(c *Config) { c.Codec = "flac" }, "codec"},
		{"unknown decoder", func(c *Config) { c.Decoder = "ffmpeg" }, "decoder"},
		{"bitrate", func(c *Config) { c.Bitrate = 100 }, "bitrate"},
		{"port", func(c *Config) { c.Port = 70000 }, "port"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestFormat(t *testing.T) {
	cfg := Default()
	cfg.Channels = 1
	f := cfg.Format()
	assert.Equal(t, "opus", f.Codec)
	assert.Equal(t, 48000, f.SampleRate)
	assert.Equal(t, 1, f.Channels)
	assert.Equal(t, 16, f.BitDepth)
}

func TestHubFlagsAreASubset(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := &cobra.Command{Use: "hub"}
	v := viper.New()
	require.NoError(t, RegisterHubFlags(cmd, v))

	assert.NotNil(t, cmd.Flags().Lookup("capacity"))
	assert.Nil(t, cmd.Flags().Lookup("backend"), "hubs do not play audio")
	assert.Nil(t, cmd.Flags().Lookup("test-tone"))

	require.NoError(t, cmd.ParseFlags([]string{"--capacity", "12", "--codec", "pcm"}))
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Capacity)
	assert.Equal(t, "pcm", cfg.Format().Codec)
}

func TestFlagDefaultsMatchDefault(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, RegisterFlags(cmd, viper.New()))

	assert.Equal(t, "8927", cmd.Flags().Lookup("port").DefValue)
	assert.Equal(t, "true", cmd.Flags().Lookup("disable-loopback").DefValue)
	assert.Equal(t, "libopus", cmd.Flags().Lookup("decoder").DefValue)
}
