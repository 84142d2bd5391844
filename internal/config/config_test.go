package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/stemdeck/internal/keepalive"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
	assert.Equal(t, ".", cfg.Music.Root)
	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Audio.Buffer)
	assert.Equal(t, 256, cfg.Audio.FFTSize)
	assert.Equal(t, 0.85, cfg.Beat.Smoothing)
	assert.Equal(t, 1.2, cfg.Beat.Sensitivity)
	assert.Equal(t, 120*time.Millisecond, cfg.Beat.MinInterval)
	assert.Zero(t, cfg.Beat.NoiseFloor)
	assert.Equal(t, keepalive.ModeAuto, cfg.Keepalive)
	assert.True(t, cfg.MediaSession.Enabled)
	assert.Equal(t, "stemdeck", cfg.MediaSession.Name)
	assert.Equal(t, 30, cfg.Render.FPS)
	assert.False(t, cfg.Development())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stemdeck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: development
music:
  root: https://cdn.example.com
audio:
  samplerate: 48000
  buffer: 200ms
beat:
  sensitivity: 1.5
  noisefloor: 0.1
keepalive: Always
control:
  addr: 127.0.0.1:7070
`), 0o644))
	t.Setenv("STEMDECK_AUDIO_FFTSIZE", "512")
	t.Setenv("STEMDECK_MEDIASESSION_ENABLED", "false")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "https://cdn.example.com", cfg.Music.Root)
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 200*time.Millisecond, cfg.Audio.Buffer)
	assert.Equal(t, 512, cfg.Audio.FFTSize)
	assert.Equal(t, 1.5, cfg.Beat.Sensitivity)
	assert.Equal(t, 0.1, cfg.Beat.NoiseFloor)
	assert.Equal(t, keepalive.ModeAlways, cfg.Keepalive)
	assert.False(t, cfg.MediaSession.Enabled)
	assert.Equal(t, "127.0.0.1:7070", cfg.Control.Addr)
	assert.True(t, cfg.Development())
}

func TestLoadSearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stemdeck.yaml"), []byte("debug: true\n"), 0o644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "stemdeck.yaml", filepath.Base(cfg.File))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBindFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("debug", false, "")
	flags.String("music-root", "", "")
	flags.Bool("no-audio", false, "")
	flags.String("control-addr", "", "")
	flags.String("keepalive", "", "")
	require.NoError(t, flags.Parse([]string{"--music-root=/srv/music", "--no-audio", "--keepalive=off", "--control-addr=:9000"}))

	v := New()
	require.NoError(t, BindFlags(v, flags))
	cfg, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "/srv/music", cfg.Music.Root)
	assert.True(t, cfg.Audio.Disabled)
	assert.Equal(t, keepalive.ModeOff, cfg.Keepalive)
	assert.Equal(t, ":9000", cfg.Control.Addr)
	assert.False(t, cfg.Debug, "unset flag keeps default")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Audio:        AudioConfig{SampleRate: 44100, Buffer: time.Millisecond, FFTSize: 256},
			Beat:         BeatConfig{Smoothing: 0.85, Sensitivity: 1.2},
			Render:       RenderConfig{FPS: 30},
			MediaSession: MediaSessionConfig{Enabled: true, Name: "stemdeck"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 100 }},
		{"buffer", func(c *Config) { c.Audio.Buffer = 0 }},
		{"fft size", func(c *Config) { c.Audio.FFTSize = 16 }},
		{"smoothing", func(c *Config) { c.Beat.Smoothing = 1 }},
		{"sensitivity", func(c *Config) { c.Beat.Sensitivity = 0 }},
		{"interval", func(c *Config) { c.Beat.MinInterval = -time.Second }},
		{"noise floor", func(c *Config) { c.Beat.NoiseFloor = 0.99 }},
		{"fps", func(c *Config) { c.Render.FPS = 0 }},
		{"keepalive", func(c *Config) { c.Keepalive = "sometimes" }},
		{"session name", func(c *Config) { c.MediaSession.Name = "" }},
	}

	base := valid()
	require.NoError(t, base.Validate())
	assert.Equal(t, keepalive.ModeAuto, base.Keepalive)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
