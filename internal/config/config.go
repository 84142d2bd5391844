// Package config loads process configuration from a YAML file, STEMDECK_*
// environment variables and command line flags.
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

	"github.com/guidoenr/stemdeck/internal/keepalive"
)

// EnvPrefix prefixes every environment override, e.g. STEMDECK_MUSIC_ROOT.
const EnvPrefix = "STEMDECK"

// Config is the validated process configuration.
type Config struct {
	Debug        bool               `mapstructure:"debug"`
	Environment  string             `mapstructure:"environment"`
	Music        MusicConfig        `mapstructure:"music"`
	Audio        AudioConfig        `mapstructure:"audio"`
	Beat         BeatConfig         `mapstructure:"beat"`
	Keepalive    keepalive.Mode     `mapstructure:"keepalive"`
	MediaSession MediaSessionConfig `mapstructure:"mediasession"`
	Control      ControlConfig      `mapstructure:"control"`
	Prefs        PrefsConfig        `mapstructure:"prefs"`
	Render       RenderConfig       `mapstructure:"render"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type MusicConfig struct {
	Root    string `mapstructure:"root"`    // directory or http(s) URL
	Catalog string `mapstructure:"catalog"` // optional YAML track list
}

type AudioConfig struct {
	SampleRate int           `mapstructure:"samplerate"`
	Buffer     time.Duration `mapstructure:"buffer"`
	FFTSize    int           `mapstructure:"fftsize"`
	Disabled   bool          `mapstructure:"disabled"`
}

type BeatConfig struct {
	Smoothing   float64       `mapstructure:"smoothing"`
	Sensitivity float64       `mapstructure:"sensitivity"`
	MinInterval time.Duration `mapstructure:"mininterval"`
	NoiseFloor  float64       `mapstructure:"noisefloor"` // band levels at or below read as silence
}

type MediaSessionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Name    string `mapstructure:"name"`
}

type ControlConfig struct {
	Addr string `mapstructure:"addr"`
}

type PrefsConfig struct {
	File string `mapstructure:"file"`
}

type RenderConfig struct {
	FPS    int  `mapstructure:"fps"`
	Status bool `mapstructure:"status"`
}

// New returns a viper instance with defaults and env overrides registered.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("debug", false)
	v.SetDefault("environment", "production")
	v.SetDefault("music.root", ".")
	v.SetDefault("music.catalog", "")
	v.SetDefault("audio.samplerate", 44100)
	v.SetDefault("audio.buffer", 100*time.Millisecond)
	v.SetDefault("audio.fftsize", 256)
	v.SetDefault("audio.disabled", false)
	v.SetDefault("beat.smoothing", 0.85)
	v.SetDefault("beat.sensitivity", 1.2)
	v.SetDefault("beat.mininterval", 120*time.Millisecond)
	v.SetDefault("beat.noisefloor", 0.0)
	v.SetDefault("keepalive", string(keepalive.ModeAuto))
	v.SetDefault("mediasession.enabled", true)
	v.SetDefault("mediasession.name", "stemdeck")
	v.SetDefault("control.addr", "")
	v.SetDefault("prefs.file", defaultPrefsFile())
	v.SetDefault("render.fps", 30)
	v.SetDefault("render.status", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags maps command line flags onto config keys. Flags not listed keep
// their own name.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	aliases := map[string]string{
		"music-root":   "music.root",
		"no-audio":     "audio.disabled",
		"control-addr": "control.addr",
	}
	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		key := f.Name
		if alias, ok := aliases[f.Name]; ok {
			key = alias
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, fmt.Errorf("bind flag %s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load reads path, or searches for stemdeck.yaml in . and
// $HOME/.config/stemdeck when path is empty, then validates the result.
// A missing file is fine when searching.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("stemdeck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "stemdeck"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and normalizes enums.
func (c *Config) Validate() error {
	var errs []error
	mode, err := keepalive.ParseMode(string(c.Keepalive))
	if err != nil {
		errs = append(errs, err)
	}
	c.Keepalive = mode

	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.samplerate %d out of range [8000, 192000]", c.Audio.SampleRate))
	}
	if c.Audio.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.buffer must be positive"))
	}
	if c.Audio.FFTSize < 32 || c.Audio.FFTSize > 32768 {
		errs = append(errs, fmt.Errorf("audio.fftsize %d out of range [32, 32768]", c.Audio.FFTSize))
	}
	if c.Beat.Smoothing <= 0 || c.Beat.Smoothing >= 1 {
		errs = append(errs, fmt.Errorf("beat.smoothing %.2f must be in (0, 1)", c.Beat.Smoothing))
	}
	if c.Beat.Sensitivity <= 0 {
		errs = append(errs, fmt.Errorf("beat.sensitivity must be positive"))
	}
	if c.Beat.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("beat.mininterval must not be negative"))
	}
	if c.Beat.NoiseFloor < 0 || c.Beat.NoiseFloor > 0.95 {
		errs = append(errs, fmt.Errorf("beat.noisefloor %.2f must be in [0, 0.95]", c.Beat.NoiseFloor))
	}
	if c.Render.FPS <= 0 || c.Render.FPS > 120 {
		errs = append(errs, fmt.Errorf("render.fps %d out of range [1, 120]", c.Render.FPS))
	}
	if c.MediaSession.Enabled && c.MediaSession.Name == "" {
		errs = append(errs, fmt.Errorf("mediasession.name is required when enabled"))
	}
	return errors.Join(errs...)
}

// Development reports whether debug logging should be on.
func (c *Config) Development() bool {
	return c.Debug || c.Environment == "development"
}

func defaultPrefsFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".stemdeck-prefs.yaml"
	}
	return filepath.Join(dir, "stemdeck", "prefs.yaml")
}
