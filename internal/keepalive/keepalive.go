// Package keepalive loops a near-silent voice while music plays so mobile
// hosts keep the audio session alive in the background.
package keepalive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/wav"
	"github.com/rs/zerolog"

	"github.com/guidoenr/stemdeck/internal/telemetry"
)

// Gain is the voice level: inaudible but not zero, so the OS does not
// optimize the stream away.
const Gain = 0.01

// Output plays voices alongside the main graph.
type Output interface {
	Play(s beep.Streamer) error
	// Do runs fn while the output is not streaming.
	Do(fn func())
	SampleRate() beep.SampleRate
}

// Mode selects when the service runs.
type Mode string

const (
	ModeAuto   Mode = "auto" // mobile hosts only
	ModeAlways Mode = "always"
	ModeOff    Mode = "off"
)

// ParseMode accepts auto, always or off. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeAlways, ModeOff:
		return m, nil
	default:
		return "", fmt.Errorf("keepalive mode %q: want auto, always or off", s)
	}
}

// Enabled reports whether mode turns the service on for this host.
func (m Mode) Enabled(mobile bool) bool {
	switch m {
	case ModeAlways:
		return true
	case ModeAuto:
		return mobile
	default:
		return false
	}
}

// Service owns the keep-alive voice. It shares nothing with the engine graph.
type Service struct {
	logger  zerolog.Logger
	out     Output
	dir     string
	metrics *telemetry.Metrics

	mu     sync.Mutex
	ctrl   *beep.Ctrl
	clip   string
	active bool
}

// Option configures a Service.
type Option func(*Service)

// WithDir sets where the silent clip is written. The default is the OS temp dir.
func WithDir(dir string) Option {
	return func(s *Service) { s.dir = dir }
}

// WithMetrics records the voice state.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New returns a stopped service.
func New(logger zerolog.Logger, out Output, opts ...Option) *Service {
	s := &Service{
		logger: logger.With().Str("component", "keepalive").Logger(),
		out:    out,
		dir:    os.TempDir(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins looping the voice, building it on first use. Repeated calls
// are no-ops. Failures are logged and leave the service stopped.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active || s.out == nil {
		return
	}

	if s.ctrl == nil {
		voice, err := s.buildVoice()
		if err != nil {
			s.logger.Warn().Err(err).Msg("keepalive unavailable")
			return
		}
		ctrl := &beep.Ctrl{Streamer: voice}
		if err := s.out.Play(ctrl); err != nil {
			s.logger.Warn().Err(err).Msg("keepalive could not start")
			return
		}
		s.ctrl = ctrl
	} else {
		s.out.Do(func() { s.ctrl.Paused = false })
	}
	s.active = true
	s.metrics.SetKeepalive(true)
	s.logger.Debug().Msg("keepalive started")
}

// Stop pauses the voice. It is safe to call when not started.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.out.Do(func() { s.ctrl.Paused = true })
	s.active = false
	s.metrics.SetKeepalive(false)
	s.logger.Debug().Msg("keepalive stopped")
}

// Follow starts the voice while playing and stops it otherwise.
func (s *Service) Follow(playing bool) {
	if playing {
		s.Start()
		return
	}
	s.Stop()
}

// Active reports whether the voice is looping.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close stops the voice and removes the clip file.
func (s *Service) Close() error {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clip == "" {
		return nil
	}
	err := os.Remove(s.clip)
	s.clip = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove keepalive clip: %w", err)
	}
	return nil
}

// buildVoice writes the clip, decodes it into memory and loops it at Gain.
func (s *Service) buildVoice() (beep.Streamer, error) {
	rate := s.out.SampleRate()
	if s.clip == "" {
		p := filepath.Join(s.dir, fmt.Sprintf("stemdeck-keepalive-%d.wav", os.Getpid()))
		if err := writeSilentClip(p, int(rate), clipSeconds); err != nil {
			return nil, err
		}
		s.clip = p
	}

	f, err := os.Open(s.clip)
	if err != nil {
		return nil, fmt.Errorf("open keepalive clip: %w", err)
	}
	defer f.Close()
	decoded, format, err := wav.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode keepalive clip: %w", err)
	}
	defer decoded.Close()

	buf := beep.NewBuffer(format)
	buf.Append(decoded)
	if buf.Len() == 0 {
		return nil, fmt.Errorf("keepalive clip is empty")
	}

	var voice beep.Streamer = beep.Loop(-1, buf.Streamer(0, buf.Len()))
	if format.SampleRate != rate {
		voice = beep.Resample(3, format.SampleRate, rate, voice)
	}
	return &effects.Volume{Streamer: voice, Base: 10, Volume: -2}, nil
}
