// Package analyzer turns the playing signal into frequency snapshots and
// beat/energy cues for visualizers.
package analyzer

import (
	"fmt"
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Source produces byte frequency snapshots. Analyser is the real one.
type Source interface {
	// ByteFrequencyData writes up to FrequencyBinCount magnitudes (0-255) into
	// dst and returns how many were written.
	ByteFrequencyData(dst []uint8) int
	FrequencyBinCount() int
}

// Config mirrors the tunables of a Web Audio AnalyserNode.
type Config struct {
	FFTSize               int
	SmoothingTimeConstant float64
	MinDecibels           float64
	MaxDecibels           float64
}

// DefaultConfig returns a 256 point analyser with browser default smoothing
// and decibel range.
func DefaultConfig() Config {
	return Config{
		FFTSize:               256,
		SmoothingTimeConstant: 0.8,
		MinDecibels:           -100,
		MaxDecibels:           -30,
	}
}

// Analyser is a pass-through streamer that keeps the latest mono samples and
// computes a smoothed byte spectrum from them on demand.
type Analyser struct {
	s   beep.Streamer
	cfg Config

	mu   sync.Mutex
	ring []float64
	pos  int

	specMu   sync.Mutex
	frame    []float64
	window   []float64
	smoothed []float64
}

// NewAnalyser wraps s. FFTSize is rounded up to a power of two in [32, 32768].
func NewAnalyser(s beep.Streamer, cfg Config) (*Analyser, error) {
	if s == nil {
		return nil, fmt.Errorf("analyser input is nil")
	}
	def := DefaultConfig()
	if cfg.FFTSize <= 0 {
		cfg.FFTSize = def.FFTSize
	}
	cfg.FFTSize = nextPow2(cfg.FFTSize)
	if cfg.FFTSize < 32 || cfg.FFTSize > 32768 {
		return nil, fmt.Errorf("fft size %d outside [32, 32768]", cfg.FFTSize)
	}
	if cfg.SmoothingTimeConstant < 0 || cfg.SmoothingTimeConstant > 1 {
		return nil, fmt.Errorf("smoothing %.2f outside [0, 1]", cfg.SmoothingTimeConstant)
	}
	if cfg.MinDecibels == 0 && cfg.MaxDecibels == 0 {
		cfg.MinDecibels, cfg.MaxDecibels = def.MinDecibels, def.MaxDecibels
	}
	if cfg.MinDecibels >= cfg.MaxDecibels {
		return nil, fmt.Errorf("min decibels %.1f must be below max %.1f", cfg.MinDecibels, cfg.MaxDecibels)
	}

	return &Analyser{
		s:        s,
		cfg:      cfg,
		ring:     make([]float64, cfg.FFTSize),
		frame:    make([]float64, cfg.FFTSize),
		window:   window.Blackman(cfg.FFTSize),
		smoothed: make([]float64, cfg.FFTSize/2),
	}, nil
}

// Stream passes audio through while capturing a mono mix.
func (a *Analyser) Stream(samples [][2]float64) (int, bool) {
	n, ok := a.s.Stream(samples)
	a.mu.Lock()
	for i := range n {
		a.ring[a.pos] = (samples[i][0] + samples[i][1]) / 2
		a.pos = (a.pos + 1) % len(a.ring)
	}
	a.mu.Unlock()
	return n, ok
}

// Err returns the wrapped streamer's error.
func (a *Analyser) Err() error {
	return a.s.Err()
}

// FrequencyBinCount is half the FFT size.
func (a *Analyser) FrequencyBinCount() int {
	return a.cfg.FFTSize / 2
}

// ByteFrequencyData implements Source.
func (a *Analyser) ByteFrequencyData(dst []uint8) int {
	a.specMu.Lock()
	defer a.specMu.Unlock()

	a.mu.Lock()
	size := len(a.ring)
	copy(a.frame, a.ring[a.pos:])
	copy(a.frame[size-a.pos:], a.ring[:a.pos])
	a.mu.Unlock()

	for i := range a.frame {
		a.frame[i] *= a.window[i]
	}
	spectrum := fft.FFTReal(a.frame)

	bins := min(len(dst), len(a.smoothed))
	tau := a.cfg.SmoothingTimeConstant
	scale := 255 / (a.cfg.MaxDecibels - a.cfg.MinDecibels)
	for k := range a.smoothed {
		mag := cmag(spectrum[k]) / float64(size)
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
		if k >= bins {
			continue
		}
		db := math.Inf(-1)
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		dst[k] = uint8(clamp(scale*(db-a.cfg.MinDecibels), 0, 255))
	}
	return bins
}

func cmag(c complex128) float64 {
	return math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func clamp(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
