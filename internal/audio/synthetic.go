package audio

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/engine"
	"github.com/guidoenr/stemdeck/internal/stems"
)

// Synthetic is a backend with a simulated clock and spectrum for running
// without a sound card.
type Synthetic struct {
	logger zerolog.Logger
	// Durations maps a source to its length in seconds. Unknown sources last
	// DefaultDuration.
	Durations       map[string]float64
	DefaultDuration float64
	now             func() time.Time
}

// NewSynthetic returns a synthetic backend.
func NewSynthetic(logger zerolog.Logger, durations map[string]float64) *Synthetic {
	return &Synthetic{
		logger:          logger.With().Str("component", "audio").Str("backend", "synthetic").Logger(),
		Durations:       durations,
		DefaultDuration: 180,
		now:             time.Now,
	}
}

// Open implements engine.Backend.
func (s *Synthetic) Open() (engine.Graph, error) {
	s.logger.Info().Msg("synthetic audio opened")
	return &syntheticGraph{
		backend: s,
		gen:     newSpectrumGenerator(s.now),
	}, nil
}

type syntheticGraph struct {
	backend *Synthetic
	gen     *spectrumGenerator

	mu      sync.Mutex
	src     string
	dur     float64
	offset  float64   // position when the clock was last anchored
	since   time.Time // anchor, zero while paused
	onEnded func()
	timer   *time.Timer
}

func (g *syntheticGraph) Load(ctx context.Context, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dur, ok := g.backend.Durations[src]
	if !ok || dur <= 0 {
		dur = g.backend.DefaultDuration
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopTimerLocked()
	g.src, g.dur, g.offset, g.since = src, dur, 0, time.Time{}
	return nil
}

func (g *syntheticGraph) Play() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.src == "" {
		return engine.ErrNoSource
	}
	if !g.since.IsZero() {
		return nil
	}
	if g.offset >= g.dur {
		g.offset = 0
	}
	g.since = g.backend.now()
	g.armTimerLocked()
	return nil
}

func (g *syntheticGraph) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offset = g.positionLocked()
	g.since = time.Time{}
	g.stopTimerLocked()
}

func (g *syntheticGraph) Seek(seconds float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.src == "" {
		return engine.ErrNoSource
	}
	g.offset = math.Max(0, math.Min(g.dur, seconds))
	if !g.since.IsZero() {
		g.since = g.backend.now()
		g.armTimerLocked()
	}
	return nil
}

func (g *syntheticGraph) Position() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positionLocked()
}

func (g *syntheticGraph) positionLocked() float64 {
	pos := g.offset
	if !g.since.IsZero() {
		pos += g.backend.now().Sub(g.since).Seconds()
	}
	return math.Min(pos, g.dur)
}

func (g *syntheticGraph) Duration() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.src == "" {
		return 0
	}
	return g.dur
}

func (g *syntheticGraph) SetStemGain(s stems.Stem, v float64) {
	g.gen.setGain(s, v)
}

// The analyser sits before the master volume, so mute and volume leave the
// simulated spectrum alone.
func (g *syntheticGraph) SetMuted(bool)     {}
func (g *syntheticGraph) SetVolume(float64) {}

func (g *syntheticGraph) Analyser() analyzer.Source {
	return g.gen
}

func (g *syntheticGraph) SetOnEnded(fn func()) {
	g.mu.Lock()
	g.onEnded = fn
	g.mu.Unlock()
}

func (g *syntheticGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopTimerLocked()
	g.src = ""
	return nil
}

func (g *syntheticGraph) armTimerLocked() {
	g.stopTimerLocked()
	remaining := time.Duration((g.dur - g.offset) * float64(time.Second))
	g.timer = time.AfterFunc(remaining, g.finish)
}

func (g *syntheticGraph) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *syntheticGraph) finish() {
	g.mu.Lock()
	if g.since.IsZero() {
		g.mu.Unlock()
		return
	}
	g.offset, g.since, g.timer = g.dur, time.Time{}, nil
	fn := g.onEnded
	g.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// spectrumGenerator fakes a byte spectrum with slow band oscillations, a
// periodic kick and noise. Stem gains scale their part of the spectrum.
type spectrumGenerator struct {
	mu    sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
	start time.Time
	gains [4]float64
}

func newSpectrumGenerator(now func() time.Time) *spectrumGenerator {
	return &spectrumGenerator{
		rng:   rand.New(rand.NewSource(now().UnixNano())),
		now:   now,
		start: now(),
		gains: [4]float64{1, 1, 1, 1},
	}
}

func (f *spectrumGenerator) setGain(s stems.Stem, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, st := range stems.All {
		if st == s {
			f.gains[i] = v
		}
	}
}

func (f *spectrumGenerator) FrequencyBinCount() int { return 128 }

func (f *spectrumGenerator) ByteFrequencyData(dst []uint8) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.now().Sub(f.start).Seconds()
	// 120 bpm kick
	kick := math.Pow(math.Max(0, math.Cos(math.Pi*2*t)), 8)
	bass := 0.5 + 0.3*math.Sin(t*0.7) + 0.4*kick
	mid := 0.4 + 0.4*math.Sin(t*1.2+0.5)
	high := 0.3 + 0.3*math.Sin(t*2.1+1.0)

	n := min(len(dst), f.FrequencyBinCount())
	for k := range n {
		var v, gain float64
		switch {
		case k < 10:
			v, gain = bass, math.Max(f.gains[0], f.gains[1])
		case k < 50:
			v, gain = mid, f.gains[2]
		default:
			v, gain = high*(1-float64(k-50)/100), math.Max(f.gains[0], f.gains[3])
		}
		v = (v + f.rng.Float64()*0.1) * gain
		dst[k] = uint8(math.Max(0, math.Min(1, v)) * 255)
	}
	return n
}
