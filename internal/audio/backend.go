package audio

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/engine"
	"github.com/guidoenr/stemdeck/internal/stems"
)

// Config controls the speaker graph.
type Config struct {
	SampleRate int
	Buffer     time.Duration
	Analyser   analyzer.Config
	Topology   stems.Topology
	// FetchTimeout bounds downloads of remote tracks.
	FetchTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.Buffer <= 0 {
		c.Buffer = 100 * time.Millisecond
	}
	if c.Analyser.FFTSize == 0 {
		c.Analyser = analyzer.DefaultConfig()
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	return c
}

// Backend opens the speaker graph. It implements engine.Backend.
type Backend struct {
	logger zerolog.Logger
	cfg    Config
	client *http.Client
}

// NewBackend returns a backend; nothing touches the sound card until Open.
func NewBackend(logger zerolog.Logger, cfg Config) *Backend {
	cfg = cfg.withDefaults()
	return &Backend{
		logger: logger.With().Str("component", "audio").Logger(),
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Open initializes the speaker and starts the graph on it.
func (b *Backend) Open() (engine.Graph, error) {
	rate, err := initSpeaker(beep.SampleRate(b.cfg.SampleRate), b.cfg.Buffer)
	if err != nil {
		return nil, err
	}
	g, err := newGraph(b.logger, b.cfg, rate, b.client)
	if err != nil {
		return nil, err
	}
	speaker.Play(g.out)
	g.attached = true
	b.logger.Info().Int("sample_rate", int(rate)).Msg("speaker graph opened")
	return g, nil
}

// Graph is the speaker pipeline:
// element -> analyser -> stems -> master volume -> pause control.
type Graph struct {
	logger zerolog.Logger
	rate   beep.SampleRate
	client *http.Client

	el       *element
	analyser *analyzer.Analyser
	stems    *stems.Graph
	volume   *effects.Volume
	ctrl     *beep.Ctrl
	out      beep.Streamer

	// speaker lock guards the stream fields above; mu guards the mix values
	mu       sync.Mutex
	muted    bool
	level    float64
	attached bool
}

func newGraph(logger zerolog.Logger, cfg Config, rate beep.SampleRate, client *http.Client) (*Graph, error) {
	el := &element{rate: rate}
	an, err := analyzer.NewAnalyser(el, cfg.Analyser)
	if err != nil {
		return nil, fmt.Errorf("build analyser: %w", err)
	}
	sg, err := stems.Build(logger, float64(rate), an, cfg.Topology)
	if err != nil {
		return nil, fmt.Errorf("build stem graph: %w", err)
	}
	vol := &effects.Volume{Streamer: sg, Base: 2}
	ctrl := &beep.Ctrl{Streamer: vol, Paused: true}
	return &Graph{
		logger:   logger,
		rate:     rate,
		client:   client,
		el:       el,
		analyser: an,
		stems:    sg,
		volume:   vol,
		ctrl:     ctrl,
		out:      ctrl,
		level:    1,
	}, nil
}

// lock takes the speaker lock only when the graph is on the speaker.
func (g *Graph) lock(fn func()) {
	if g.attached {
		speaker.Lock()
		defer speaker.Unlock()
	}
	fn()
}

// Load decodes src and makes it the paused current source.
func (g *Graph) Load(ctx context.Context, src string) error {
	start := time.Now()
	s, format, err := openSource(ctx, g.client, src)
	if err != nil {
		g.lock(func() {
			g.ctrl.Paused = true
			g.el.swap(nil, beep.Format{})
		})
		return err
	}
	g.lock(func() {
		g.ctrl.Paused = true
		g.el.swap(s, format)
	})
	g.logger.Debug().
		Str("src", src).
		Int("source_rate", int(format.SampleRate)).
		Dur("took", time.Since(start)).
		Msg("source loaded")
	return nil
}

// Play resumes output. An ended source restarts from the top.
func (g *Graph) Play() error {
	var err error
	g.lock(func() {
		if g.el.src == nil {
			err = engine.ErrNoSource
			return
		}
		if g.el.done {
			err = g.el.seek(0)
		}
		g.ctrl.Paused = false
	})
	return err
}

// Pause silences output and holds the position.
func (g *Graph) Pause() {
	g.lock(func() { g.ctrl.Paused = true })
}

// Seek moves to seconds into the source.
func (g *Graph) Seek(seconds float64) error {
	var err error
	g.lock(func() {
		err = g.el.seek(g.el.format.SampleRate.N(time.Duration(seconds * float64(time.Second))))
	})
	return err
}

// Position returns seconds played of the current source.
func (g *Graph) Position() float64 {
	var pos float64
	g.lock(func() { pos = g.el.position() })
	return pos
}

// Duration returns the source length in seconds, zero with nothing loaded.
func (g *Graph) Duration() float64 {
	var d float64
	g.lock(func() { d = g.el.duration() })
	return d
}

// SetStemGain ramps one stem.
func (g *Graph) SetStemGain(s stems.Stem, v float64) {
	g.stems.SetStemGain(s, v)
}

// SetMuted silences the master volume without touching stems.
func (g *Graph) SetMuted(muted bool) {
	g.mu.Lock()
	g.muted = muted
	g.mu.Unlock()
	g.applyVolume()
}

// SetVolume sets the linear master level in [0,1].
func (g *Graph) SetVolume(v float64) {
	g.mu.Lock()
	g.level = math.Max(0, math.Min(1, v))
	g.mu.Unlock()
	g.applyVolume()
}

func (g *Graph) applyVolume() {
	g.mu.Lock()
	muted, level := g.muted, g.level
	g.mu.Unlock()
	g.lock(func() {
		g.volume.Silent = muted || level == 0
		if level > 0 {
			g.volume.Volume = math.Log2(level)
		}
	})
}

// Analyser exposes the spectrum tap.
func (g *Graph) Analyser() analyzer.Source {
	return g.analyser
}

// SetOnEnded registers the callback for a source playing out. It runs on its
// own goroutine.
func (g *Graph) SetOnEnded(fn func()) {
	g.lock(func() { g.el.ended = fn })
}

// Close removes the graph from the speaker and releases the source.
func (g *Graph) Close() error {
	if g.attached {
		speaker.Clear()
	}
	g.lock(func() { g.el.swap(nil, beep.Format{}) })
	g.attached = false
	return nil
}
