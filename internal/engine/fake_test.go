package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/stems"
)

type fakeGraph struct {
	mu       sync.Mutex
	loads    []string
	failLoad map[string]error
	gate     map[string]chan struct{}
	started  chan string
	playErr  error
	playing  bool
	loaded   string
	pos      float64
	dur      float64
	gains    map[stems.Stem]float64
	muted    bool
	volume   float64
	onEnded  func()
	closed   bool
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		failLoad: make(map[string]error),
		gate:     make(map[string]chan struct{}),
		gains:    make(map[stems.Stem]float64),
		dur:      200,
	}
}

func (g *fakeGraph) Load(ctx context.Context, src string) error {
	g.mu.Lock()
	g.loads = append(g.loads, src)
	gate := g.gate[src]
	started := g.started
	err := g.failLoad[src]
	g.loaded = ""
	g.mu.Unlock()

	if started != nil {
		started <- src
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.loaded = src
	g.pos = 0
	g.mu.Unlock()
	return nil
}

func (g *fakeGraph) Play() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.playErr != nil {
		return g.playErr
	}
	if g.loaded == "" {
		return ErrNoSource
	}
	g.playing = true
	return nil
}

func (g *fakeGraph) Pause() {
	g.mu.Lock()
	g.playing = false
	g.mu.Unlock()
}

func (g *fakeGraph) Seek(seconds float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loaded == "" {
		return errors.New("nothing loaded")
	}
	g.pos = seconds
	return nil
}

func (g *fakeGraph) Position() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pos
}

func (g *fakeGraph) Duration() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loaded == "" {
		return 0
	}
	return g.dur
}

func (g *fakeGraph) SetStemGain(s stems.Stem, v float64) {
	g.mu.Lock()
	g.gains[s] = v
	g.mu.Unlock()
}

func (g *fakeGraph) SetMuted(muted bool) {
	g.mu.Lock()
	g.muted = muted
	g.mu.Unlock()
}

func (g *fakeGraph) SetVolume(v float64) {
	g.mu.Lock()
	g.volume = v
	g.mu.Unlock()
}

func (g *fakeGraph) Analyser() analyzer.Source { return nil }

func (g *fakeGraph) SetOnEnded(fn func()) {
	g.mu.Lock()
	g.onEnded = fn
	g.mu.Unlock()
}

func (g *fakeGraph) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	return nil
}

// end simulates the loaded source playing out.
func (g *fakeGraph) end() {
	g.mu.Lock()
	g.playing = false
	g.pos = g.dur
	fn := g.onEnded
	g.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

func (g *fakeGraph) gain(s stems.Stem) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gains[s]
}

func (g *fakeGraph) isPlaying() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.playing
}

type fakeBackend struct {
	mu    sync.Mutex
	opens int
	err   error
	graph *fakeGraph
}

func (b *fakeBackend) Open() (Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	if b.err != nil {
		return nil, b.err
	}
	return b.graph, nil
}

func (b *fakeBackend) setErr(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func (b *fakeBackend) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

type fakePrefs struct {
	mu      sync.Mutex
	enabled []bool
}

func (p *fakePrefs) SetAudioEnabled(enabled bool) error {
	p.mu.Lock()
	p.enabled = append(p.enabled, enabled)
	p.mu.Unlock()
	return nil
}

func (g *fakeGraph) source() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loaded
}
