package app

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/catalog"
	"github.com/guidoenr/stemdeck/internal/engine"
	"github.com/guidoenr/stemdeck/internal/keepalive"
	"github.com/guidoenr/stemdeck/internal/mediasession"
	"github.com/guidoenr/stemdeck/internal/stems"
)

type stubGraph struct {
	mu      sync.Mutex
	loaded  string
	pos     float64
	playing bool
}

func (g *stubGraph) Load(_ context.Context, src string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loaded, g.pos = src, 0
	return nil
}

func (g *stubGraph) Play() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loaded == "" {
		return engine.ErrNoSource
	}
	g.playing = true
	return nil
}

func (g *stubGraph) Pause() {
	g.mu.Lock()
	g.playing = false
	g.mu.Unlock()
}

func (g *stubGraph) Seek(s float64) error {
	g.mu.Lock()
	g.pos = s
	g.mu.Unlock()
	return nil
}

func (g *stubGraph) Position() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pos
}

func (g *stubGraph) Duration() float64               { return 200 }
func (g *stubGraph) SetStemGain(stems.Stem, float64) {}
func (g *stubGraph) SetMuted(bool)                   {}
func (g *stubGraph) SetVolume(float64)               {}
func (g *stubGraph) Analyser() analyzer.Source       { return nil }
func (g *stubGraph) SetOnEnded(func())               {}
func (g *stubGraph) Close() error                    { return nil }

func (g *stubGraph) source() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loaded
}

type stubBackend struct{ graph *stubGraph }

func (b stubBackend) Open() (engine.Graph, error) { return b.graph, nil }

type stubSurface struct {
	mu       sync.Mutex
	states   []mediasession.PlaybackStatus
	handlers map[mediasession.Action]mediasession.ActionHandler
}

func (s *stubSurface) SetMetadata(mediasession.Metadata) error { return nil }

func (s *stubSurface) SetPlaybackState(st mediasession.PlaybackStatus) error {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
	return nil
}

func (s *stubSurface) SetPositionState(float64, float64) error { return nil }

func (s *stubSurface) SetActionHandler(a mediasession.Action, h mediasession.ActionHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handlers == nil {
		s.handlers = make(map[mediasession.Action]mediasession.ActionHandler)
	}
	s.handlers[a] = h
	return nil
}

func (s *stubSurface) lastState() mediasession.PlaybackStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return ""
	}
	return s.states[len(s.states)-1]
}

func (s *stubSurface) press(a mediasession.Action) {
	s.mu.Lock()
	h := s.handlers[a]
	s.mu.Unlock()
	h(mediasession.ActionDetails{Action: a})
}

type stubOutput struct{}

func (stubOutput) Play(beep.Streamer) error    { return nil }
func (stubOutput) Do(fn func())                { fn() }
func (stubOutput) SampleRate() beep.SampleRate { return 44100 }

type fixture struct {
	app     *App
	engine  *engine.Engine
	graph   *stubGraph
	surface *stubSurface
	keep    *keepalive.Service
	monitor *analyzer.Monitor
	out     *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := &stubGraph{}
	eng, err := engine.New(engine.Options{
		Catalog: catalog.Default(),
		Backend: stubBackend{graph: g},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	surf := &stubSurface{}
	bridge := mediasession.NewBridge(zerolog.Nop(), surf, mediasession.WithPositionInterval(time.Hour))
	keep := keepalive.New(zerolog.Nop(), stubOutput{}, keepalive.WithDir(t.TempDir()))
	monitor := analyzer.NewMonitor(zerolog.Nop(), func() analyzer.Source { return eng.Analyser() }, analyzer.DefaultBeatConfig())

	out := &bytes.Buffer{}
	a, err := New(zerolog.Nop(), Config{Width: 200, Height: 6, ShowStatusBar: true, Out: out}, Components{
		Engine:    eng,
		Monitor:   monitor,
		Keepalive: keep,
		Bridge:    bridge,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		a.Close()
		monitor.Close()
		eng.Close()
	})
	return &fixture{app: a, engine: eng, graph: g, surface: surf, keep: keep, monitor: monitor, out: out}
}

func TestKeyAction(t *testing.T) {
	tests := []struct {
		name string
		char rune
		key  keyboard.Key
		want action
	}{
		{"space key", 0, keyboard.KeySpace, action{kind: actToggle}},
		{"space char", ' ', 0, action{kind: actToggle}},
		{"next", 'n', 0, action{kind: actNext}},
		{"prev", 'P', 0, action{kind: actPrev}},
		{"drums", '1', 0, action{kind: actStem, stem: stems.Drums}},
		{"fx", '4', 0, action{kind: actStem, stem: stems.FX}},
		{"mute", 'm', 0, action{kind: actMute}},
		{"back", 0, keyboard.KeyArrowLeft, action{kind: actSeekBack}},
		{"forward", 0, keyboard.KeyArrowRight, action{kind: actSeekForward}},
		{"quit", 'q', 0, action{kind: actQuit}},
		{"escape", 0, keyboard.KeyEsc, action{kind: actQuit}},
		{"other", 'x', 0, action{kind: actNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keyAction(tt.char, tt.key))
		})
	}
}

func TestBlockedPromptClearsOnKeyPress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.PlayTrack(ctx, 3)
	require.Error(t, err)
	assert.Equal(t, blockedPrompt, f.app.Prompt())
	assert.Equal(t, 3, f.engine.State().CurrentTrackIndex)

	f.app.handleInput(ctx, action{kind: actNone})
	assert.Empty(t, f.app.Prompt())
	assert.True(t, f.engine.State().IsInitialized)

	f.app.perform(ctx, action{kind: actToggle})
	st := f.engine.State()
	assert.True(t, st.IsPlaying)
	assert.Equal(t, catalog.Default().Track(3).Src, f.graph.source())
}

func TestSideServicesFollowPlayback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.UserGesture())

	f.app.perform(ctx, action{kind: actPlay})
	require.True(t, f.engine.State().IsPlaying)
	assert.True(t, f.keep.Active())
	assert.True(t, f.monitor.Running())
	assert.Equal(t, mediasession.StatusPlaying, f.surface.lastState())

	f.app.perform(ctx, action{kind: actPause})
	require.False(t, f.engine.State().IsPlaying)
	assert.False(t, f.keep.Active())
	assert.False(t, f.monitor.Running())
	assert.Equal(t, mediasession.StatusPaused, f.surface.lastState())
}

func TestPerformActions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.UserGesture())
	f.app.perform(ctx, action{kind: actToggle})
	require.True(t, f.engine.State().IsPlaying)

	f.app.perform(ctx, action{kind: actStem, stem: stems.Drums})
	assert.False(t, f.engine.Stems().Drums)

	f.app.perform(ctx, action{kind: actMute})
	assert.True(t, f.engine.State().IsMuted)

	f.app.perform(ctx, action{kind: actSeekForward})
	assert.Equal(t, 10.0, f.engine.State().CurrentTime)
	f.app.perform(ctx, action{kind: actSeekBack})
	f.app.perform(ctx, action{kind: actSeekBack})
	assert.Equal(t, 0.0, f.engine.State().CurrentTime)

	f.app.perform(ctx, action{kind: actNext})
	assert.Equal(t, 1, f.engine.State().CurrentTrackIndex)
	f.app.perform(ctx, action{kind: actPrev})
	f.app.perform(ctx, action{kind: actPrev})
	assert.Equal(t, 24, f.engine.State().CurrentTrackIndex)
}

func TestMediaKeys(t *testing.T) {
	f := newFixture(t)

	f.surface.press(mediasession.ActionPlay)
	require.True(t, f.engine.State().IsPlaying, "media keys count as a gesture")

	f.surface.press(mediasession.ActionNext)
	assert.Equal(t, 1, f.engine.State().CurrentTrackIndex)

	f.surface.press(mediasession.ActionPause)
	assert.False(t, f.engine.State().IsPlaying)
	f.surface.press(mediasession.ActionPause)
	assert.False(t, f.engine.State().IsPlaying, "pause is not a toggle")
}

func TestStepDrawsFrame(t *testing.T) {
	f := newFixture(t)

	f.app.step()
	out := f.out.String()
	assert.True(t, strings.HasPrefix(out, "\x1b[H"))
	assert.Contains(t, out, "01/25 Alles hat ein Ende")
	assert.Contains(t, out, "0:00 / 3:42")
	assert.Contains(t, out, "q quit")

	v := f.app.View()
	assert.Equal(t, 25, v.Total)
	assert.Equal(t, 222.0, v.Duration, "listed duration until loaded")
	assert.False(t, v.Loading)
}

func TestSnapshotFor(t *testing.T) {
	tr := catalog.Default().Track(2)
	got := snapshotFor(engine.Event{
		State: engine.PlaybackState{CurrentTrackIndex: 2, IsPlaying: true, CurrentTime: 4, Duration: 90},
		Track: tr,
	})
	assert.Equal(t, mediasession.Snapshot{TrackIndex: 2, Track: tr, IsPlaying: true, CurrentTime: 4, Duration: 90}, got)
}

func TestNewNeedsEngine(t *testing.T) {
	_, err := New(zerolog.Nop(), Config{}, Components{})
	assert.Error(t, err)
}
