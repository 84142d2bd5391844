// Package app runs the terminal player: it reads keys, draws frames and keeps
// the side services (beat monitor, keep-alive, media session, control
// surface) following the engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/engine"
	"github.com/guidoenr/stemdeck/internal/keepalive"
	"github.com/guidoenr/stemdeck/internal/mediasession"
	"github.com/guidoenr/stemdeck/internal/render"
	"github.com/guidoenr/stemdeck/internal/telemetry"
	"github.com/guidoenr/stemdeck/internal/web"
)

// seekStep is the arrow key jump in seconds.
const seekStep = 10.0

// blockedPrompt is shown while playback waits for a key press.
const blockedPrompt = "press any key to enable audio"

// Config configures the application runtime.
type Config struct {
	Width         int
	Height        int
	TargetFPS     int
	ShowStatusBar bool
	Palette       string
	UseANSI       bool
	// Interactive enables the terminal UI and keyboard. Without it the app
	// only logs transitions.
	Interactive bool
	// Autoplay counts startup as a user gesture and starts the first track.
	Autoplay    bool
	ControlAddr string
	Out         io.Writer
}

// Components are the services the app drives. Only Engine is required.
type Components struct {
	Engine    *engine.Engine
	Monitor   *analyzer.Monitor
	Keepalive *keepalive.Service
	Bridge    *mediasession.Bridge
	Control   *web.Server
	Metrics   *telemetry.Metrics
}

// App ties together playback, analysis and rendering.
type App struct {
	cfg      Config
	logger   zerolog.Logger
	engine   *engine.Engine
	monitor  *analyzer.Monitor
	keep     *keepalive.Service
	bridge   *mediasession.Bridge
	control  *web.Server
	metrics  *telemetry.Metrics
	renderer *render.Renderer
	out      io.Writer

	width        int
	height       int
	renderHeight int
	last         time.Time
	bins         []uint8
	inputEvents  chan action

	loading atomic.Int32
	mu      sync.Mutex
	prompt  string
	unsubs  []func()
}

// New constructs the application and subscribes it to the engine.
func New(logger zerolog.Logger, cfg Config, c Components) (*App, error) {
	if c.Engine == nil {
		return nil, errors.New("app needs an engine")
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 30
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.Height <= 0 {
		cfg.Height = 24
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	renderHeight := cfg.Height
	if cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}

	renderer, err := render.New(cfg.Width, renderHeight, cfg.Palette, cfg.UseANSI)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:          cfg,
		logger:       logger.With().Str("component", "app").Logger(),
		engine:       c.Engine,
		monitor:      c.Monitor,
		keep:         c.Keepalive,
		bridge:       c.Bridge,
		control:      c.Control,
		metrics:      c.Metrics,
		renderer:     renderer,
		out:          cfg.Out,
		width:        cfg.Width,
		height:       cfg.Height,
		renderHeight: renderHeight,
	}
	a.wire()
	return a, nil
}

func (a *App) wire() {
	a.unsubs = append(a.unsubs, a.engine.Subscribe(a.onEvent))
	a.unsubs = append(a.unsubs, a.engine.OnError(func(err *engine.AudioError) {
		if err.Blocked() {
			a.logger.Info().Msg("playback waiting for a key press")
			return
		}
		a.logger.Warn().Str("type", string(err.Type)).Err(err.Err).Msg(err.Message)
	}))
	if a.monitor != nil {
		a.unsubs = append(a.unsubs, a.monitor.Subscribe(func(b analyzer.BeatState) {
			if b.IsBeat {
				a.metrics.Beat()
			}
		}))
	}
	if a.bridge != nil {
		a.bridge.Bind(mediasession.Callbacks{
			OnPlay:     func() { a.fromMediaKey(actPlay) },
			OnPause:    func() { a.fromMediaKey(actPause) },
			OnPrevious: func() { a.fromMediaKey(actPrev) },
			OnNext:     func() { a.fromMediaKey(actNext) },
			OnSeek: func(seconds float64) {
				_ = a.engine.UserGesture()
				a.engine.SeekTo(seconds)
			},
		})
		a.bridge.Update(snapshotFor(a.engine.Snapshot()))
	}
}

// onEvent keeps the side services following playback.
func (a *App) onEvent(ev engine.Event) {
	playing := ev.State.IsPlaying
	if a.monitor != nil {
		a.monitor.SetPlaying(playing)
	}
	if a.keep != nil {
		a.keep.Follow(playing)
	}
	if a.bridge != nil {
		a.bridge.Update(snapshotFor(ev))
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case ev.Kind == engine.EventError && ev.Err.Blocked():
		a.prompt = blockedPrompt
	case ev.Kind == engine.EventError:
		a.prompt = ev.Err.Message
	case ev.Kind == engine.EventState && (playing || ev.Phase == engine.PhasePaused):
		a.prompt = ""
	}
	if ev.Kind == engine.EventState {
		a.logger.Debug().Str("phase", ev.Phase.String()).Str("track", ev.Track.Title).Bool("playing", playing).Msg("state")
	}
}

// Prompt returns the message shown instead of the key help.
func (a *App) Prompt() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prompt
}

func snapshotFor(ev engine.Event) mediasession.Snapshot {
	return mediasession.Snapshot{
		TrackIndex:  ev.State.CurrentTrackIndex,
		Track:       ev.Track,
		IsPlaying:   ev.State.IsPlaying,
		CurrentTime: ev.State.CurrentTime,
		Duration:    ev.State.Duration,
	}
}

// Run starts the engine loop, the control surface and the render loop until
// ctx is cancelled or the user quits.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.engine.Run(ctx)
	}()
	if a.control != nil && a.cfg.ControlAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.control.ListenAndServe(ctx, a.cfg.ControlAddr); err != nil {
				a.logger.Error().Err(err).Msg("control surface stopped")
			}
		}()
	}
	defer wg.Wait()

	if a.cfg.Autoplay {
		if err := a.engine.UserGesture(); err != nil {
			a.logger.Warn().Err(err).Msg("audio init failed")
		}
		go a.perform(ctx, action{kind: actPlay})
	}

	if !a.cfg.Interactive {
		<-ctx.Done()
		return ctx.Err()
	}
	return a.loop(ctx)
}

func (a *App) loop(ctx context.Context) error {
	frameDuration := time.Second / time.Duration(a.cfg.TargetFPS)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	enterAltScreen(a.out)
	clearScreen(a.out)
	hideCursor(a.out)
	defer func() {
		showCursor(a.out)
		exitAltScreen(a.out)
	}()

	inputCtx, cancelInput := context.WithCancel(ctx)
	defer cancelInput()
	a.startInputListener(inputCtx)
	a.ensureDimensions()
	a.last = time.Now()

	for {
		select {
		case <-ctx.Done():
			moveCursorHome(a.out)
			return ctx.Err()
		case act, ok := <-a.inputEvents:
			if !ok {
				a.inputEvents = nil
				continue
			}
			if act.kind == actQuit {
				moveCursorHome(a.out)
				return nil
			}
			a.handleInput(ctx, act)
		case <-ticker.C:
			a.step()
		}
	}
}

// handleInput treats every key as a user gesture, then runs the action off
// the render loop since loads may take a while.
func (a *App) handleInput(ctx context.Context, act action) {
	if err := a.engine.UserGesture(); err != nil {
		a.logger.Debug().Err(err).Msg("gesture")
	}
	if act.kind == actNone {
		return
	}
	go a.perform(ctx, act)
}

func (a *App) fromMediaKey(kind actionKind) {
	_ = a.engine.UserGesture()
	a.perform(context.Background(), action{kind: kind})
}

// perform runs one action against the engine.
func (a *App) perform(ctx context.Context, act action) {
	var err error
	switch act.kind {
	case actToggle:
		err = a.load(func() error { return a.engine.TogglePlay(ctx) })
	case actPlay:
		if !a.engine.State().IsPlaying {
			err = a.load(func() error { return a.engine.TogglePlay(ctx) })
		}
	case actPause:
		if a.engine.State().IsPlaying {
			err = a.engine.TogglePlay(ctx)
		}
	case actNext:
		err = a.load(func() error { return a.engine.PlayNext(ctx) })
	case actPrev:
		err = a.load(func() error { return a.engine.PlayPrev(ctx) })
	case actStem:
		_, err = a.engine.ToggleStem(act.stem)
	case actMute:
		a.engine.SetIsMuted(!a.engine.State().IsMuted)
	case actSeekBack:
		a.engine.SeekTo(a.engine.State().CurrentTime - seekStep)
	case actSeekForward:
		a.engine.SeekTo(a.engine.State().CurrentTime + seekStep)
	}
	if err != nil && !errors.Is(err, engine.ErrSuperseded) && !errors.Is(err, context.Canceled) {
		a.logger.Debug().Err(err).Msg("action failed")
	}
}

func (a *App) load(fn func() error) error {
	a.loading.Add(1)
	defer a.loading.Add(-1)
	return fn()
}

// Close releases the app's subscriptions and side services. The engine and
// monitor are owned by the caller.
func (a *App) Close() error {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
	if a.bridge != nil {
		a.bridge.Close()
	}
	if a.control != nil {
		a.control.Close()
	}
	if a.keep != nil {
		return a.keep.Close()
	}
	return nil
}

// View assembles what the next frame shows.
func (a *App) View() render.View {
	ev := a.engine.Snapshot()
	v := render.View{
		Index:       ev.State.CurrentTrackIndex,
		Total:       a.engine.Catalog().Len(),
		Title:       ev.Track.Title,
		Playing:     ev.State.IsPlaying,
		Loading:     a.loading.Load() > 0 || ev.Phase == engine.PhaseInitializing,
		CurrentTime: ev.State.CurrentTime,
		Duration:    ev.State.Duration,
		Volume:      ev.State.Volume,
		Muted:       ev.State.IsMuted,
		Stems:       ev.Stems,
		Prompt:      a.Prompt(),
	}
	if v.Duration <= 0 {
		if d := ev.Track.Length(); d > 0 {
			v.Duration = d.Seconds()
		}
	}
	if a.monitor != nil {
		v.Beat = a.monitor.State()
		a.bins = a.monitor.Spectrum(a.bins[:0])
		v.Bins = a.bins
	}
	return v
}

func (a *App) step() {
	a.ensureDimensions()

	now := time.Now()
	delta := now.Sub(a.last).Seconds()
	if delta <= 0 {
		delta = 1.0 / float64(a.cfg.TargetFPS)
	}
	a.last = now

	frame := a.renderer.Render(a.View(), delta)

	var b strings.Builder
	b.WriteString("\x1b[H")
	for _, line := range frame.Lines {
		b.WriteString(line)
		b.WriteString("\x1b[K\r\n")
	}
	if a.cfg.ShowStatusBar {
		b.WriteString(render.StatusBar(frame.Status, a.width))
	}
	io.WriteString(a.out, b.String())
}

func (a *App) ensureDimensions() {
	fd := int(os.Stdout.Fd())
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return
	}

	renderHeight := h
	if a.cfg.ShowStatusBar && renderHeight > 1 {
		renderHeight--
	}
	if w == a.width && h == a.height && renderHeight == a.renderHeight {
		return
	}

	a.width = w
	a.height = h
	a.renderHeight = renderHeight
	a.renderer.Resize(w, renderHeight)
}

func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.logger.Warn().Err(err).Msg("keyboard input disabled")
		a.inputEvents = nil
		return
	}

	events := make(chan action, 16)
	a.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			act := keyAction(char, key)
			select {
			case <-ctx.Done():
				return
			case events <- act:
			}
			if act.kind == actQuit {
				return
			}
		}
	}()
}

func clearScreen(w io.Writer) {
	fmt.Fprint(w, "\x1b[2J")
	moveCursorHome(w)
}

func moveCursorHome(w io.Writer) { fmt.Fprint(w, "\x1b[H") }
func hideCursor(w io.Writer)     { fmt.Fprint(w, "\x1b[?25l") }
func showCursor(w io.Writer)     { fmt.Fprint(w, "\x1b[?25h") }
func enterAltScreen(w io.Writer) { fmt.Fprint(w, "\x1b[?1049h") }
func exitAltScreen(w io.Writer)  { fmt.Fprint(w, "\x1b[?1049l\x1b[0m") }
