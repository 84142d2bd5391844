// Package engine owns playback: track selection, the transport state
// machine, stem mix, master volume and error reporting.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/catalog"
	"github.com/guidoenr/stemdeck/internal/stems"
	"github.com/guidoenr/stemdeck/internal/telemetry"
)

const defaultTimeUpdate = 250 * time.Millisecond

// blockedMessage is shown as a soft prompt rather than a hard error.
const blockedMessage = "Playback blocked: press any key to enable audio"

// Options configures an Engine.
type Options struct {
	Catalog *catalog.Catalog
	Backend Backend
	// Resolve maps catalog paths to loadable locations. Nil uses paths as-is.
	Resolve catalog.Resolver
	Logger  zerolog.Logger
	Prefs   Preferences
	Metrics *telemetry.Metrics

	Muted  bool
	Volume float64 // zero means full volume

	// TimeUpdate is the cadence of time events from Run.
	TimeUpdate time.Duration
	// DisableAutoAdvance keeps the player paused when a track ends.
	DisableAutoAdvance bool
}

// Engine is safe for concurrent use.
type Engine struct {
	logger      zerolog.Logger
	cat         *catalog.Catalog
	backend     Backend
	resolve     catalog.Resolver
	prefs       Preferences
	metrics     *telemetry.Metrics
	tick        time.Duration
	autoAdvance bool

	*emitter

	initMu    sync.Mutex
	loadMu    sync.Mutex
	requestID atomic.Uint64

	mu          sync.Mutex
	state       PlaybackState
	stems       stems.State
	phase       Phase
	graph       Graph
	gestured    bool
	pendingInit bool
	target      int   // last requested index, for relative navigation
	loaded      int   // index of the source in the graph, -1 for none
	generation  int64 // bumped on every successful start
	seq         uint64
	ended       chan int64
	closed      bool
}

// New validates opts and returns an uninitialized engine.
func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil || opts.Catalog.Len() == 0 {
		return nil, fmt.Errorf("engine needs a non-empty catalog")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("engine needs an audio backend")
	}
	resolve := opts.Resolve
	if resolve == nil {
		resolve = func(p string) string { return p }
	}
	tick := opts.TimeUpdate
	if tick <= 0 {
		tick = defaultTimeUpdate
	}
	volume := opts.Volume
	if volume <= 0 || volume > 1 || math.IsNaN(volume) {
		volume = 1
	}

	e := &Engine{
		logger:      opts.Logger.With().Str("component", "engine").Logger(),
		cat:         opts.Catalog,
		backend:     opts.Backend,
		resolve:     resolve,
		prefs:       opts.Prefs,
		metrics:     opts.Metrics,
		tick:        tick,
		autoAdvance: !opts.DisableAutoAdvance,
		emitter:     newEmitter(),
		state:       PlaybackState{IsMuted: opts.Muted, Volume: volume},
		stems:       stems.FullMix(),
		loaded:      -1,
		ended:       make(chan int64, 1),
	}
	for _, s := range stems.All {
		e.metrics.SetStem(string(s), true)
	}
	return e, nil
}

// batch collects events while locks are held so they can be dispatched
// after release. Subscribers may then call back into the engine.
type batch []Event

// snapshot must be called with e.mu held. Each call takes the next sequence
// number so the emitter can drop snapshots that lost a race.
func (e *Engine) snapshot(kind EventKind) Event {
	e.seq++
	return Event{
		Seq:   e.seq,
		Kind:  kind,
		Phase: e.phase,
		State: e.state,
		Stems: e.stems,
		Track: e.cat.Track(e.state.CurrentTrackIndex),
	}
}

// fail applies mutate under the state lock, then queues the state and the
// error. It returns the error for the caller to hand back.
func (e *Engine) fail(b *batch, typ ErrorType, msg string, cause error, mutate func()) *AudioError {
	ae := &AudioError{Type: typ, Message: msg, Err: cause}
	e.mu.Lock()
	if mutate != nil {
		mutate()
	}
	st := e.snapshot(EventState)
	ev := e.snapshot(EventError)
	e.mu.Unlock()
	ev.Err = ae
	*b = append(*b, st, ev)

	e.metrics.AudioError(string(typ))
	e.metrics.SetPlaying(st.State.IsPlaying)
	if ae.Blocked() {
		e.logger.Info().Msg("playback waiting for a user gesture")
	} else {
		e.logger.Warn().Err(cause).Str("type", string(typ)).Msg(msg)
	}
	return ae
}

// InitAudio opens the audio context and graph. It is idempotent and does
// nothing until a user gesture has been recorded; the deferred init then runs
// from UserGesture.
func (e *Engine) InitAudio() error {
	var b batch
	err := e.initAudio(&b)
	e.dispatch(b)
	return err
}

func (e *Engine) initAudio(b *batch) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("engine closed")
	}
	if e.graph != nil {
		e.mu.Unlock()
		return nil
	}
	if !e.gestured {
		e.pendingInit = true
		e.mu.Unlock()
		e.logger.Debug().Msg("audio init deferred until user gesture")
		return nil
	}
	e.phase = PhaseInitializing
	*b = append(*b, e.snapshot(EventState))
	e.mu.Unlock()

	g, err := e.backend.Open()
	if err != nil {
		return e.fail(b, ErrorInit, "Audio initialization failed", err, func() {
			e.phase = PhaseError
			e.pendingInit = false
		})
	}
	g.SetOnEnded(e.handleEnded)

	e.mu.Lock()
	for _, s := range stems.All {
		g.SetStemGain(s, gainFor(e.stems.Get(s)))
	}
	g.SetMuted(e.state.IsMuted)
	g.SetVolume(e.state.Volume)
	e.graph = g
	e.state.IsInitialized = true
	e.pendingInit = false
	e.phase = PhasePaused
	*b = append(*b, e.snapshot(EventState))
	e.mu.Unlock()

	e.logger.Info().Msg("audio initialized")
	return nil
}

// UserGesture records user activation and runs a deferred init.
func (e *Engine) UserGesture() error {
	e.mu.Lock()
	first := !e.gestured
	e.gestured = true
	pending := e.pendingInit
	e.mu.Unlock()
	if first {
		e.logger.Debug().Msg("user gesture recorded")
	}
	if !pending {
		return nil
	}
	return e.InitAudio()
}

// ensureGraph returns the graph, opening it if a gesture allows. Without a
// gesture the result is a blocked playback error.
func (e *Engine) ensureGraph(b *batch, index int) (Graph, error) {
	e.mu.Lock()
	g, gestured := e.graph, e.gestured
	e.mu.Unlock()
	if g != nil {
		return g, nil
	}
	if !gestured {
		_ = e.initAudio(b)
		return nil, e.fail(b, ErrorPlayback, blockedMessage, ErrAutoplayBlocked, func() {
			e.state.CurrentTrackIndex = index
			e.target = index
			e.state.IsPlaying = false
		})
	}
	if err := e.initAudio(b); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil {
		return nil, fmt.Errorf("audio graph unavailable")
	}
	return e.graph, nil
}

// PlayTrack loads the track at index (wrapped into range) and starts it.
// When a newer request arrives while this one waits or loads, it returns
// ErrSuperseded without touching state.
func (e *Engine) PlayTrack(ctx context.Context, index int) error {
	idx := e.cat.Wrap(index)
	e.mu.Lock()
	e.target = idx
	e.mu.Unlock()
	return e.serialized(ctx, idx)
}

// PlayNext advances by one, wrapping past the last track.
func (e *Engine) PlayNext(ctx context.Context) error {
	e.mu.Lock()
	idx := e.cat.Next(e.target)
	e.target = idx
	e.mu.Unlock()
	return e.serialized(ctx, idx)
}

// PlayPrev steps back by one, wrapping before the first track.
func (e *Engine) PlayPrev(ctx context.Context) error {
	e.mu.Lock()
	idx := e.cat.Prev(e.target)
	e.target = idx
	e.mu.Unlock()
	return e.serialized(ctx, idx)
}

func (e *Engine) serialized(ctx context.Context, idx int) error {
	id := e.requestID.Add(1)
	var b batch
	e.loadMu.Lock()
	err := ErrSuperseded
	if e.requestID.Load() == id {
		err = e.playTrack(ctx, &b, idx, id)
	}
	e.loadMu.Unlock()
	e.dispatch(b)
	return err
}

func (e *Engine) playTrack(ctx context.Context, b *batch, idx int, id uint64) error {
	track := e.cat.Track(idx)
	g, err := e.ensureGraph(b, idx)
	if err != nil {
		return err
	}

	g.Pause()
	start := time.Now()
	src := e.resolve(track.Src)
	log := e.logger.With().Int("index", idx).Str("title", track.Title).Logger()
	log.Debug().Str("src", src).Msg("loading track")

	if err := g.Load(ctx, src); err != nil {
		if e.requestID.Load() != id {
			e.dropSource()
			return ErrSuperseded
		}
		restore := func() {
			e.state.IsPlaying = false
			e.loaded = -1
			e.target = e.state.CurrentTrackIndex
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.mu.Lock()
			restore()
			e.phase = PhasePaused
			*b = append(*b, e.snapshot(EventState))
			e.mu.Unlock()
			return ctxErr
		}
		return e.fail(b, classify(err), fmt.Sprintf("Could not load %q", track.Title), err, func() {
			restore()
			e.phase = PhaseError
		})
	}
	if e.requestID.Load() != id {
		e.dropSource()
		return ErrSuperseded
	}

	if err := g.Play(); err != nil {
		typ, msg := ErrorPlayback, "Playback failed"
		if errors.Is(err, ErrAutoplayBlocked) {
			msg = blockedMessage
		}
		return e.fail(b, typ, msg, err, func() {
			e.state.CurrentTrackIndex = idx
			e.state.IsPlaying = false
			e.state.CurrentTime = 0
			e.state.Duration = g.Duration()
			e.loaded = idx
			e.phase = PhaseError
		})
	}

	e.mu.Lock()
	e.state.CurrentTrackIndex = idx
	e.state.IsPlaying = true
	e.state.CurrentTime = 0
	e.state.Duration = g.Duration()
	e.target = idx
	e.loaded = idx
	e.generation++
	e.phase = PhasePlaying
	*b = append(*b, e.snapshot(EventState))
	e.mu.Unlock()

	e.metrics.TrackStarted(track.Title, time.Since(start))
	e.metrics.SetPlaying(true)
	log.Info().Dur("load", time.Since(start)).Msg("track started")
	return nil
}

// dropSource forgets what the graph holds after a superseded load replaced
// or cleared it, so the next resume reloads the selected track.
func (e *Engine) dropSource() {
	e.mu.Lock()
	e.loaded = -1
	e.mu.Unlock()
}

// TogglePlay pauses a playing track or resumes the current one. A play
// attempt before any user gesture reports a blocked playback error.
func (e *Engine) TogglePlay(ctx context.Context) error {
	id := e.requestID.Add(1)
	var b batch
	e.loadMu.Lock()
	err := e.togglePlay(ctx, &b, id)
	e.loadMu.Unlock()
	e.dispatch(b)
	return err
}

func (e *Engine) togglePlay(ctx context.Context, b *batch, id uint64) error {
	e.mu.Lock()
	g, playing, idx, loaded := e.graph, e.state.IsPlaying, e.state.CurrentTrackIndex, e.loaded
	e.mu.Unlock()

	if playing && g != nil {
		g.Pause()
		e.mu.Lock()
		e.state.IsPlaying = false
		e.state.CurrentTime = g.Position()
		e.phase = PhasePaused
		*b = append(*b, e.snapshot(EventState))
		e.mu.Unlock()
		e.metrics.SetPlaying(false)
		return nil
	}

	g, err := e.ensureGraph(b, idx)
	if err != nil {
		return err
	}
	if loaded != idx {
		return e.playTrack(ctx, b, idx, id)
	}
	if err := g.Play(); err != nil {
		msg := "Playback failed"
		if errors.Is(err, ErrAutoplayBlocked) {
			msg = blockedMessage
		}
		return e.fail(b, ErrorPlayback, msg, err, func() {
			e.state.IsPlaying = false
			e.phase = PhaseError
		})
	}
	e.mu.Lock()
	e.state.IsPlaying = true
	e.phase = PhasePlaying
	*b = append(*b, e.snapshot(EventState))
	e.mu.Unlock()
	e.metrics.SetPlaying(true)
	return nil
}

// SeekToPercent seeks to p*duration with p clamped to [0,1]. It does
// nothing while the duration is unknown.
func (e *Engine) SeekToPercent(p float64) {
	if math.IsNaN(p) {
		return
	}
	p = math.Max(0, math.Min(1, p))
	e.mu.Lock()
	dur := e.state.Duration
	e.mu.Unlock()
	if !knownDuration(dur) {
		return
	}
	e.SeekTo(p * dur)
}

// SeekTo seeks to seconds clamped to [0, duration]. It does nothing while the
// duration is unknown.
func (e *Engine) SeekTo(seconds float64) {
	e.mu.Lock()
	g, dur := e.graph, e.state.Duration
	e.mu.Unlock()
	if g == nil || !knownDuration(dur) || math.IsNaN(seconds) {
		return
	}
	seconds = math.Max(0, math.Min(dur, seconds))
	if err := g.Seek(seconds); err != nil {
		e.logger.Warn().Err(err).Float64("seconds", seconds).Msg("seek failed")
		return
	}
	e.mu.Lock()
	e.state.CurrentTime = seconds
	ev := e.snapshot(EventTime)
	e.mu.Unlock()
	e.dispatch(batch{ev})
}

// ToggleStem flips stem s and ramps its gain. It returns the new value.
func (e *Engine) ToggleStem(s stems.Stem) (bool, error) {
	if !s.Valid() {
		return false, fmt.Errorf("unknown stem %q", s)
	}
	e.mu.Lock()
	on := !e.stems.Get(s)
	e.stems = e.stems.With(s, on)
	if e.graph != nil {
		e.graph.SetStemGain(s, gainFor(on))
	}
	ev := e.snapshot(EventStems)
	e.mu.Unlock()

	e.metrics.SetStem(string(s), on)
	e.logger.Debug().Str("stem", string(s)).Bool("enabled", on).Msg("stem toggled")
	e.dispatch(batch{ev})
	return on, nil
}

// SetIsMuted mutes the master output without touching stems and persists the
// choice.
func (e *Engine) SetIsMuted(muted bool) {
	e.mu.Lock()
	e.state.IsMuted = muted
	if e.graph != nil {
		e.graph.SetMuted(muted)
	}
	ev := e.snapshot(EventState)
	e.mu.Unlock()

	if e.prefs != nil {
		if err := e.prefs.SetAudioEnabled(!muted); err != nil {
			e.logger.Warn().Err(err).Msg("could not persist audio preference")
		}
	}
	e.dispatch(batch{ev})
}

// SetVolume sets the master volume, clamped to [0,1].
func (e *Engine) SetVolume(v float64) {
	if math.IsNaN(v) {
		return
	}
	v = math.Max(0, math.Min(1, v))
	e.mu.Lock()
	e.state.Volume = v
	if e.graph != nil {
		e.graph.SetVolume(v)
	}
	ev := e.snapshot(EventState)
	e.mu.Unlock()
	e.dispatch(batch{ev})
}

// SetOnError replaces the single legacy error callback. Other subscribers
// registered with OnError or Subscribe are unaffected.
func (e *Engine) SetOnError(fn func(*AudioError)) {
	e.setSlot(fn)
}

// OnError adds an error subscriber. The returned func removes it.
func (e *Engine) OnError(fn func(*AudioError)) func() {
	return e.onError(fn)
}

// Subscribe adds a subscriber for every event. The returned func removes it.
func (e *Engine) Subscribe(fn func(Event)) func() {
	return e.subscribe(fn)
}

func (e *Engine) handleEnded() {
	e.mu.Lock()
	if !e.state.IsPlaying {
		e.mu.Unlock()
		return
	}
	gen := e.generation
	e.state.IsPlaying = false
	e.state.CurrentTime = e.state.Duration
	e.phase = PhasePaused
	ev := e.snapshot(EventState)
	e.mu.Unlock()

	e.metrics.SetPlaying(false)
	e.dispatch(batch{ev})
	select {
	case e.ended <- gen:
	default:
	}
}

// Run publishes time updates while playing and advances to the next track
// when one ends. It returns when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.updateTime()
		case gen := <-e.ended:
			e.mu.Lock()
			current := gen == e.generation && !e.state.IsPlaying
			e.mu.Unlock()
			if !current || !e.autoAdvance {
				continue
			}
			e.logger.Debug().Msg("track ended, advancing")
			if err := e.PlayNext(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
				e.logger.Debug().Err(err).Msg("auto-advance failed")
			}
		}
	}
}

func (e *Engine) updateTime() {
	e.mu.Lock()
	g, playing := e.graph, e.state.IsPlaying
	e.mu.Unlock()
	if g == nil || !playing {
		return
	}
	pos, dur := g.Position(), g.Duration()

	e.mu.Lock()
	if !e.state.IsPlaying {
		e.mu.Unlock()
		return
	}
	e.state.CurrentTime = pos
	if knownDuration(dur) {
		e.state.Duration = dur
	}
	ev := e.snapshot(EventTime)
	e.mu.Unlock()
	e.dispatch(batch{ev})
}

// State returns a copy of the playback state.
func (e *Engine) State() PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stems returns a copy of the stem flags.
func (e *Engine) Stems() stems.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stems
}

// Phase returns the lifecycle phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Snapshot returns the current state as an event of kind EventState.
func (e *Engine) Snapshot() Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(EventState)
}

// CurrentTrack returns the selected track.
func (e *Engine) CurrentTrack() catalog.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cat.Track(e.state.CurrentTrackIndex)
}

// Catalog returns the injected catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.cat
}

// Analyser returns the graph's analyser, or nil before init.
func (e *Engine) Analyser() analyzer.Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil {
		return nil
	}
	return e.graph.Analyser()
}

// Close releases the audio context. The engine cannot be reinitialized.
func (e *Engine) Close() error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	e.initMu.Lock()
	defer e.initMu.Unlock()
	e.mu.Lock()
	g := e.graph
	e.graph = nil
	e.closed = true
	e.state.IsPlaying = false
	e.state.IsInitialized = false
	e.mu.Unlock()
	if g == nil {
		return nil
	}
	g.Pause()
	return g.Close()
}

func gainFor(on bool) float64 {
	if on {
		return 1
	}
	return 0
}

func knownDuration(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}
