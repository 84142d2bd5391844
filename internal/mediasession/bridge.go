package mediasession

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guidoenr/stemdeck/internal/catalog"
)

// DefaultSeekOffset is used for relative seeks that carry no offset.
const DefaultSeekOffset = 10.0

// Snapshot is everything the bridge needs from the player.
type Snapshot struct {
	TrackIndex  int
	Track       catalog.Track
	IsPlaying   bool
	CurrentTime float64
	Duration    float64
}

// Callbacks forward platform actions to the player.
type Callbacks struct {
	OnPlay     func()
	OnPause    func()
	OnPrevious func()
	OnNext     func()
	OnSeek     func(seconds float64)
}

// Bridge keeps a Surface in sync with snapshots. A nil surface makes every
// method a no-op.
type Bridge struct {
	logger   zerolog.Logger
	surface  Surface
	resolve  catalog.Resolver
	interval time.Duration
	position func() Snapshot

	mu        sync.Mutex
	last      Snapshot
	lastAt    time.Time
	published bool
	stop      chan struct{}
	done      chan struct{}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithResolver prefixes artwork paths.
func WithResolver(r catalog.Resolver) Option {
	return func(b *Bridge) { b.resolve = r }
}

// WithPositionInterval sets the position push cadence.
func WithPositionInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithPositionSource supplies fresh snapshots for position pushes. Without it
// the last Update is extrapolated.
func WithPositionSource(fn func() Snapshot) Option {
	return func(b *Bridge) { b.position = fn }
}

// NewBridge returns a bridge for surface, which may be nil.
func NewBridge(logger zerolog.Logger, surface Surface, opts ...Option) *Bridge {
	b := &Bridge{
		logger:   logger.With().Str("component", "mediasession").Logger(),
		surface:  surface,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	if surface == nil {
		b.logger.Debug().Msg("no media session surface, bridge disabled")
	}
	return b
}

// guard runs one surface call, logging errors and panics.
func (b *Bridge) guard(op string, fn func() error) {
	if b.surface == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn().Str("op", op).Interface("panic", r).Msg("media session call panicked")
		}
	}()
	if err := fn(); err != nil {
		b.logger.Debug().Err(err).Str("op", op).Msg("media session call failed")
	}
}

// Bind registers handlers for every action. Relative seeks are clamped to
// [0, duration].
func (b *Bridge) Bind(cb Callbacks) {
	handlers := map[Action]ActionHandler{
		ActionPlay:     func(ActionDetails) { call(cb.OnPlay) },
		ActionPause:    func(ActionDetails) { call(cb.OnPause) },
		ActionPrevious: func(ActionDetails) { call(cb.OnPrevious) },
		ActionNext:     func(ActionDetails) { call(cb.OnNext) },
		ActionSeekTo: func(d ActionDetails) {
			if cb.OnSeek == nil {
				return
			}
			snap := b.current()
			cb.OnSeek(clampSeek(d.SeekTime, snap.Duration))
		},
		ActionSeekBackward: func(d ActionDetails) {
			b.seekRelative(cb.OnSeek, -offsetOrDefault(d.SeekOffset))
		},
		ActionSeekForward: func(d ActionDetails) {
			b.seekRelative(cb.OnSeek, offsetOrDefault(d.SeekOffset))
		},
	}
	for _, a := range Actions {
		h := handlers[a]
		b.guard("bind "+string(a), func() error {
			return b.surface.SetActionHandler(a, h)
		})
	}
}

func (b *Bridge) seekRelative(onSeek func(float64), delta float64) {
	if onSeek == nil {
		return
	}
	snap := b.current()
	if !known(snap.Duration) {
		return
	}
	onSeek(clampSeek(snap.CurrentTime+delta, snap.Duration))
}

// Update publishes metadata when the track changes and playback state when
// the play flag changes, then starts or stops the position push.
func (b *Bridge) Update(s Snapshot) {
	if b.surface == nil {
		return
	}
	b.mu.Lock()
	prev, first := b.last, !b.published
	b.last, b.lastAt, b.published = s, time.Now(), true
	b.mu.Unlock()

	if !s.IsPlaying || !known(s.Duration) {
		b.stopPush()
	}
	if first || prev.TrackIndex != s.TrackIndex || prev.Track != s.Track || (prev.Duration != s.Duration && known(s.Duration)) {
		md := b.metadata(s)
		b.guard("metadata", func() error { return b.surface.SetMetadata(md) })
	}
	if first || prev.IsPlaying != s.IsPlaying {
		status := StatusPaused
		if s.IsPlaying {
			status = StatusPlaying
		}
		b.guard("playback state", func() error { return b.surface.SetPlaybackState(status) })
		b.pushPosition(s)
	}

	if s.IsPlaying && known(s.Duration) {
		b.startPush()
	}
}

func (b *Bridge) metadata(s Snapshot) Metadata {
	art := make([]catalog.Artwork, len(catalog.ArtworkSet))
	copy(art, catalog.ArtworkSet)
	if b.resolve != nil {
		for i := range art {
			art[i].Src = b.resolve(art[i].Src)
		}
	}
	length := 0.0
	if known(s.Duration) {
		length = s.Duration
	} else if d := s.Track.Length(); d > 0 {
		length = d.Seconds()
	}
	return Metadata{
		TrackIndex: s.TrackIndex,
		Title:      s.Track.Title,
		Artist:     catalog.Artist,
		Album:      catalog.Album,
		Artwork:    art,
		Length:     length,
	}
}

func (b *Bridge) pushPosition(s Snapshot) {
	if !known(s.Duration) {
		return
	}
	pos := clampSeek(s.CurrentTime, s.Duration)
	b.guard("position", func() error { return b.surface.SetPositionState(s.Duration, pos) })
}

// current returns the freshest snapshot available, extrapolating the last
// update while playing when there is no position source.
func (b *Bridge) current() Snapshot {
	if b.position != nil {
		return b.position()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := b.last
	if snap.IsPlaying {
		snap.CurrentTime = clampSeek(snap.CurrentTime+time.Since(b.lastAt).Seconds(), snap.Duration)
	}
	return snap
}

// Pushing reports whether the position loop runs.
func (b *Bridge) Pushing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop != nil
}

func (b *Bridge) startPush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stop != nil {
		return
	}
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.pushLoop(b.stop, b.done)
}

func (b *Bridge) stopPush() {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (b *Bridge) pushLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := b.current()
			if !snap.IsPlaying || !known(snap.Duration) {
				continue
			}
			b.pushPosition(snap)
		}
	}
}

// Close stops the position push.
func (b *Bridge) Close() {
	b.stopPush()
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

func offsetOrDefault(v float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return DefaultSeekOffset
	}
	return v
}

func clampSeek(t, duration float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if known(duration) && t > duration {
		return duration
	}
	return t
}

func known(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}

// String is for logs.
func (s Snapshot) String() string {
	return fmt.Sprintf("%d %q playing=%t %.1f/%.1f", s.TrackIndex, s.Track.Title, s.IsPlaying, s.CurrentTime, s.Duration)
}
