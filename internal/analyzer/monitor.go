package analyzer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFPS is the frame cadence of the monitor loop.
const DefaultFPS = 60

// Monitor samples a Source at a fixed frame rate while playback is running
// and publishes BeatStates to subscribers.
type Monitor struct {
	logger   zerolog.Logger
	source   func() Source
	detector *Detector
	interval time.Duration
	floor    float64

	bins []uint8 // owned by Tick

	mu       sync.Mutex
	state    BeatState
	spectrum []uint8
	subs     map[int]func(BeatState)
	nextSub  int
	stop     chan struct{}
	done     chan struct{}
	closed   bool
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithFPS sets the frame rate.
func WithFPS(fps int) MonitorOption {
	return func(m *Monitor) {
		if fps > 0 {
			m.interval = time.Second / time.Duration(fps)
		}
	}
}

// WithNoiseFloor gates levels below floor to zero.
func WithNoiseFloor(floor float64) MonitorOption {
	return func(m *Monitor) { m.floor = clamp(floor, 0, 0.95) }
}

// NewMonitor builds a monitor. source is consulted every frame so the
// analyser may appear after the audio context is created; a nil result skips
// the frame.
func NewMonitor(logger zerolog.Logger, source func() Source, cfg BeatConfig, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		logger:   logger.With().Str("component", "beat").Logger(),
		source:   source,
		detector: NewDetector(cfg),
		interval: time.Second / DefaultFPS,
		subs:     make(map[int]func(BeatState)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers fn for every published state. The returned func removes it.
func (m *Monitor) Subscribe(fn func(BeatState)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// State returns the latest published state.
func (m *Monitor) State() BeatState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Spectrum appends the bins of the latest frame to dst.
func (m *Monitor) Spectrum(dst []uint8) []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(dst, m.spectrum...)
}

// Running reports whether the frame loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stop != nil
}

// SetPlaying starts the frame loop when playing and stops it otherwise.
// Stopping publishes a zero state.
func (m *Monitor) SetPlaying(playing bool) {
	if playing {
		m.start()
		return
	}
	if m.halt() {
		m.mu.Lock()
		m.spectrum = m.spectrum[:0]
		m.mu.Unlock()
		m.publish(BeatState{})
	}
}

// Close stops the loop and refuses further starts.
func (m *Monitor) Close() {
	m.halt()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Monitor) start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(m.stop, m.done)
	m.logger.Debug().Dur("interval", m.interval).Msg("beat loop started")
}

func (m *Monitor) halt() bool {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()
	if stop == nil {
		return false
	}
	close(stop)
	<-done
	m.detector.Reset()
	m.logger.Debug().Msg("beat loop stopped")
	return true
}

func (m *Monitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			m.Tick(now)
		}
	}
}

// Tick analyzes one frame. The loop calls it; tests may drive it directly.
func (m *Monitor) Tick(now time.Time) {
	var src Source
	if m.source != nil {
		src = m.source()
	}
	if src == nil {
		return
	}
	if n := src.FrequencyBinCount(); len(m.bins) != n {
		m.bins = make([]uint8, n)
	}
	n := src.ByteFrequencyData(m.bins)
	m.mu.Lock()
	m.spectrum = append(m.spectrum[:0], m.bins[:n]...)
	m.mu.Unlock()
	st := m.detector.Process(m.bins[:n], now)
	m.publish(GateBeat(st, m.floor))
}

func (m *Monitor) publish(st BeatState) {
	m.mu.Lock()
	m.state = st
	subs := make([]func(BeatState), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}
