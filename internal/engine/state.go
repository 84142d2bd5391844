package engine

import (
	"context"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/catalog"
	"github.com/guidoenr/stemdeck/internal/stems"
)

// PlaybackState is a snapshot of the transport. Consumers only ever see copies.
type PlaybackState struct {
	CurrentTrackIndex int     `json:"currentTrackIndex"`
	IsPlaying         bool    `json:"isPlaying"`
	IsMuted           bool    `json:"isMuted"`
	IsInitialized     bool    `json:"isInitialized"`
	CurrentTime       float64 `json:"currentTime"`
	Duration          float64 `json:"duration"`
	Volume            float64 `json:"volume"`
}

// Phase is the engine's position in its lifecycle.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInitializing
	PhasePaused
	PhasePlaying
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInitializing:
		return "initializing"
	case PhasePaused:
		return "paused"
	case PhasePlaying:
		return "playing"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets phases appear by name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Backend opens the single audio context of the process.
type Backend interface {
	Open() (Graph, error)
}

// Graph is one audio context: a playback element feeding analyser, stems and
// master volume. Durations and positions are seconds; a zero duration means
// unknown.
type Graph interface {
	// Load replaces the current source. A failed load leaves nothing loaded.
	Load(ctx context.Context, src string) error
	Play() error
	Pause()
	Seek(seconds float64) error
	Position() float64
	Duration() float64
	SetStemGain(s stems.Stem, v float64)
	SetMuted(muted bool)
	SetVolume(v float64)
	Analyser() analyzer.Source
	// SetOnEnded registers fn for when the loaded source plays out.
	SetOnEnded(fn func())
	Close() error
}

// Preferences persists the on/off audio flag.
type Preferences interface {
	SetAudioEnabled(enabled bool) error
}

// EventKind tells subscribers what changed.
type EventKind int

const (
	EventState EventKind = iota
	EventTime
	EventStems
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventTime:
		return "time"
	case EventStems:
		return "stems"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event carries a complete snapshot taken after the change was applied.
// Seq orders snapshots; subscribers never see a lower Seq after a higher one.
type Event struct {
	Seq   uint64        `json:"seq"`
	Kind  EventKind     `json:"kind"`
	Phase Phase         `json:"phase"`
	State PlaybackState `json:"state"`
	Stems stems.State   `json:"stems"`
	Track catalog.Track `json:"track"`
	Err   *AudioError   `json:"error,omitempty"`
}
