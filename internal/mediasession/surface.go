// Package mediasession projects playback onto the platform's media controls
// (lock screen, media keys) and forwards their actions back to the player.
package mediasession

import (
	"github.com/guidoenr/stemdeck/internal/catalog"
)

// PlaybackStatus is the coarse state shown by the platform.
type PlaybackStatus string

const (
	StatusNone    PlaybackStatus = "none"
	StatusPaused  PlaybackStatus = "paused"
	StatusPlaying PlaybackStatus = "playing"
)

// Action is a platform control.
type Action string

const (
	ActionPlay         Action = "play"
	ActionPause        Action = "pause"
	ActionPrevious     Action = "previoustrack"
	ActionNext         Action = "nexttrack"
	ActionSeekTo       Action = "seekto"
	ActionSeekBackward Action = "seekbackward"
	ActionSeekForward  Action = "seekforward"
)

// Actions lists every action the bridge binds.
var Actions = []Action{ActionPlay, ActionPause, ActionPrevious, ActionNext, ActionSeekTo, ActionSeekBackward, ActionSeekForward}

// ActionDetails carries seek arguments in seconds.
type ActionDetails struct {
	Action     Action
	SeekTime   float64
	SeekOffset float64
}

// ActionHandler handles one action.
type ActionHandler func(ActionDetails)

// Metadata describes the current track.
type Metadata struct {
	TrackIndex int
	Title      string
	Artist     string
	Album      string
	Artwork    []catalog.Artwork
	Length     float64 // seconds, zero when unknown
}

// Surface is a platform media session. Implementations may fail or panic;
// the bridge contains both.
type Surface interface {
	SetMetadata(md Metadata) error
	SetPlaybackState(status PlaybackStatus) error
	SetPositionState(duration, position float64) error
	SetActionHandler(action Action, h ActionHandler) error
}
