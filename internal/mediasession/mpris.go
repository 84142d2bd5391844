package mediasession

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/rs/zerolog"

	"github.com/guidoenr/stemdeck/internal/catalog"
)

const (
	mprisPath   = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisPrefix = "org.mpris.MediaPlayer2."
	rootIface   = "org.mpris.MediaPlayer2"
	playerIface = "org.mpris.MediaPlayer2.Player"

	// seekedThreshold is how far a position may drift from the extrapolated
	// clock before clients are told about a seek.
	seekedThreshold = 1.5
)

// MPRIS is a Surface on the D-Bus session bus.
type MPRIS struct {
	logger   zerolog.Logger
	conn     *dbus.Conn
	props    *prop.Properties
	busName  string
	identity string

	mu        sync.Mutex
	handlers  map[Action]ActionHandler
	status    PlaybackStatus
	trackID   dbus.ObjectPath
	lastPos   float64
	lastPosAt time.Time
}

// NewMPRIS connects to the session bus and claims
// org.mpris.MediaPlayer2.<name>.
func NewMPRIS(logger zerolog.Logger, name string) (*MPRIS, error) {
	if name == "" {
		name = "stemdeck"
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	m := &MPRIS{
		logger:   logger.With().Str("component", "mpris").Logger(),
		conn:     conn,
		busName:  mprisPrefix + name,
		identity: name,
		handlers: make(map[Action]ActionHandler),
		status:   StatusNone,
		trackID:  trackPath(-1),
	}
	if err := m.export(); err != nil {
		conn.Close()
		return nil, err
	}

	reply, err := conn.RequestName(m.busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request %s: %w", m.busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", m.busName)
	}
	m.logger.Info().Str("bus_name", m.busName).Msg("mpris registered")
	return m, nil
}

func (m *MPRIS) export() error {
	root := mprisRoot{m}
	player := mprisPlayer{m}
	if err := m.conn.Export(root, mprisPath, rootIface); err != nil {
		return fmt.Errorf("export %s: %w", rootIface, err)
	}
	if err := m.conn.Export(player, mprisPath, playerIface); err != nil {
		return fmt.Errorf("export %s: %w", playerIface, err)
	}

	props, err := prop.Export(m.conn, mprisPath, m.propMap())
	if err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	m.props = props

	node := &introspect.Node{
		Name: string(mprisPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       rootIface,
				Methods:    introspect.Methods(root),
				Properties: props.Introspection(rootIface),
			},
			{
				Name:       playerIface,
				Methods:    introspect.Methods(player),
				Properties: props.Introspection(playerIface),
				Signals: []introspect.Signal{{
					Name: "Seeked",
					Args: []introspect.Arg{{Name: "Position", Type: "x"}},
				}},
			},
		},
	}
	if err := m.conn.Export(introspect.NewIntrospectable(node), mprisPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

func (m *MPRIS) propMap() prop.Map {
	ro := func(v any) *prop.Prop {
		return &prop.Prop{Value: v, Emit: prop.EmitTrue}
	}
	return prop.Map{
		rootIface: {
			"CanQuit":             ro(false),
			"CanRaise":            ro(false),
			"HasTrackList":        ro(false),
			"Identity":            ro(m.identity),
			"SupportedUriSchemes": ro([]string{}),
			"SupportedMimeTypes":  ro([]string{}),
		},
		playerIface: {
			"PlaybackStatus": ro(statusString(StatusNone)),
			"Rate":           ro(1.0),
			"MinimumRate":    ro(1.0),
			"MaximumRate":    ro(1.0),
			"Metadata":       ro(map[string]dbus.Variant{}),
			"Volume":         ro(1.0),
			"Position":       {Value: int64(0), Emit: prop.EmitFalse},
			"CanGoNext":      ro(true),
			"CanGoPrevious":  ro(true),
			"CanPlay":        ro(true),
			"CanPause":       ro(true),
			"CanSeek":        ro(true),
			"CanControl":     {Value: true, Emit: prop.EmitFalse},
		},
	}
}

// set updates a property, turning SetMust panics into errors.
func (m *MPRIS) set(iface, name string, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("set %s.%s: %v", iface, name, r)
		}
	}()
	m.props.SetMust(iface, name, v)
	return nil
}

// SetMetadata implements Surface.
func (m *MPRIS) SetMetadata(md Metadata) error {
	m.mu.Lock()
	m.trackID = trackPath(md.TrackIndex)
	m.mu.Unlock()
	return m.set(playerIface, "Metadata", metadataMap(md))
}

// SetPlaybackState implements Surface.
func (m *MPRIS) SetPlaybackState(status PlaybackStatus) error {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	return m.set(playerIface, "PlaybackStatus", statusString(status))
}

// SetPositionState implements Surface. Jumps away from the running clock are
// announced with the Seeked signal.
func (m *MPRIS) SetPositionState(duration, position float64) error {
	now := time.Now()
	m.mu.Lock()
	expected := m.lastPos
	if m.status == StatusPlaying && !m.lastPosAt.IsZero() {
		expected += now.Sub(m.lastPosAt).Seconds()
	}
	jumped := !m.lastPosAt.IsZero() && math.Abs(position-expected) > seekedThreshold
	m.lastPos, m.lastPosAt = position, now
	m.mu.Unlock()

	if err := m.set(playerIface, "Position", micros(position)); err != nil {
		return err
	}
	if jumped {
		return m.conn.Emit(mprisPath, playerIface+".Seeked", micros(position))
	}
	return nil
}

// SetActionHandler implements Surface.
func (m *MPRIS) SetActionHandler(action Action, h ActionHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		delete(m.handlers, action)
		return nil
	}
	m.handlers[action] = h
	return nil
}

// dispatch runs the handler off the bus goroutine so method calls return at once.
func (m *MPRIS) dispatch(d ActionDetails) *dbus.Error {
	m.mu.Lock()
	h := m.handlers[d.Action]
	m.mu.Unlock()
	if h == nil {
		return dbus.MakeFailedError(fmt.Errorf("%s not supported", d.Action))
	}
	m.logger.Debug().Str("action", string(d.Action)).Msg("media key")
	go h(d)
	return nil
}

// Close releases the bus name and the connection.
func (m *MPRIS) Close() error {
	_, _ = m.conn.ReleaseName(m.busName)
	return m.conn.Close()
}

type mprisRoot struct{ m *MPRIS }

func (mprisRoot) Raise() *dbus.Error { return nil }
func (mprisRoot) Quit() *dbus.Error  { return nil }

type mprisPlayer struct{ m *MPRIS }

func (p mprisPlayer) Play() *dbus.Error  { return p.m.dispatch(ActionDetails{Action: ActionPlay}) }
func (p mprisPlayer) Pause() *dbus.Error { return p.m.dispatch(ActionDetails{Action: ActionPause}) }
func (p mprisPlayer) Stop() *dbus.Error  { return p.m.dispatch(ActionDetails{Action: ActionPause}) }
func (p mprisPlayer) Next() *dbus.Error  { return p.m.dispatch(ActionDetails{Action: ActionNext}) }

func (p mprisPlayer) Previous() *dbus.Error {
	return p.m.dispatch(ActionDetails{Action: ActionPrevious})
}

func (p mprisPlayer) PlayPause() *dbus.Error {
	p.m.mu.Lock()
	playing := p.m.status == StatusPlaying
	p.m.mu.Unlock()
	if playing {
		return p.Pause()
	}
	return p.Play()
}

// Seek moves by offset microseconds.
func (p mprisPlayer) Seek(offset int64) *dbus.Error {
	switch {
	case offset > 0:
		return p.m.dispatch(ActionDetails{Action: ActionSeekForward, SeekOffset: seconds(offset)})
	case offset < 0:
		return p.m.dispatch(ActionDetails{Action: ActionSeekBackward, SeekOffset: seconds(-offset)})
	}
	return nil
}

// SetPosition seeks to position microseconds if trackID is current.
func (p mprisPlayer) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	p.m.mu.Lock()
	current := p.m.trackID
	p.m.mu.Unlock()
	if trackID != current || position < 0 {
		return nil
	}
	return p.m.dispatch(ActionDetails{Action: ActionSeekTo, SeekTime: seconds(position)})
}

func (p mprisPlayer) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("opening URIs is not supported"))
}

func metadataMap(md Metadata) map[string]dbus.Variant {
	out := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackPath(md.TrackIndex)),
		"xesam:title":   dbus.MakeVariant(md.Title),
		"xesam:artist":  dbus.MakeVariant([]string{md.Artist}),
		"xesam:album":   dbus.MakeVariant(md.Album),
	}
	if md.Length > 0 {
		out["mpris:length"] = dbus.MakeVariant(micros(md.Length))
	}
	if art := largestArtwork(md.Artwork); art != "" {
		out["mpris:artUrl"] = dbus.MakeVariant(art)
	}
	return out
}

func largestArtwork(set []catalog.Artwork) string {
	best, bestSize := "", -1
	for _, a := range set {
		var w, h int
		if _, err := fmt.Sscanf(a.Sizes, "%dx%d", &w, &h); err != nil {
			continue
		}
		if w*h > bestSize {
			best, bestSize = a.Src, w*h
		}
	}
	if best == "" || catalog.IsRemote(best) || strings.HasPrefix(best, "file://") {
		return best
	}
	if abs, err := filepath.Abs(best); err == nil {
		best = abs
	}
	return "file://" + filepath.ToSlash(best)
}

func trackPath(index int) dbus.ObjectPath {
	if index < 0 {
		return "/org/mpris/MediaPlayer2/TrackList/NoTrack"
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/stemdeck/track/%d", index))
}

func statusString(s PlaybackStatus) string {
	switch s {
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

func micros(sec float64) int64 {
	return int64(math.Round(sec * 1e6))
}

func seconds(us int64) float64 {
	return float64(us) / 1e6
}
