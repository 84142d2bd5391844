// Package web serves the optional local control surface: a websocket state
// feed, JSON commands and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/guidoenr/stemdeck/internal/analyzer"
	"github.com/guidoenr/stemdeck/internal/catalog"
	"github.com/guidoenr/stemdeck/internal/engine"
	"github.com/guidoenr/stemdeck/internal/stems"
	"github.com/guidoenr/stemdeck/internal/telemetry"
)

const (
	defaultBeatInterval = 100 * time.Millisecond
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = 54 * time.Second
	sendBuffer          = 64
)

// Player is the part of the engine the control surface drives.
type Player interface {
	Snapshot() engine.Event
	State() engine.PlaybackState
	Subscribe(fn func(engine.Event)) func()
	Catalog() *catalog.Catalog
	UserGesture() error
	PlayTrack(ctx context.Context, index int) error
	PlayNext(ctx context.Context) error
	PlayPrev(ctx context.Context) error
	TogglePlay(ctx context.Context) error
	SeekTo(seconds float64)
	SeekToPercent(p float64)
	ToggleStem(s stems.Stem) (bool, error)
	SetIsMuted(muted bool)
	SetVolume(v float64)
}

// BeatFeed provides the latest beat frame.
type BeatFeed interface {
	State() analyzer.BeatState
}

// Message is one websocket frame sent to clients.
type Message struct {
	Type  string              `json:"type"` // state, time, stems, error, beat, reply
	Event *engine.Event       `json:"event,omitempty"`
	Beat  *analyzer.BeatState `json:"beat,omitempty"`
	Error string              `json:"error,omitempty"`
}

// Command is a JSON request from a client.
type Command struct {
	Cmd     string   `json:"cmd"` // toggle, play, next, prev, seek, stem, mute, volume
	Index   *int     `json:"index,omitempty"`
	Stem    string   `json:"stem,omitempty"`
	Seconds *float64 `json:"seconds,omitempty"`
	Percent *float64 `json:"percent,omitempty"`
	Muted   *bool    `json:"muted,omitempty"`
	Volume  *float64 `json:"volume,omitempty"`
}

// ErrBadCommand is returned for malformed or unknown commands.
var ErrBadCommand = errors.New("bad command")

type StatusResponse struct {
	Event engine.Event        `json:"event"`
	Beat  *analyzer.BeatState `json:"beat,omitempty"`
}

type Server struct {
	logger       zerolog.Logger
	player       Player
	beats        BeatFeed
	metrics      *telemetry.Metrics
	gatherer     prometheus.Gatherer
	beatInterval time.Duration
	upgrader     websocket.Upgrader

	mu        sync.RWMutex
	clients   map[*websocketClient]bool
	broadcast chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	unsub     func()
	done      chan struct{}
	pumps     sync.WaitGroup
	closed    bool
}

type websocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// Option configures a Server.
type Option func(*Server)

// WithBeats adds beat frames to the feed.
func WithBeats(b BeatFeed) Option {
	return func(s *Server) { s.beats = b }
}

// WithMetrics counts feed subscribers and serves g on /metrics.
func WithMetrics(m *telemetry.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithBeatInterval sets how often beat frames are pushed.
func WithBeatInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.beatInterval = d
		}
	}
}

func NewServer(logger zerolog.Logger, player Player, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		logger:       logger.With().Str("component", "web").Logger(),
		player:       player,
		beatInterval: defaultBeatInterval,
		clients:      make(map[*websocketClient]bool),
		broadcast:    make(chan []byte, 256),
		ctx:          ctx,
		cancel:       cancel,
		upgrader: websocket.Upgrader{
			// The surface binds to a local address chosen by the user.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/catalog", s.handleCatalog)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/ws", s.handleWebSocket)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start subscribes to the player and starts the broadcast loop.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.closed {
		return
	}
	s.unsub = s.player.Subscribe(s.onEvent)
	s.done = make(chan struct{})
	go s.broadcastLoop(s.done)
}

// ListenAndServe runs the surface on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the surface on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.Start()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("control surface listening")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	<-errCh
	return err
}

// Close disconnects all clients and stops the loops.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancel()
	unsub, done := s.unsub, s.done
	for c := range s.clients {
		s.removeLocked(c)
	}
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if done != nil {
		<-done
	}
	s.pumps.Wait()
}

// Clients returns the number of connected feed clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) onEvent(ev engine.Event) {
	data, err := json.Marshal(Message{Type: ev.Kind.String(), Event: &ev})
	if err != nil {
		s.logger.Warn().Err(err).Msg("encode event")
		return
	}
	select {
	case s.broadcast <- data:
	default:
		// drop if channel full
	}
}

func (s *Server) broadcastLoop(done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.beatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case message := <-s.broadcast:
			s.fanout(message)
		case <-ticker.C:
			if s.beats == nil || s.Clients() == 0 {
				continue
			}
			beat := s.beats.State()
			data, err := json.Marshal(Message{Type: "beat", Beat: &beat})
			if err == nil {
				s.fanout(data)
			}
		}
	}
}

// fanout queues message for every client, dropping clients that fall behind.
func (s *Server) fanout(message []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- message:
		default:
			s.logger.Debug().Msg("dropping slow client")
			s.removeLocked(c)
		}
	}
}

func (s *Server) removeLocked(c *websocketClient) {
	if !s.clients[c] {
		return
	}
	delete(s.clients, c)
	close(c.send)
	s.metrics.AddSubscribers(-1)
}

func (s *Server) reply(c *websocketClient, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Exec runs one command. Every command counts as a user gesture.
func (s *Server) Exec(ctx context.Context, cmd Command) error {
	if err := s.player.UserGesture(); err != nil {
		return err
	}
	var err error
	switch cmd.Cmd {
	case "toggle":
		err = s.player.TogglePlay(ctx)
	case "play":
		if cmd.Index == nil {
			return fmt.Errorf("%w: play needs an index", ErrBadCommand)
		}
		err = s.player.PlayTrack(ctx, *cmd.Index)
	case "next":
		err = s.player.PlayNext(ctx)
	case "prev":
		err = s.player.PlayPrev(ctx)
	case "seek":
		switch {
		case cmd.Percent != nil:
			s.player.SeekToPercent(*cmd.Percent)
		case cmd.Seconds != nil:
			s.player.SeekTo(*cmd.Seconds)
		default:
			return fmt.Errorf("%w: seek needs seconds or percent", ErrBadCommand)
		}
	case "stem":
		st, perr := stems.Parse(cmd.Stem)
		if perr != nil {
			return fmt.Errorf("%w: %w", ErrBadCommand, perr)
		}
		_, err = s.player.ToggleStem(st)
	case "mute":
		muted := !s.player.State().IsMuted
		if cmd.Muted != nil {
			muted = *cmd.Muted
		}
		s.player.SetIsMuted(muted)
	case "volume":
		if cmd.Volume == nil {
			return fmt.Errorf("%w: volume needs a value", ErrBadCommand)
		}
		s.player.SetVolume(*cmd.Volume)
	default:
		return fmt.Errorf("%w: unknown %q", ErrBadCommand, cmd.Cmd)
	}
	if errors.Is(err, engine.ErrSuperseded) {
		return nil
	}
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := StatusResponse{Event: s.player.Snapshot()}
	if s.beats != nil {
		beat := s.beats.State()
		status.Beat = &beat
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.player.Catalog().Tracks())
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Exec(r.Context(), cmd); err != nil {
		code := http.StatusConflict
		if errors.Is(err, ErrBadCommand) {
			code = http.StatusBadRequest
		}
		writeJSON(w, code, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade")
		return
	}

	client := &websocketClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client] = true
	s.pumps.Add(2)
	s.mu.Unlock()
	s.metrics.AddSubscribers(1)

	ev := s.player.Snapshot()
	s.reply(client, Message{Type: "state", Event: &ev})

	go client.writePump()
	go client.readPump()
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.mu.Lock()
		c.server.removeLocked(c)
		c.server.mu.Unlock()
		c.conn.Close()
		c.server.pumps.Done()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				c.server.reply(c, Message{Type: "reply", Error: err.Error()})
				continue
			}
			return
		}
		msg := Message{Type: "reply"}
		if err := c.server.Exec(c.server.ctx, cmd); err != nil {
			msg.Error = err.Error()
		}
		c.server.reply(c, msg)
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.server.pumps.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
