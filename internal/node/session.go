package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/lavapool/lavapool/internal/event"
	"github.com/lavapool/lavapool/internal/logging"
)

// State is the lifecycle state of a node session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateResuming
	StateReconnecting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateResuming:
		return "resuming"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// PlayerState is the live playback position reported in a player update
// frame.
type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
}

// Session owns a node's socket connection and its reconnect loop. A
// dropped connection is retried with exponential backoff until the
// configured attempt budget runs out; a connection that comes back resets
// the budget. Exhaustion is terminal and reported as an event, not an
// error.
type Session struct {
	node   *Node
	logger *logging.Logger

	resumeKey     string
	resumeTimeout time.Duration
	maxAttempts   int

	dialer     *websocket.Dialer
	newBackoff func() backoff.BackOff

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	droppedAt time.Time
	started   bool

	ctx    context.Context
	cancel context.CancelFunc

	onPlayerUpdate func(guildID string, st PlayerState)
	onTerminal     func()
}

// sessionConfig carries the session knobs resolved from a node's
// configuration.
type sessionConfig struct {
	resumeKey     string
	resumeTimeout time.Duration
	maxAttempts   int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
}

func newSession(n *Node, cfg sessionConfig) *Session {
	retryDelay := cfg.retryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	retryMaxDelay := cfg.retryMaxDelay
	if retryMaxDelay <= 0 {
		retryMaxDelay = 30 * time.Second
	}

	return &Session{
		node:          n,
		logger:        n.logger,
		resumeKey:     cfg.resumeKey,
		resumeTimeout: cfg.resumeTimeout,
		maxAttempts:   cfg.maxAttempts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		newBackoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = retryDelay
			bo.MaxInterval = retryMaxDelay
			bo.MaxElapsedTime = 0
			return bo
		},
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// SetPlayerUpdateHandler installs the callback for player update frames.
func (s *Session) SetPlayerUpdateHandler(fn func(guildID string, st PlayerState)) {
	s.mu.Lock()
	s.onPlayerUpdate = fn
	s.mu.Unlock()
}

// SetTerminalHandler installs the callback invoked when the reconnect
// budget is exhausted.
func (s *Session) SetTerminalHandler(fn func()) {
	s.mu.Lock()
	s.onTerminal = fn
	s.mu.Unlock()
}

// Start launches the session's connect loop. Starting twice is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run()
}

// Close tears down the session. The loop exits without firing the terminal
// callback.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
}

func (s *Session) closed() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Session) run() {
	attempt := 0
	bo := s.newBackoff()

	for {
		if s.closed() {
			s.setState(StateDisconnected)
			return
		}

		attempt++
		if s.maxAttempts != -1 && attempt > s.maxAttempts {
			s.terminate(attempt - 1)
			return
		}

		resuming := s.canResume()
		switch {
		case resuming:
			s.setState(StateResuming)
		case attempt == 1 && s.droppedAt.IsZero():
			s.setState(StateConnecting)
		default:
			s.setState(StateReconnecting)
		}

		conn, err := s.dial(resuming)
		if err != nil {
			s.logger.Warn("Node connection attempt failed",
				"attempt", attempt,
				"error", err)

			if !s.sleep(bo.NextBackOff()) {
				s.setState(StateDisconnected)
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.state = StateConnected
		s.mu.Unlock()

		attempt = 0
		bo.Reset()

		s.logger.Info("Node connected", "resumed", resuming)
		s.publish(event.KindNodeConnected, event.Event{})

		if err := s.configureResuming(); err != nil {
			s.logger.Warn("Failed to configure session resuming", "error", err)
		}

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.droppedAt = time.Now()
		s.mu.Unlock()

		if s.closed() {
			s.setState(StateDisconnected)
			return
		}

		s.logger.Warn("Node connection lost")
	}
}

// terminate marks the session permanently disconnected after the attempt
// budget ran out.
func (s *Session) terminate(attempts int) {
	s.setState(StateDisconnected)
	s.logger.Error("Node reconnect attempts exhausted", "attempts", attempts)
	s.publish(event.KindNodeDisconnected, event.Event{})

	s.mu.Lock()
	fn := s.onTerminal
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// sleep waits for d or shutdown, whichever comes first. Returns false when
// shutting down.
func (s *Session) sleep(d time.Duration) bool {
	if d < 0 {
		d = time.Second
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Session) canResume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resumeTimeout <= 0 || s.droppedAt.IsZero() {
		return false
	}
	return time.Since(s.droppedAt) < s.resumeTimeout
}

func (s *Session) dial(resuming bool) (*websocket.Conn, error) {
	scheme := "ws"
	if s.node.ssl {
		scheme = "wss"
	}
	wsURL := fmt.Sprintf("%s://%s:%d/", scheme, s.node.host, s.node.port)

	header := http.Header{}
	header.Set("Authorization", s.node.password)
	header.Set("Client-Name", "lavapool")
	if resuming {
		header.Set("Resume-Key", s.resumeKey)
	}

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	conn, resp, err := s.dialer.DialContext(ctx, wsURL, header)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return conn, nil
}

// configureResuming asks the node to buffer events for this session across
// short disconnects.
func (s *Session) configureResuming() error {
	return s.Send(map[string]interface{}{
		"op":      "configureResuming",
		"key":     s.resumeKey,
		"timeout": int(s.resumeTimeout.Seconds()),
	})
}

// Send writes a JSON payload to the socket. Only valid while connected.
func (s *Session) Send(payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected || s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.WriteJSON(payload)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(data)
	}
}

func (s *Session) handleMessage(data []byte) {
	var frame struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn("Dropping malformed node frame", "error", err)
		return
	}

	switch frame.Op {
	case "stats":
		stats, err := ParseStats(data)
		if err != nil {
			s.logger.Warn("Dropping malformed stats frame", "error", err)
			return
		}
		s.node.setStats(stats)
		s.publish(event.KindStatsUpdate, event.Event{Raw: data})

	case "playerUpdate":
		var upd struct {
			GuildID string      `json:"guildId"`
			State   PlayerState `json:"state"`
		}
		if err := json.Unmarshal(data, &upd); err != nil {
			s.logger.Warn("Dropping malformed player update", "error", err)
			return
		}
		s.mu.Lock()
		fn := s.onPlayerUpdate
		s.mu.Unlock()
		if fn != nil {
			fn(upd.GuildID, upd.State)
		}

	case "event":
		s.handleEvent(data)

	default:
		s.logger.Debug("Dropping unknown node frame", "op", frame.Op)
	}
}

func (s *Session) handleEvent(data []byte) {
	var frame struct {
		Type    string `json:"type"`
		GuildID string `json:"guildId"`
		Track   string `json:"track"`
		Reason  string `json:"reason"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn("Dropping malformed event frame", "error", err)
		return
	}

	var kind event.Kind
	switch frame.Type {
	case "TrackStartEvent":
		kind = event.KindTrackStart
	case "TrackEndEvent":
		kind = event.KindTrackEnd
	case "TrackStuckEvent":
		kind = event.KindTrackStuck
	case "TrackExceptionEvent":
		kind = event.KindTrackException
	default:
		s.logger.Debug("Dropping unknown node event", "type", frame.Type)
		return
	}

	reason := frame.Reason
	if reason == "" {
		reason = frame.Error
	}

	s.publish(kind, event.Event{
		GuildID: frame.GuildID,
		Track:   frame.Track,
		Reason:  reason,
		Raw:     data,
	})
}

// publish stamps the node name and timestamp onto an event and hands it to
// the bus.
func (s *Session) publish(kind event.Kind, e event.Event) {
	e.Kind = kind
	e.Node = s.node.name
	e.Timestamp = time.Now()
	s.node.bus.Publish(e)
}
