package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/event"
	"github.com/lavapool/lavapool/internal/logging"
)

var (
	// ErrUnauthorized indicates the node rejected the configured password.
	ErrUnauthorized = errors.New("node: unauthorized")

	// ErrNotConnected indicates a send was attempted on a session that is
	// not in the connected state.
	ErrNotConnected = errors.New("node: not connected")

	// ErrDuplicateNode indicates a node with the same host and port is
	// already registered.
	ErrDuplicateNode = errors.New("node: duplicate node")

	// ErrNoNodeAvailable indicates no connected node could serve the
	// request.
	ErrNoNodeAvailable = errors.New("node: no node available")
)

// Node is one remote audio node: its identity, a shared REST client for its
// HTTP API and a session for its socket connection. Stats are updated by
// the session as stats frames arrive.
type Node struct {
	name       string
	host       string
	port       int
	password   string
	region     string
	ssl        bool
	searchOnly bool

	http    *http.Client
	logger  *logging.Logger
	bus     *event.Bus
	session *Session

	mu    sync.RWMutex
	stats *StatsSnapshot
}

// New builds a node from its configuration. Missing port, name and resume
// key get defaults; the session is created but not started.
func New(cfg config.NodeConfig, httpClient *http.Client, logger *logging.Logger, bus *event.Bus) *Node {
	port := cfg.Port
	if port == 0 {
		port = 80
		if cfg.SSL {
			port = 443
		}
	}

	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%s-%s:%d", cfg.Region, cfg.Host, port)
	}

	resumeKey := cfg.ResumeKey
	if resumeKey == "" {
		resumeKey = uuid.New().String()
	}

	n := &Node{
		name:       name,
		host:       cfg.Host,
		port:       port,
		password:   cfg.Password,
		region:     cfg.Region,
		ssl:        cfg.SSL,
		searchOnly: cfg.SearchOnly,
		http:       httpClient,
		logger:     logger.With("node", name),
		bus:        bus,
	}
	n.session = newSession(n, sessionConfig{
		resumeKey:     resumeKey,
		resumeTimeout: cfg.ResumeTimeout,
		maxAttempts:   cfg.ReconnectAttempts,
		retryDelay:    cfg.ReconnectDelay,
		retryMaxDelay: cfg.ReconnectMaxDelay,
	})
	return n
}

// Name returns the node's unique name.
func (n *Node) Name() string { return n.name }

// Region returns the voice region this node serves, if configured.
func (n *Node) Region() string { return n.region }

// SearchOnly reports whether the node is reserved for track resolution and
// excluded from hosting playback.
func (n *Node) SearchOnly() bool { return n.searchOnly }

// Key identifies a node by its endpoint. Two configurations with the same
// key are the same node.
func (n *Node) Key() string {
	return fmt.Sprintf("%s:%d", n.host, n.port)
}

// Available reports whether the node's session is currently connected.
func (n *Node) Available() bool {
	return n.session.State() == StateConnected
}

// Stats returns the most recent stats snapshot, or nil when no stats frame
// has arrived yet.
func (n *Node) Stats() *StatsSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

func (n *Node) setStats(s StatsSnapshot) {
	n.mu.Lock()
	n.stats = &s
	n.mu.Unlock()
}

// Penalty returns the node's current penalty breakdown. An unavailable
// node, or one without stats, reports the unavailable sentinel.
func (n *Node) Penalty() Penalty {
	if !n.Available() {
		return Penalty{Total: UnavailablePenalty}
	}

	s := n.Stats()
	if s == nil {
		return Penalty{Total: UnavailablePenalty}
	}

	return ComputePenalty(*s)
}

// Connect starts the node's session. The session reconnects on its own
// until its attempt budget is exhausted.
func (n *Node) Connect(ctx context.Context) {
	n.session.Start(ctx)
}

// Close tears down the node's session.
func (n *Node) Close() {
	n.session.Close()
}

// Send writes a payload to the node's socket.
func (n *Node) Send(payload interface{}) error {
	return n.session.Send(payload)
}

// SessionState returns the state of the node's session.
func (n *Node) SessionState() State {
	return n.session.State()
}

// SetPlayerUpdateHandler forwards player update frames to fn.
func (n *Node) SetPlayerUpdateHandler(fn func(guildID string, st PlayerState)) {
	n.session.SetPlayerUpdateHandler(fn)
}

// SetTerminalHandler invokes fn once the session's reconnect budget is
// exhausted.
func (n *Node) SetTerminalHandler(fn func()) {
	n.session.SetTerminalHandler(fn)
}

func (n *Node) restBase() string {
	scheme := "http"
	if n.ssl {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, n.host, n.port)
}

func (n *Node) restRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, n.restBase()+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", n.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON performs a request and decodes a 200 response into out. A 401 or
// 403 yields ErrUnauthorized; any other status leaves out untouched so the
// caller returns its zero value.
func (n *Node) doJSON(req *http.Request, out interface{}) error {
	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("node request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		n.logger.Warn("Unexpected node response",
			"path", req.URL.Path,
			"status", resp.StatusCode)
		return nil
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode node response: %w", err)
	}
	return nil
}

// GetTracks resolves an identifier (URL or search string) into a load
// result. A non-auth failure status yields an empty NO_MATCHES result
// rather than an error.
func (n *Node) GetTracks(ctx context.Context, identifier string) (LoadResult, error) {
	req, err := n.restRequest(ctx, http.MethodGet,
		"/loadtracks?identifier="+url.QueryEscape(identifier), nil)
	if err != nil {
		return LoadResult{}, err
	}

	result := LoadResult{LoadType: LoadTypeNoMatches}
	if err := n.doJSON(req, &result); err != nil {
		return LoadResult{}, err
	}
	return result, nil
}

// DecodeTrack expands one encoded track string into its metadata.
func (n *Node) DecodeTrack(ctx context.Context, encoded string) (TrackInfo, error) {
	req, err := n.restRequest(ctx, http.MethodGet,
		"/decodetrack?track="+url.QueryEscape(encoded), nil)
	if err != nil {
		return TrackInfo{}, err
	}

	var info TrackInfo
	if err := n.doJSON(req, &info); err != nil {
		return TrackInfo{}, err
	}
	return info, nil
}

// DecodeTracks expands a batch of encoded track strings into full tracks.
func (n *Node) DecodeTracks(ctx context.Context, encoded []string) ([]Track, error) {
	body, err := json.Marshal(encoded)
	if err != nil {
		return nil, err
	}

	req, err := n.restRequest(ctx, http.MethodGet, "/decodetracks", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var tracks []Track
	if err := n.doJSON(req, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// RoutePlannerStatus reports the node's route planner state.
func (n *Node) RoutePlannerStatus(ctx context.Context) (RoutePlannerStatus, error) {
	req, err := n.restRequest(ctx, http.MethodGet, "/routeplanner/status", nil)
	if err != nil {
		return RoutePlannerStatus{}, err
	}

	var status RoutePlannerStatus
	if err := n.doJSON(req, &status); err != nil {
		return RoutePlannerStatus{}, err
	}
	return status, nil
}

// RoutePlannerFreeAddress unmarks a single failing address on the node's
// route planner.
func (n *Node) RoutePlannerFreeAddress(ctx context.Context, address string) error {
	body, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		return err
	}

	req, err := n.restRequest(ctx, http.MethodPost, "/routeplanner/free/address", bytes.NewReader(body))
	if err != nil {
		return err
	}
	return n.doJSON(req, nil)
}

// RoutePlannerFreeAll unmarks all failing addresses on the node's route
// planner.
func (n *Node) RoutePlannerFreeAll(ctx context.Context) error {
	req, err := n.restRequest(ctx, http.MethodPost, "/routeplanner/free/all", nil)
	if err != nil {
		return err
	}
	return n.doJSON(req, nil)
}
