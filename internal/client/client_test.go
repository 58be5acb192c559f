package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/node"
)

var upgrader = websocket.Upgrader{}

const testPassword = "youshallnotpass"

func testConfig() config.Config {
	return config.Config{
		HTTP:    config.HTTPConfig{RequestTimeout: 5 * time.Second},
		Logging: config.LoggingConfig{Level: "error", Format: "json"},
	}
}

func newTestClient(t *testing.T, cfg config.Config) *Client {
	t.Helper()

	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

// fakeNode serves both the socket endpoint and the REST surface of one
// audio node. loadCalls counts /loadtracks hits.
type fakeNode struct {
	srv       *httptest.Server
	loadCalls atomic.Int64
}

func newFakeNode(t *testing.T, result node.LoadResult) *fakeNode {
	t.Helper()

	f := &fakeNode{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case "/loadtracks":
			f.loadCalls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(result)

		case "/decodetrack":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(result.Tracks[0].Info)

		case "/":
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeNode) nodeConfig(t *testing.T, searchOnly bool) config.NodeConfig {
	t.Helper()

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(f.srv.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	return config.NodeConfig{
		Host:              host,
		Port:              port,
		Password:          testPassword,
		Region:            "eu",
		SearchOnly:        searchOnly,
		ReconnectAttempts: 3,
		ReconnectDelay:    time.Millisecond,
		ReconnectMaxDelay: time.Millisecond,
	}
}

func addFakeNode(t *testing.T, c *Client, f *fakeNode, searchOnly bool) *node.Node {
	t.Helper()

	n, err := c.AddNode(context.Background(), f.nodeConfig(t, searchOnly))
	if err != nil {
		t.Fatalf("failed to add node: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !n.Available() {
		time.Sleep(5 * time.Millisecond)
	}
	if !n.Available() {
		t.Fatal("node never connected")
	}
	return n
}

func searchResult(encoded ...string) node.LoadResult {
	tracks := make([]node.Track, len(encoded))
	for i, e := range encoded {
		tracks[i] = node.Track{Encoded: e, Info: node.TrackInfo{Title: "title " + e}}
	}
	return node.LoadResult{
		LoadType: node.LoadTypeSearchResult,
		Tracks:   tracks,
	}
}

func TestGetTracksNoNodeAvailable(t *testing.T) {
	c := newTestClient(t, testConfig())

	_, err := c.GetTracks(context.Background(), "hello")
	if !errors.Is(err, node.ErrNoNodeAvailable) {
		t.Fatalf("expected ErrNoNodeAvailable, got %v", err)
	}
}

func TestGetTracksResolvesAndCaches(t *testing.T) {
	c := newTestClient(t, testConfig())

	f := newFakeNode(t, searchResult("QAAAjQIA"))
	addFakeNode(t, c, f, false)

	result, err := c.GetTracks(context.Background(), "never gonna give you up")
	if err != nil {
		t.Fatalf("GetTracks failed: %v", err)
	}
	if result.LoadType != node.LoadTypeSearchResult {
		t.Errorf("expected load type %s, got %s", node.LoadTypeSearchResult, result.LoadType)
	}
	if len(result.Tracks) != 1 || result.Tracks[0].Encoded != "QAAAjQIA" {
		t.Fatalf("unexpected tracks: %+v", result.Tracks)
	}

	// second resolution of the same query must come from the cache
	result, err = c.GetTracks(context.Background(), "never gonna give you up")
	if err != nil {
		t.Fatalf("GetTracks failed: %v", err)
	}
	if result.LoadType != node.LoadTypeSearchResult {
		t.Errorf("expected load type %s, got %s", node.LoadTypeSearchResult, result.LoadType)
	}
	if len(result.Tracks) != 1 || result.Tracks[0].Encoded != "QAAAjQIA" {
		t.Fatalf("unexpected cached tracks: %+v", result.Tracks)
	}

	if calls := f.loadCalls.Load(); calls != 1 {
		t.Errorf("expected 1 node round trip, got %d", calls)
	}
}

func TestGetTracksSearchOnlyOption(t *testing.T) {
	c := newTestClient(t, testConfig())

	playback := newFakeNode(t, searchResult("playback"))
	search := newFakeNode(t, searchResult("search"))
	addFakeNode(t, c, playback, false)
	addFakeNode(t, c, search, true)

	result, err := c.GetTracks(context.Background(), "some song", SearchOnly())
	if err != nil {
		t.Fatalf("GetTracks failed: %v", err)
	}
	if len(result.Tracks) != 1 || result.Tracks[0].Encoded != "search" {
		t.Fatalf("expected result from search-only node, got %+v", result.Tracks)
	}
	if calls := playback.loadCalls.Load(); calls != 0 {
		t.Errorf("playback node should not resolve search-only queries, got %d calls", calls)
	}
}

func TestGetTracksSearchOnlyFallsBack(t *testing.T) {
	c := newTestClient(t, testConfig())

	playback := newFakeNode(t, searchResult("playback"))
	addFakeNode(t, c, playback, false)

	result, err := c.GetTracks(context.Background(), "some song", SearchOnly())
	if err != nil {
		t.Fatalf("GetTracks should fall back to the full pool: %v", err)
	}
	if len(result.Tracks) != 1 || result.Tracks[0].Encoded != "playback" {
		t.Fatalf("unexpected tracks: %+v", result.Tracks)
	}
}

func TestGetTracksOnNode(t *testing.T) {
	c := newTestClient(t, testConfig())

	other := newFakeNode(t, searchResult("other"))
	pinned := newFakeNode(t, searchResult("pinned"))
	addFakeNode(t, c, other, false)
	target := addFakeNode(t, c, pinned, false)

	result, err := c.GetTracks(context.Background(), "some song", OnNode(target))
	if err != nil {
		t.Fatalf("GetTracks failed: %v", err)
	}
	if len(result.Tracks) != 1 || result.Tracks[0].Encoded != "pinned" {
		t.Fatalf("expected result from pinned node, got %+v", result.Tracks)
	}
	if calls := other.loadCalls.Load(); calls != 0 {
		t.Errorf("unpinned node should not be asked, got %d calls", calls)
	}
}

func TestGetTracksFirstResult(t *testing.T) {
	c := newTestClient(t, testConfig())

	f := newFakeNode(t, searchResult("one", "two", "three"))
	addFakeNode(t, c, f, false)

	result, err := c.GetTracks(context.Background(), "full playlist of songs", FirstResult())
	if err != nil {
		t.Fatalf("GetTracks failed: %v", err)
	}
	if len(result.Tracks) != 1 || result.Tracks[0].Encoded != "one" {
		t.Fatalf("expected only the first track, got %+v", result.Tracks)
	}

	// the cache keeps the full result; only the trimmed view is returned
	result, err = c.GetTracks(context.Background(), "full playlist of songs")
	if err != nil {
		t.Fatalf("GetTracks failed: %v", err)
	}
	if len(result.Tracks) != 3 {
		t.Fatalf("expected full cached result, got %d tracks", len(result.Tracks))
	}
	if calls := f.loadCalls.Load(); calls != 1 {
		t.Errorf("expected 1 node round trip, got %d", calls)
	}
}

func TestDecodeTrackOnNode(t *testing.T) {
	c := newTestClient(t, testConfig())

	other := newFakeNode(t, searchResult("other"))
	pinned := newFakeNode(t, searchResult("pinned"))
	addFakeNode(t, c, other, false)
	target := addFakeNode(t, c, pinned, false)

	info, err := c.DecodeTrack(context.Background(), "whatever", OnNode(target))
	if err != nil {
		t.Fatalf("DecodeTrack failed: %v", err)
	}
	if info.Title != "title pinned" {
		t.Errorf("expected decode from pinned node, got title '%s'", info.Title)
	}
}

func TestCreatePlayerPassthrough(t *testing.T) {
	c := newTestClient(t, testConfig())

	f := newFakeNode(t, searchResult("x"))
	n := addFakeNode(t, c, f, false)

	p, err := c.CreatePlayer(context.Background(), "guild-1", "channel-1", "rotterdam1234.discord.media:443")
	if err != nil {
		t.Fatalf("CreatePlayer failed: %v", err)
	}
	if p.NodeName() != n.Name() {
		t.Errorf("expected player on node %s, got %s", n.Name(), p.NodeName())
	}
	if c.GetPlayer("guild-1") != p {
		t.Error("GetPlayer should return the created player")
	}

	c.DestroyPlayer(context.Background(), "guild-1")
	if c.GetPlayer("guild-1") != nil {
		t.Error("player should be gone after DestroyPlayer")
	}
}

func TestRoutePlannerUnknownNode(t *testing.T) {
	c := newTestClient(t, testConfig())

	if _, err := c.RoutePlannerStatus(context.Background(), "ghost"); !errors.Is(err, node.ErrNoNodeAvailable) {
		t.Errorf("expected ErrNoNodeAvailable, got %v", err)
	}
	if err := c.FreeRoutePlannerAddress(context.Background(), "ghost", "1.2.3.4"); !errors.Is(err, node.ErrNoNodeAvailable) {
		t.Errorf("expected ErrNoNodeAvailable, got %v", err)
	}
}

func TestConnectDialsConfiguredNodes(t *testing.T) {
	f := newFakeNode(t, searchResult("x"))

	cfg := testConfig()
	cfg.Nodes = []config.NodeConfig{f.nodeConfig(t, false)}

	c := newTestClient(t, cfg)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(c.Nodes().AvailableNodes()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if len(c.Nodes().AvailableNodes()) != 1 {
		t.Fatal("configured node never connected")
	}
}
