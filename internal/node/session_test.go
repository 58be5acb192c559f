package node

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/event"
	"github.com/lavapool/lavapool/internal/logging"
)

const testPassword = "youshallnotpass"

var upgrader = websocket.Upgrader{}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, zerolog.Disabled)
}

// newTestNode builds an unstarted node pointed at a test server, with a
// millisecond reconnect backoff.
func newTestNode(t *testing.T, serverURL string, attempts int) (*Node, *event.Bus) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(serverURL, "http://"))
	if err != nil {
		t.Fatalf("failed to parse server URL %q: %v", serverURL, err)
	}
	port, _ := strconv.Atoi(portStr)

	logger := testLogger()
	bus := event.NewBus(logger)

	n := New(config.NodeConfig{
		Host:              host,
		Port:              port,
		Password:          testPassword,
		Region:            "us",
		ReconnectAttempts: attempts,
		ResumeTimeout:     time.Minute,
	}, &http.Client{Timeout: 5 * time.Second}, logger, bus)

	n.session.newBackoff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}
	return n, bus
}

// wsServer accepts one socket per request, checks auth, pushes the given
// frames and then reads until the client hangs up.
func wsServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != testPassword {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSessionConnect(t *testing.T) {
	srv := wsServer(t)
	defer srv.Close()

	n, bus := newTestNode(t, srv.URL, 3)

	connected := make(chan event.Event, 1)
	bus.Subscribe(event.KindNodeConnected, func(e event.Event) {
		select {
		case connected <- e:
		default:
		}
	})

	n.Connect(context.Background())
	defer n.Close()

	select {
	case e := <-connected:
		if e.Node != n.Name() {
			t.Errorf("event node = %q, want %q", e.Node, n.Name())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for node connected event")
	}

	if !n.Available() {
		t.Error("node must be available after connecting")
	}
}

func TestSessionStatsFrame(t *testing.T) {
	srv := wsServer(t, `{
		"op": "stats",
		"playingPlayers": 3,
		"memory": {"free": 1, "used": 2, "allocated": 3, "reservable": 4},
		"cpu": {"cores": 4, "systemLoad": 0.1, "lavalinkLoad": 0.05}
	}`)
	defer srv.Close()

	n, _ := newTestNode(t, srv.URL, 3)
	n.Connect(context.Background())
	defer n.Close()

	waitFor(t, 2*time.Second, func() bool {
		return n.Stats() != nil
	}, "timed out waiting for stats")

	if got := n.Stats().PlayingPlayers; got != 3 {
		t.Errorf("playing players = %d, want 3", got)
	}

	if total := n.Penalty().Total; total >= UnavailablePenalty {
		t.Errorf("node with stats must report a real penalty, got %v", total)
	}
}

func TestSessionTrackEventDispatch(t *testing.T) {
	srv := wsServer(t, `{
		"op": "event",
		"type": "TrackEndEvent",
		"guildId": "123456789",
		"track": "QAAAjQIAJVJpY2s",
		"reason": "FINISHED"
	}`)
	defer srv.Close()

	n, bus := newTestNode(t, srv.URL, 3)

	events := make(chan event.Event, 1)
	bus.Subscribe(event.KindTrackEnd, func(e event.Event) {
		select {
		case events <- e:
		default:
		}
	})

	n.Connect(context.Background())
	defer n.Close()

	select {
	case e := <-events:
		if e.GuildID != "123456789" {
			t.Errorf("guild id = %q, want 123456789", e.GuildID)
		}
		if e.Track != "QAAAjQIAJVJpY2s" {
			t.Errorf("track = %q", e.Track)
		}
		if e.Reason != "FINISHED" {
			t.Errorf("reason = %q, want FINISHED", e.Reason)
		}
		if e.Node != n.Name() {
			t.Errorf("event node = %q, want %q", e.Node, n.Name())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for track end event")
	}
}

func TestSessionReconnectBudget(t *testing.T) {
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dials, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n, bus := newTestNode(t, srv.URL, 3)

	lost := make(chan event.Event, 1)
	bus.Subscribe(event.KindNodeDisconnected, func(e event.Event) {
		select {
		case lost <- e:
		default:
		}
	})

	n.Connect(context.Background())
	defer n.Close()

	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for node disconnected event")
	}

	if got := atomic.LoadInt32(&dials); got != 3 {
		t.Errorf("dial attempts = %d, want exactly 3", got)
	}

	if state := n.SessionState(); state != StateDisconnected {
		t.Errorf("state after exhaustion = %v, want disconnected", state)
	}
}

func TestSessionSendNotConnected(t *testing.T) {
	srv := wsServer(t)
	defer srv.Close()

	n, _ := newTestNode(t, srv.URL, 3)

	err := n.Send(map[string]interface{}{"op": "destroy"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send on unstarted session = %v, want ErrNotConnected", err)
	}
}

func TestSessionUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n, bus := newTestNode(t, srv.URL, 1)

	lost := make(chan event.Event, 1)
	bus.Subscribe(event.KindNodeDisconnected, func(e event.Event) {
		select {
		case lost <- e:
		default:
		}
	})

	n.Connect(context.Background())
	defer n.Close()

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("rejected session must terminate")
	}
}
