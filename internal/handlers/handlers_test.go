package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/equalizer"
	"github.com/lavapool/lavapool/internal/event"
	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/models"
	"github.com/lavapool/lavapool/internal/node"
	"github.com/lavapool/lavapool/internal/player"
)

var upgrader = websocket.Upgrader{}

type testEnv struct {
	handler *Handler
	app     *fiber.App
	nodes   *node.Registry
	players *player.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logging.NewWithWriter(io.Discard, zerolog.Disabled)
	bus := event.NewBus(logger)
	nodes := node.NewRegistry(logger, bus, &http.Client{Timeout: 5 * time.Second}, true)
	players := player.NewRegistry(logger, bus, nodes, nil, false)

	presets := equalizer.NewMemoryPresetStore()
	if err := equalizer.EnsureBuiltins(presets); err != nil {
		t.Fatalf("failed to seed presets: %v", err)
	}

	h := New(logger, nodes, players, presets)

	app := fiber.New()
	app.Get("/health", h.Health)
	app.Get("/v1/nodes", h.ListNodes)
	app.Get("/v1/nodes/:name", h.GetNode)
	app.Get("/v1/players", h.ListPlayers)
	app.Get("/v1/players/:guild_id", h.GetPlayer)
	app.Get("/v1/equalizers", h.ListPresets)
	app.Get("/v1/equalizers/:name", h.GetPreset)
	app.Put("/v1/equalizers/:name", h.PutPreset)
	app.Delete("/v1/equalizers/:name", h.DeletePreset)
	app.Use(h.NotFound)

	t.Cleanup(func() { nodes.CloseAll() })

	return &testEnv{handler: h, app: app, nodes: nodes, players: players}
}

// startNodeServer runs a socket endpoint that swallows whatever the
// session sends.
func startNodeServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
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
	}))
}

func (env *testEnv) addNode(t *testing.T, srv *httptest.Server, region string) *node.Node {
	t.Helper()

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	n, err := env.nodes.Add(context.Background(), config.NodeConfig{
		Host:              host,
		Port:              port,
		Password:          "pw",
		Region:            region,
		ReconnectAttempts: 3,
		ReconnectDelay:    time.Millisecond,
		ReconnectMaxDelay: time.Millisecond,
	})
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

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
}

func TestHandler_Health(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status %d, got %d", fiber.StatusOK, resp.StatusCode)
	}

	var healthResp models.HealthResponse
	decodeBody(t, resp, &healthResp)

	if healthResp.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", healthResp.Status)
	}
	if healthResp.Timestamp == "" {
		t.Error("Expected non-empty timestamp")
	}
}

func TestHandler_ListNodesEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest("GET", "/v1/nodes", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status %d, got %d", fiber.StatusOK, resp.StatusCode)
	}

	var nodes []models.NodeStatus
	decodeBody(t, resp, &nodes)

	if len(nodes) != 0 {
		t.Errorf("Expected no nodes, got %d", len(nodes))
	}
}

func TestHandler_GetNode(t *testing.T) {
	env := newTestEnv(t)

	srv := startNodeServer(t)
	defer srv.Close()

	n := env.addNode(t, srv, "eu")

	resp, err := env.app.Test(httptest.NewRequest("GET", "/v1/nodes/"+n.Name(), nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status %d, got %d", fiber.StatusOK, resp.StatusCode)
	}

	var status models.NodeStatus
	decodeBody(t, resp, &status)

	if status.Name != n.Name() {
		t.Errorf("Expected node name '%s', got '%s'", n.Name(), status.Name)
	}
	if !status.Available {
		t.Error("Expected node to be available")
	}
	if status.State != "connected" {
		t.Errorf("Expected state 'connected', got '%s'", status.State)
	}
}

func TestHandler_GetNodeNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest("GET", "/v1/nodes/unknown", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected status %d, got %d", fiber.StatusNotFound, resp.StatusCode)
	}
}

func TestHandler_ListPlayersEmpty(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest("GET", "/v1/players", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("Expected status %d, got %d", fiber.StatusOK, resp.StatusCode)
	}

	var players []models.PlayerStatus
	decodeBody(t, resp, &players)

	if len(players) != 0 {
		t.Errorf("Expected no players, got %d", len(players))
	}
}

func TestHandler_GetPlayerNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest("GET", "/v1/players/12345", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected status %d, got %d", fiber.StatusNotFound, resp.StatusCode)
	}
}

func TestHandler_ListPresets(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest("GET", "/v1/equalizers", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status %d, got %d", fiber.StatusOK, resp.StatusCode)
	}

	var presets []equalizer.Preset
	decodeBody(t, resp, &presets)

	if len(presets) != len(equalizer.Builtins()) {
		t.Errorf("Expected %d presets, got %d", len(equalizer.Builtins()), len(presets))
	}

	found := false
	for _, p := range presets {
		if p.Name == "Boost" {
			found = true
		}
	}
	if !found {
		t.Error("Expected builtin 'Boost' preset in listing")
	}
}

func TestHandler_PresetLifecycle(t *testing.T) {
	env := newTestEnv(t)

	body := strings.NewReader(`{"description":"flat with a bass bump","bands":[0.1,0.1,0,0,0,0,0,0,0,0,0,0,0,0,0]}`)
	req := httptest.NewRequest("PUT", "/v1/equalizers/Custom", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status %d, got %d", fiber.StatusOK, resp.StatusCode)
	}

	resp, err = env.app.Test(httptest.NewRequest("GET", "/v1/equalizers/Custom", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status %d, got %d", fiber.StatusOK, resp.StatusCode)
	}

	var p equalizer.Preset
	decodeBody(t, resp, &p)

	if p.Name != "Custom" {
		t.Errorf("Expected preset name 'Custom', got '%s'", p.Name)
	}
	if p.Bands[0] != 0.1 {
		t.Errorf("Expected first band gain 0.1, got %v", p.Bands[0])
	}

	resp, err = env.app.Test(httptest.NewRequest("DELETE", "/v1/equalizers/Custom", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("Expected status %d, got %d", fiber.StatusNoContent, resp.StatusCode)
	}

	resp, err = env.app.Test(httptest.NewRequest("GET", "/v1/equalizers/Custom", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected status %d, got %d", fiber.StatusNotFound, resp.StatusCode)
	}
}

func TestHandler_PutPresetRejectsBadGain(t *testing.T) {
	env := newTestEnv(t)

	body := strings.NewReader(`{"bands":[2,0,0,0,0,0,0,0,0,0,0,0,0,0,0]}`)
	req := httptest.NewRequest("PUT", "/v1/equalizers/Broken", body)
	req.Header.Set("Content-Type", "application/json")

	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("Expected status %d, got %d", fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestHandler_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.app.Test(httptest.NewRequest("GET", "/nonexistent", nil))
	if err != nil {
		t.Fatalf("Failed to perform request: %v", err)
	}

	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("Expected status %d, got %d", fiber.StatusNotFound, resp.StatusCode)
	}

	var errResp models.ErrorResponse
	decodeBody(t, resp, &errResp)

	if errResp.Error.Code != "NOT_FOUND" {
		t.Errorf("Expected code 'NOT_FOUND', got '%s'", errResp.Error.Code)
	}
	if errResp.Error.Path != "/nonexistent" {
		t.Errorf("Expected path '/nonexistent', got '%s'", errResp.Error.Path)
	}
}
