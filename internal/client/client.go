package client

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lavapool/lavapool/internal/cache"
	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/equalizer"
	"github.com/lavapool/lavapool/internal/event"
	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/node"
	"github.com/lavapool/lavapool/internal/player"
	"github.com/lavapool/lavapool/internal/query"
	"github.com/lavapool/lavapool/internal/queue"
	"github.com/lavapool/lavapool/internal/router"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultRelaySubject   = "lavapool.events"
)

// Client is the library entry point. It owns the node pool, the per-guild
// players, the query cache and the preset store, and tears all of them
// down on Close.
type Client struct {
	cfg    config.Config
	logger *logging.Logger

	bus     *event.Bus
	nodes   *node.Registry
	players *player.Registry
	cache   cache.Store
	presets equalizer.Store

	relay queue.Queue
	admin *fiber.App

	// warn once when search-only resolution falls back to the full pool
	searchFallback sync.Once

	closeOnce sync.Once
}

// New builds a client from configuration. Configured nodes are not dialed
// until Connect.
func New(cfg config.Config, connector player.VoiceConnector) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	timeout := cfg.HTTP.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	bus := event.NewBus(logger)
	nodes := node.NewRegistry(logger, bus, httpClient, cfg.Balancer.RegionFallback)
	players := player.NewRegistry(logger, bus, nodes, connector, cfg.Balancer.ConnectBack)

	cacheStore, err := cache.New(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query cache: %w", err)
	}

	presets, err := equalizer.New(cfg.Equalizer)
	if err != nil {
		cacheStore.Close()
		return nil, fmt.Errorf("failed to initialize preset store: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger.With("component", "client"),
		bus:     bus,
		nodes:   nodes,
		players: players,
		cache:   cacheStore,
		presets: presets,
	}

	if cfg.Relay.Enabled {
		relay, err := queue.New(cfg.Relay)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect event relay: %w", err)
		}
		subject := cfg.Relay.Subject
		if subject == "" {
			subject = defaultRelaySubject
		}
		c.relay = relay
		bus.SetRelay(relay, subject)
	}

	if cfg.Admin.Enabled {
		c.admin = router.New(logger, nodes, players, presets, cfg.Admin)
		go func() {
			addr := fmt.Sprintf("%s:%d", cfg.Admin.Host, cfg.Admin.Port)
			logger.Info("Admin server listening", "address", addr)
			if err := c.admin.Listen(addr); err != nil {
				logger.Error("Admin server stopped", "error", err)
			}
		}()
	}

	return c, nil
}

// Connect dials every configured node. A node that cannot be registered
// fails the call; dial failures are retried by the session itself.
func (c *Client) Connect(ctx context.Context) error {
	for _, nodeCfg := range c.cfg.Nodes {
		if _, err := c.AddNode(ctx, nodeCfg); err != nil {
			return err
		}
	}
	return nil
}

// AddNode registers a node and starts its session.
func (c *Client) AddNode(ctx context.Context, cfg config.NodeConfig) (*node.Node, error) {
	return c.nodes.Add(ctx, cfg)
}

// RemoveNode drops a node and stops its session. Players bound to it are
// rehomed through the usual node loss path once the session dies.
func (c *Client) RemoveNode(name string) {
	c.nodes.Remove(name)
}

// Nodes exposes the node registry.
func (c *Client) Nodes() *node.Registry { return c.nodes }

// Players exposes the player registry.
func (c *Client) Players() *player.Registry { return c.players }

// Bus exposes the event bus for subscribing to pool events.
func (c *Client) Bus() *event.Bus { return c.bus }

// Presets exposes the equalizer preset store.
func (c *Client) Presets() equalizer.Store { return c.presets }

// SearchOption tunes how a query or decode call resolves onto the pool.
type SearchOption func(*searchOptions)

type searchOptions struct {
	node       *node.Node
	searchOnly bool
	first      bool
}

// OnNode pins the call to a specific node instead of picking one.
func OnNode(n *node.Node) SearchOption {
	return func(o *searchOptions) { o.node = n }
}

// SearchOnly restricts resolution to nodes flagged search-only. When no
// search-only node is available the call falls back to the full pool,
// with a one-time warning.
func SearchOnly() SearchOption {
	return func(o *searchOptions) { o.searchOnly = true }
}

// FirstResult trims the load result to its first track.
func FirstResult() SearchOption {
	return func(o *searchOptions) { o.first = true }
}

func applyOptions(opts []SearchOption) searchOptions {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GetTracks resolves a raw query: classify, consult the cache, then ask a
// node picked at random from the available pool. Successful cacheable
// results are stored on the way out.
func (c *Client) GetTracks(ctx context.Context, raw string, opts ...SearchOption) (node.LoadResult, error) {
	o := applyOptions(opts)
	q := query.Parse(raw)

	if entry, err := c.cache.Get(ctx, q); err == nil {
		c.logger.Debug("Query cache hit", "query", q.CacheKey(), "tracks", len(entry.Tracks))
		return firstTrack(resultFromEntry(q, entry), o.first), nil
	}

	n := o.node
	if n == nil {
		n = c.resolveNode(o.searchOnly)
	}
	if n == nil {
		return node.LoadResult{}, node.ErrNoNodeAvailable
	}

	result, err := n.GetTracks(ctx, q.Identifier())
	if err != nil {
		return node.LoadResult{}, err
	}

	if err := c.cache.Put(ctx, q, result); err != nil && err != cache.ErrEntryNotFound {
		c.logger.Debug("Failed to cache query result", "query", q.CacheKey(), "error", err)
	}

	return firstTrack(result, o.first), nil
}

// DecodeTrack resolves track info for an encoded track string.
func (c *Client) DecodeTrack(ctx context.Context, encoded string, opts ...SearchOption) (node.TrackInfo, error) {
	n := c.callNode(opts)
	if n == nil {
		return node.TrackInfo{}, node.ErrNoNodeAvailable
	}
	return n.DecodeTrack(ctx, encoded)
}

// DecodeTracks resolves track info for a batch of encoded tracks.
func (c *Client) DecodeTracks(ctx context.Context, encoded []string, opts ...SearchOption) ([]node.Track, error) {
	n := c.callNode(opts)
	if n == nil {
		return nil, node.ErrNoNodeAvailable
	}
	return n.DecodeTracks(ctx, encoded)
}

// RoutePlannerStatus returns the route planner state of a named node.
func (c *Client) RoutePlannerStatus(ctx context.Context, nodeName string) (node.RoutePlannerStatus, error) {
	n := c.nodes.Get(nodeName)
	if n == nil {
		return node.RoutePlannerStatus{}, node.ErrNoNodeAvailable
	}
	return n.RoutePlannerStatus(ctx)
}

// FreeRoutePlannerAddress unmarks a failing address on a named node.
func (c *Client) FreeRoutePlannerAddress(ctx context.Context, nodeName, address string) error {
	n := c.nodes.Get(nodeName)
	if n == nil {
		return node.ErrNoNodeAvailable
	}
	return n.RoutePlannerFreeAddress(ctx, address)
}

// FreeAllFailingAddresses unmarks every failing address on every
// available node.
func (c *Client) FreeAllFailingAddresses(ctx context.Context) error {
	for _, n := range c.nodes.AvailableNodes() {
		if err := n.RoutePlannerFreeAll(ctx); err != nil {
			return fmt.Errorf("node %s: %w", n.Name(), err)
		}
	}
	return nil
}

// CreatePlayer connects a player for the guild's voice channel.
func (c *Client) CreatePlayer(ctx context.Context, guildID, channelID, endpoint string) (*player.Player, error) {
	return c.players.Create(ctx, guildID, channelID, endpoint, nil)
}

// GetPlayer returns the guild's player, or nil.
func (c *Client) GetPlayer(guildID string) *player.Player {
	return c.players.Get(guildID)
}

// DestroyPlayer tears the guild's player down.
func (c *Client) DestroyPlayer(ctx context.Context, guildID string) {
	c.players.Destroy(ctx, guildID)
}

// Close shuts down the admin server, node sessions and backing stores.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.admin != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := c.admin.ShutdownWithContext(shutdownCtx); err != nil {
				c.logger.Error("Admin server forced to shutdown", "error", err)
			}
		}

		c.nodes.CloseAll()

		if err := c.cache.Close(); err != nil {
			c.logger.Error("Failed to close query cache", "error", err)
		}
		if err := c.presets.Close(); err != nil {
			c.logger.Error("Failed to close preset store", "error", err)
		}
		if c.relay != nil {
			if err := c.relay.Close(); err != nil {
				c.logger.Error("Failed to close event relay", "error", err)
			}
		}
	})
}

// resolveNode picks a random available node. searchOnly narrows the pool
// to the search-only nodes first, falling back to everything available
// with a one-time warning when that pool is empty.
func (c *Client) resolveNode(searchOnly bool) *node.Node {
	if searchOnly {
		if pool := c.nodes.SearchOnlyNodes(); len(pool) > 0 {
			return pickRandom(pool)
		}
		c.searchFallback.Do(func() {
			c.logger.Warn("No search-only node available, resolving queries on the full pool")
		})
	}
	return pickRandom(c.nodes.AvailableNodes())
}

func (c *Client) callNode(opts []SearchOption) *node.Node {
	if o := applyOptions(opts); o.node != nil {
		return o.node
	}
	return pickRandom(c.nodes.AvailableNodes())
}

func firstTrack(result node.LoadResult, first bool) node.LoadResult {
	if first && len(result.Tracks) > 1 {
		result.Tracks = result.Tracks[:1]
	}
	return result
}

func pickRandom(pool []*node.Node) *node.Node {
	switch len(pool) {
	case 0:
		return nil
	case 1:
		return pool[0]
	default:
		return pool[rand.Intn(len(pool))]
	}
}

// resultFromEntry rebuilds a load result from cached encoded tracks. Track
// info is left empty; callers that need it decode through the node.
func resultFromEntry(q query.Query, entry cache.Entry) node.LoadResult {
	result := node.LoadResult{
		LoadType:     node.LoadTypeTrackLoaded,
		PlaylistInfo: node.PlaylistInfo{Name: entry.Name, SelectedTrack: -1},
		Tracks:       make([]node.Track, len(entry.Tracks)),
	}
	for i, encoded := range entry.Tracks {
		result.Tracks[i] = node.Track{Encoded: encoded}
	}

	switch {
	case q.Search:
		result.LoadType = node.LoadTypeSearchResult
	case q.Type == query.TypePlaylist || q.Type == query.TypeAlbum:
		result.LoadType = node.LoadTypePlaylistLoaded
	}
	return result
}
