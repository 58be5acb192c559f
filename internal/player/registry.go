package player

import (
	"context"
	"sync"
	"time"

	"github.com/lavapool/lavapool/internal/event"
	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/node"
)

// Registry owns every player keyed by guild. It reacts to node loss by
// rehoming affected players and keeps player playback state in sync with
// track events from the bus.
type Registry struct {
	logger    *logging.Logger
	bus       *event.Bus
	nodes     *node.Registry
	connector VoiceConnector

	// connectBack moves a failed-over player back to its original node once
	// that node reconnects.
	connectBack bool

	mu      sync.RWMutex
	players map[string]*Player
}

// NewRegistry creates a player registry wired to the node registry and the
// event bus.
func NewRegistry(logger *logging.Logger, bus *event.Bus, nodes *node.Registry, connector VoiceConnector, connectBack bool) *Registry {
	if connector == nil {
		connector = NopConnector{}
	}

	r := &Registry{
		logger:      logger.With("component", "players"),
		bus:         bus,
		nodes:       nodes,
		connector:   connector,
		connectBack: connectBack,
		players:     make(map[string]*Player),
	}

	nodes.OnNodeLoss(r.handleNodeLoss)

	bus.Subscribe(event.KindTrackStart, r.onTrackStart)
	bus.Subscribe(event.KindTrackEnd, r.onTrackStop)
	bus.Subscribe(event.KindTrackStuck, r.onTrackStop)
	bus.Subscribe(event.KindTrackException, r.onTrackStop)
	if connectBack {
		bus.Subscribe(event.KindNodeConnected, r.onNodeConnected)
	}

	return r
}

// Create returns the guild's player, building one when none exists. An
// existing player bound to a different channel is moved there instead.
// When n is nil the least loaded node for the endpoint's region hosts the
// player.
func (r *Registry) Create(ctx context.Context, guildID, channelID, endpoint string, n *node.Node) (*Player, error) {
	if existing := r.Get(guildID); existing != nil {
		if existing.ChannelID() == channelID {
			return existing, nil
		}

		if err := r.connector.Connect(ctx, guildID, channelID); err != nil {
			return nil, err
		}
		existing.setChannel(channelID)
		return existing, nil
	}

	if n == nil {
		n = r.nodes.BestNode(node.RegionForEndpoint(endpoint))
	}
	if n == nil {
		return nil, node.ErrNoNodeAvailable
	}

	if err := r.connector.Connect(ctx, guildID, channelID); err != nil {
		return nil, err
	}

	p := &Player{
		nodes:     r.nodes,
		guildID:   guildID,
		channelID: channelID,
		endpoint:  endpoint,
		nodeName:  n.Name(),
		connected: true,
	}

	// another Create may have raced us while connecting
	r.mu.Lock()
	if existing, ok := r.players[guildID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.players[guildID] = p
	r.mu.Unlock()

	n.SetPlayerUpdateHandler(r.applyPlayerUpdate)

	r.logger.Info("Player created",
		"guild_id", guildID,
		"channel_id", channelID,
		"node", n.Name())

	r.bus.Publish(event.Event{
		Kind:    event.KindPlayerConnected,
		Node:    n.Name(),
		GuildID: guildID,
	})
	return p, nil
}

// Destroy tears a player down: tells its node to drop the guild, leaves
// the voice channel and removes the player. Destroying an absent guild is
// a no-op.
func (r *Registry) Destroy(ctx context.Context, guildID string) {
	p := r.Get(guildID)
	if p == nil {
		return
	}

	if n := p.Node(); n != nil && n.Available() {
		if err := n.Send(map[string]interface{}{
			"op":      "destroy",
			"guildId": guildID,
		}); err != nil {
			r.logger.Warn("Failed to send player destroy", "guild_id", guildID, "error", err)
		}
	}

	if err := r.connector.Disconnect(ctx, guildID); err != nil {
		r.logger.Warn("Voice disconnect failed", "guild_id", guildID, "error", err)
	}

	r.remove(guildID)

	r.bus.Publish(event.Event{
		Kind:    event.KindPlayerDestroyed,
		Node:    p.NodeName(),
		GuildID: guildID,
	})
}

// Remove drops the player from the registry without touching its node or
// voice state.
func (r *Registry) Remove(guildID string) {
	r.remove(guildID)
}

func (r *Registry) remove(guildID string) {
	r.mu.Lock()
	delete(r.players, guildID)
	r.mu.Unlock()
}

// Move rehomes a player onto target. rememberOriginal records the current
// node so a later connect-back pass can restore it.
func (r *Registry) Move(ctx context.Context, p *Player, target *node.Node, rememberOriginal bool) error {
	if target == nil || !target.Available() {
		return node.ErrNoNodeAvailable
	}

	from := p.NodeName()
	if from == target.Name() {
		return nil
	}

	if n := p.Node(); n != nil && n.Available() {
		if err := n.Send(map[string]interface{}{
			"op":      "destroy",
			"guildId": p.GuildID(),
		}); err != nil {
			r.logger.Warn("Failed to detach player from old node",
				"guild_id", p.GuildID(), "error", err)
		}
	}

	p.setNode(target.Name(), rememberOriginal)
	target.SetPlayerUpdateHandler(r.applyPlayerUpdate)

	// re-join the channel so voice state is pushed at the new node
	if err := r.connector.Connect(ctx, p.GuildID(), p.ChannelID()); err != nil {
		r.logger.Warn("Voice reconnect after move failed",
			"guild_id", p.GuildID(), "error", err)
	}

	if track := p.CurrentTrack(); track != "" {
		if err := p.Play(track); err != nil {
			r.logger.Warn("Failed to resume track after move",
				"guild_id", p.GuildID(), "error", err)
		}
	}

	r.logger.Info("Player moved",
		"guild_id", p.GuildID(),
		"from", from,
		"to", target.Name())

	r.bus.Publish(event.Event{
		Kind:    event.KindPlayerMoved,
		Node:    target.Name(),
		GuildID: p.GuildID(),
		Reason:  from,
	})
	return nil
}

// Get returns the guild's player, or nil.
func (r *Registry) Get(guildID string) *Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.players[guildID]
}

// Players returns every registered player.
func (r *Registry) Players() []*Player {
	return r.filter(func(*Player) bool { return true })
}

// ConnectedPlayers returns the players with an active voice connection.
func (r *Registry) ConnectedPlayers() []*Player {
	return r.filter((*Player).Connected)
}

// PlayingPlayers returns the players currently playing a track.
func (r *Registry) PlayingPlayers() []*Player {
	return r.filter((*Player).Playing)
}

// PausedPlayers returns the players with paused playback.
func (r *Registry) PausedPlayers() []*Player {
	return r.filter((*Player).Paused)
}

// EmptyPlayers returns the connected players with nothing playing.
func (r *Registry) EmptyPlayers() []*Player {
	return r.filter(func(p *Player) bool {
		return p.Connected() && p.CurrentTrack() == ""
	})
}

// PlayersOn returns the players hosted by the named node.
func (r *Registry) PlayersOn(nodeName string) []*Player {
	return r.filter(func(p *Player) bool {
		return p.NodeName() == nodeName
	})
}

func (r *Registry) filter(keep func(*Player) bool) []*Player {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Player
	for _, p := range r.players {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// handleNodeLoss rehomes every player on a permanently disconnected node.
// Players that cannot be rehomed are dropped.
func (r *Registry) handleNodeLoss(lost *node.Node) {
	affected := r.PlayersOn(lost.Name())
	if len(affected) == 0 {
		return
	}

	r.logger.Warn("Rehoming players from lost node",
		"node", lost.Name(),
		"players", len(affected))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, p := range affected {
		target := r.nodes.BestNode(node.RegionForEndpoint(p.endpoint))
		if target == nil {
			r.logger.Error("No node available for player, dropping it",
				"guild_id", p.GuildID())
			r.remove(p.GuildID())
			r.bus.Publish(event.Event{
				Kind:    event.KindPlayerDestroyed,
				Node:    lost.Name(),
				GuildID: p.GuildID(),
			})
			continue
		}

		if err := r.Move(ctx, p, target, true); err != nil {
			r.logger.Error("Failed to rehome player",
				"guild_id", p.GuildID(), "error", err)
		}
	}
}

// onNodeConnected is the connect-back pass: players that failed over away
// from this node are moved back.
func (r *Registry) onNodeConnected(e event.Event) {
	back := r.nodes.Get(e.Node)
	if back == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, p := range r.Players() {
		if p.OriginalNode() != e.Node {
			continue
		}

		if err := r.Move(ctx, p, back, false); err != nil {
			r.logger.Warn("Connect-back move failed",
				"guild_id", p.GuildID(), "error", err)
			continue
		}
		p.clearOriginalNode()
	}
}

func (r *Registry) applyPlayerUpdate(guildID string, st node.PlayerState) {
	if p := r.Get(guildID); p != nil {
		p.applyUpdate(st)
	}
}

func (r *Registry) onTrackStart(e event.Event) {
	if p := r.Get(e.GuildID); p != nil {
		p.setTrack(e.Track)
	}
}

func (r *Registry) onTrackStop(e event.Event) {
	if p := r.Get(e.GuildID); p != nil {
		p.clearTrack()
	}
}
