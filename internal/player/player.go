package player

import (
	"context"
	"sync"
	"time"

	"github.com/lavapool/lavapool/internal/node"
)

// Player is the per-guild playback handle. It references its node by name,
// never by pointer, so a player survives its node being replaced.
type Player struct {
	nodes *node.Registry

	mu           sync.RWMutex
	guildID      string
	channelID    string
	endpoint     string
	nodeName     string
	originalNode string // node the player was created on, set on failover

	connected bool
	paused    bool
	track     string // encoded track currently playing, empty when idle
	position  int64
	updatedAt time.Time
}

// GuildID returns the guild this player belongs to.
func (p *Player) GuildID() string {
	return p.guildID
}

// ChannelID returns the voice channel the player is bound to.
func (p *Player) ChannelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.channelID
}

// NodeName returns the name of the node currently hosting the player.
func (p *Player) NodeName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nodeName
}

// OriginalNode returns the node the player was moved away from, or the
// empty string if it has never failed over.
func (p *Player) OriginalNode() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.originalNode
}

// Node resolves the player's current node, or nil when it is gone.
func (p *Player) Node() *node.Node {
	return p.nodes.Get(p.NodeName())
}

// Connected reports whether the player has an active voice connection.
func (p *Player) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Playing reports whether a track is currently playing.
func (p *Player) Playing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.track != "" && !p.paused
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// CurrentTrack returns the encoded track being played, or the empty string.
func (p *Player) CurrentTrack() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.track
}

// Position returns the last reported playback position in milliseconds.
func (p *Player) Position() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

// Play starts playback of an encoded track on the player's node.
func (p *Player) Play(encoded string) error {
	n := p.Node()
	if n == nil {
		return node.ErrNotConnected
	}

	if err := n.Send(map[string]interface{}{
		"op":      "play",
		"guildId": p.guildID,
		"track":   encoded,
	}); err != nil {
		return err
	}

	p.mu.Lock()
	p.track = encoded
	p.paused = false
	p.mu.Unlock()
	return nil
}

// Stop stops playback on the player's node.
func (p *Player) Stop() error {
	n := p.Node()
	if n == nil {
		return node.ErrNotConnected
	}

	if err := n.Send(map[string]interface{}{
		"op":      "stop",
		"guildId": p.guildID,
	}); err != nil {
		return err
	}

	p.mu.Lock()
	p.track = ""
	p.mu.Unlock()
	return nil
}

// SetPaused pauses or resumes playback.
func (p *Player) SetPaused(paused bool) error {
	n := p.Node()
	if n == nil {
		return node.ErrNotConnected
	}

	if err := n.Send(map[string]interface{}{
		"op":      "pause",
		"guildId": p.guildID,
		"pause":   paused,
	}); err != nil {
		return err
	}

	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
	return nil
}

// SetEqualizer applies a band gain curve on the player's node.
func (p *Player) SetEqualizer(bands []float64) error {
	n := p.Node()
	if n == nil {
		return node.ErrNotConnected
	}

	payload := make([]map[string]interface{}, len(bands))
	for i, gain := range bands {
		payload[i] = map[string]interface{}{"band": i, "gain": gain}
	}

	return n.Send(map[string]interface{}{
		"op":      "equalizer",
		"guildId": p.guildID,
		"bands":   payload,
	})
}

func (p *Player) applyUpdate(st node.PlayerState) {
	p.mu.Lock()
	p.position = st.Position
	p.connected = st.Connected
	p.updatedAt = time.Now()
	p.mu.Unlock()
}

func (p *Player) setTrack(encoded string) {
	p.mu.Lock()
	p.track = encoded
	p.mu.Unlock()
}

func (p *Player) clearTrack() {
	p.mu.Lock()
	p.track = ""
	p.mu.Unlock()
}

func (p *Player) setChannel(channelID string) {
	p.mu.Lock()
	p.channelID = channelID
	p.mu.Unlock()
}

func (p *Player) setNode(name string, rememberOriginal bool) {
	p.mu.Lock()
	if rememberOriginal && p.originalNode == "" {
		p.originalNode = p.nodeName
	}
	p.nodeName = name
	p.mu.Unlock()
}

func (p *Player) clearOriginalNode() {
	p.mu.Lock()
	p.originalNode = ""
	p.mu.Unlock()
}

// VoiceConnector performs the gateway-side voice channel join and leave on
// behalf of the library. The bot's gateway integration supplies one.
type VoiceConnector interface {
	Connect(ctx context.Context, guildID, channelID string) error
	Disconnect(ctx context.Context, guildID string) error
}

// NopConnector is a connector that does nothing, for callers that drive
// voice state themselves.
type NopConnector struct{}

func (NopConnector) Connect(ctx context.Context, guildID, channelID string) error { return nil }
func (NopConnector) Disconnect(ctx context.Context, guildID string) error         { return nil }
