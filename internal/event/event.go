package event

import (
	"encoding/json"
	"time"
)

// Kind identifies a domain event. The set is closed; consumers switch on it
// rather than on type names.
type Kind string

const (
	// KindAny subscribes a handler to every event
	KindAny Kind = "*"

	KindPlayerConnected  Kind = "player_connected"
	KindPlayerMoved      Kind = "player_moved"
	KindPlayerDestroyed  Kind = "player_destroyed"
	KindNodeConnected    Kind = "node_connected"
	KindNodeDisconnected Kind = "node_disconnected"
	KindTrackStart       Kind = "track_start"
	KindTrackEnd         Kind = "track_end"
	KindTrackStuck       Kind = "track_stuck"
	KindTrackException   Kind = "track_exception"
	KindStatsUpdate      Kind = "stats_update"
)

// Event carries a domain occurrence. Entities are referenced by identifier,
// never by pointer, so events can cross process boundaries via the relay.
type Event struct {
	Kind      Kind      `json:"kind"`
	Node      string    `json:"node,omitempty"`     // originating node name
	GuildID   string    `json:"guild_id,omitempty"` // affected guild, for player/track events
	Track     string    `json:"track,omitempty"`    // encoded track, for track events
	Reason    string    `json:"reason,omitempty"`   // end reason, exception message or stuck threshold
	Timestamp time.Time `json:"timestamp"`

	// Raw is the original inbound frame for track and stats events, when one
	// exists.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// New creates an event of the given kind stamped with the current time.
func New(kind Kind) Event {
	return Event{Kind: kind, Timestamp: time.Now()}
}
