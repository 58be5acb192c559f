package models

import "github.com/lavapool/lavapool/internal/node"

// HealthResponse is the health check payload
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ErrorDetail describes an API error
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// ErrorResponse is the envelope for API errors
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// NodeStatus is the introspection view of one node
type NodeStatus struct {
	Name       string              `json:"name"`
	Region     string              `json:"region,omitempty"`
	State      string              `json:"state"`
	Available  bool                `json:"available"`
	SearchOnly bool                `json:"search_only"`
	Players    int                 `json:"players"`
	Penalty    node.Penalty        `json:"penalty"`
	Stats      *node.StatsSnapshot `json:"stats,omitempty"`
}

// PlayerStatus is the introspection view of one player
type PlayerStatus struct {
	GuildID      string `json:"guild_id"`
	ChannelID    string `json:"channel_id"`
	Node         string `json:"node"`
	OriginalNode string `json:"original_node,omitempty"`
	Connected    bool   `json:"connected"`
	Playing      bool   `json:"playing"`
	Paused       bool   `json:"paused"`
	Track        string `json:"track,omitempty"`
	Position     int64  `json:"position"`
}
