package handlers

import (
	"github.com/lavapool/lavapool/internal/equalizer"
	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/node"
	"github.com/lavapool/lavapool/internal/player"
)

// Handler holds the dependencies the status API serves from.
type Handler struct {
	logger  *logging.Logger
	nodes   *node.Registry
	players *player.Registry
	presets equalizer.Store
}

// New creates a handler instance.
func New(logger *logging.Logger, nodes *node.Registry, players *player.Registry, presets equalizer.Store) *Handler {
	return &Handler{
		logger:  logger,
		nodes:   nodes,
		players: players,
		presets: presets,
	}
}
