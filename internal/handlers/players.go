package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lavapool/lavapool/internal/models"
	"github.com/lavapool/lavapool/internal/player"
)

func playerStatus(p *player.Player) models.PlayerStatus {
	return models.PlayerStatus{
		GuildID:      p.GuildID(),
		ChannelID:    p.ChannelID(),
		Node:         p.NodeName(),
		OriginalNode: p.OriginalNode(),
		Connected:    p.Connected(),
		Playing:      p.Playing(),
		Paused:       p.Paused(),
		Track:        p.CurrentTrack(),
		Position:     p.Position(),
	}
}

// ListPlayers returns every registered player
func (h *Handler) ListPlayers(c *fiber.Ctx) error {
	players := h.players.Players()

	out := make([]models.PlayerStatus, len(players))
	for i, p := range players {
		out[i] = playerStatus(p)
	}
	return c.JSON(out)
}

// GetPlayer returns a single player by guild
func (h *Handler) GetPlayer(c *fiber.Ctx) error {
	p := h.players.Get(c.Params("guild_id"))
	if p == nil {
		return fiber.NewError(fiber.StatusNotFound, "player not found")
	}
	return c.JSON(playerStatus(p))
}

// DestroyPlayer tears a player down
func (h *Handler) DestroyPlayer(c *fiber.Ctx) error {
	h.players.Destroy(c.Context(), c.Params("guild_id"))
	return c.SendStatus(fiber.StatusNoContent)
}
