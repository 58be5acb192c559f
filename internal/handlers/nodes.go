package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lavapool/lavapool/internal/models"
	"github.com/lavapool/lavapool/internal/node"
)

func (h *Handler) nodeStatus(n *node.Node) models.NodeStatus {
	return models.NodeStatus{
		Name:       n.Name(),
		Region:     n.Region(),
		State:      n.SessionState().String(),
		Available:  n.Available(),
		SearchOnly: n.SearchOnly(),
		Players:    len(h.players.PlayersOn(n.Name())),
		Penalty:    n.Penalty(),
		Stats:      n.Stats(),
	}
}

// ListNodes returns every registered node with its penalty breakdown
func (h *Handler) ListNodes(c *fiber.Ctx) error {
	nodes := h.nodes.Nodes()

	out := make([]models.NodeStatus, len(nodes))
	for i, n := range nodes {
		out[i] = h.nodeStatus(n)
	}
	return c.JSON(out)
}

// GetNode returns a single node by name
func (h *Handler) GetNode(c *fiber.Ctx) error {
	n := h.nodes.Get(c.Params("name"))
	if n == nil {
		return fiber.NewError(fiber.StatusNotFound, "node not found")
	}
	return c.JSON(h.nodeStatus(n))
}

// GetRoutePlanner returns the node's route planner status
func (h *Handler) GetRoutePlanner(c *fiber.Ctx) error {
	n := h.nodes.Get(c.Params("name"))
	if n == nil {
		return fiber.NewError(fiber.StatusNotFound, "node not found")
	}

	status, err := n.RoutePlannerStatus(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.JSON(status)
}

// FreeRoutePlannerAddress unmarks a failing address on the node
func (h *Handler) FreeRoutePlannerAddress(c *fiber.Ctx) error {
	n := h.nodes.Get(c.Params("name"))
	if n == nil {
		return fiber.NewError(fiber.StatusNotFound, "node not found")
	}

	var body struct {
		Address string `json:"address"`
	}
	if err := c.BodyParser(&body); err != nil || body.Address == "" {
		return fiber.NewError(fiber.StatusBadRequest, "address is required")
	}

	if err := n.RoutePlannerFreeAddress(c.Context(), body.Address); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// FreeRoutePlannerAll unmarks every failing address on the node
func (h *Handler) FreeRoutePlannerAll(c *fiber.Ctx) error {
	n := h.nodes.Get(c.Params("name"))
	if n == nil {
		return fiber.NewError(fiber.StatusNotFound, "node not found")
	}

	if err := n.RoutePlannerFreeAll(c.Context()); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}
