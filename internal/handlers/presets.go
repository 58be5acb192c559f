package handlers

import (
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/lavapool/lavapool/internal/equalizer"
)

// ListPresets returns every stored equalizer preset sorted by name.
func (h *Handler) ListPresets(c *fiber.Ctx) error {
	presets, err := h.presets.List()
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "preset store unavailable")
	}

	sort.Slice(presets, func(i, j int) bool { return presets[i].Name < presets[j].Name })
	return c.JSON(presets)
}

// GetPreset returns a single preset by name.
func (h *Handler) GetPreset(c *fiber.Ctx) error {
	p, err := h.presets.Get(c.Params("name"))
	if errors.Is(err, equalizer.ErrPresetNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "preset not found")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "preset store unavailable")
	}
	return c.JSON(p)
}

// PutPreset creates or replaces a preset.
func (h *Handler) PutPreset(c *fiber.Ctx) error {
	var p equalizer.Preset
	if err := c.BodyParser(&p); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid preset body")
	}
	p.Name = c.Params("name")

	if err := h.presets.Put(p); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	h.logger.Info("Equalizer preset stored", "preset", p.Name)
	return c.JSON(p)
}

// DeletePreset removes a preset.
func (h *Handler) DeletePreset(c *fiber.Ctx) error {
	if err := h.presets.Delete(c.Params("name")); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "preset store unavailable")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
