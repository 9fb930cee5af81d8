package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/juanrobin09-stack/Astraloves-sub001/internal/models"
)

type presenceService interface {
	Heartbeat(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (models.Presence, error)
}

type PresenceHandler struct {
	presence presenceService
}

func NewPresenceHandler(presence presenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// Heartbeat renews the caller's online flag. Clients call it periodically;
// missing a few renewals is what eventually flips them offline.
func (h *PresenceHandler) Heartbeat(c *fiber.Ctx) error {
	userID, err := requireUserID(c)
	if err != nil {
		return err
	}

	if err := h.presence.Heartbeat(c.Context(), userID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record heartbeat"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PresenceHandler) Get(c *fiber.Ctx) error {
	if _, err := requireUserID(c); err != nil {
		return err
	}

	snapshot, err := h.presence.Get(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read presence"})
	}

	return c.JSON(fiber.Map{"presence": snapshot})
}
