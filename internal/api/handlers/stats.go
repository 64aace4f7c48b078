package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/swipe-markets/backend/internal/services"
)

type StatsHandler struct {
	Service *services.StatsService
}

func NewStatsHandler(service *services.StatsService) *StatsHandler {
	return &StatsHandler{Service: service}
}

// RecordClaim is called by the claim listener with the shared secret in the body
// POST /api/v1/stats/claims
func (h *StatsHandler) RecordClaim(c *fiber.Ctx) error {
	var req services.RecordClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "details": err.Error()})
	}
	if err := h.Service.RecordClaim(c.Context(), req); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// GetStats returns claim aggregates and the top ten leaderboard
// GET /api/v1/stats
func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.Service.GetStats(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}
