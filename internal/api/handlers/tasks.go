package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/services"
)

type TaskHandler struct {
	Service *services.TaskService
}

func NewTaskHandler(service *services.TaskService) *TaskHandler {
	return &TaskHandler{Service: service}
}

// ConfirmTask records a task or achievement completion. Repeats are a 200
// with alreadyConfirmed set.
// POST /api/v1/tasks/confirm
func (h *TaskHandler) ConfirmTask(c *fiber.Ctx) error {
	var req services.ConfirmTaskRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Warn("ConfirmTask: Failed to parse request body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body", "details": err.Error()})
	}

	res, err := h.Service.ConfirmTask(c.Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// GetStatus reports whether an address completed a task
// GET /api/v1/tasks/:address/:taskType
func (h *TaskHandler) GetStatus(c *fiber.Ctx) error {
	status, err := h.Service.GetStatus(c.Context(), c.Params("address"), c.Params("taskType"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(status)
}
