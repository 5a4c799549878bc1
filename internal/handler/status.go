package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/tunegift/api/internal/service"
	"github.com/tunegift/api/internal/store"
	"github.com/tunegift/api/pkg/response"
)

type StatusHandler struct {
	generation *service.GenerationService
}

func NewStatusHandler(generation *service.GenerationService) *StatusHandler {
	return &StatusHandler{generation: generation}
}

// Status handles GET /check-music-status/:taskId
func (h *StatusHandler) Status(c *fiber.Ctx) error {
	taskID := c.Params("taskId")
	if taskID == "" {
		return response.ValidationError(c, "Task ID is required", nil)
	}

	result, err := h.generation.Status(c.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return response.NotFound(c, "Task not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
