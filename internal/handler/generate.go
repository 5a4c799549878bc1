package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tunegift/api/internal/client"
	"github.com/tunegift/api/internal/middleware"
	"github.com/tunegift/api/internal/model"
	"github.com/tunegift/api/internal/service"
	"github.com/tunegift/api/pkg/response"
)

type GenerateHandler struct {
	generation *service.GenerationService
	lyrics     *service.LyricsService
	validator  *validator.Validate
}

func NewGenerateHandler(generation *service.GenerationService, lyrics *service.LyricsService, v *validator.Validate) *GenerateHandler {
	return &GenerateHandler{
		generation: generation,
		lyrics:     lyrics,
		validator:  v,
	}
}

// Generate handles POST /generate. The music path always answers with a
// task handle immediately; everything after submit surfaces only through
// the status endpoint.
func (h *GenerateHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	identity := middleware.GetIdentity(c)
	if identity.Key() == "" {
		return response.ValidationError(c, "Missing identity: provide a bearer token or X-Guest-Id header", nil)
	}

	if req.LyricsOnly {
		title, lyrics, err := h.lyrics.Generate(c.Context(), &req)
		if err != nil {
			return response.AIError(c, err.Error())
		}
		return response.OK(c, model.LyricsOnlyResponse{
			Success:   true,
			SongTitle: title,
			Lyrics:    lyrics,
		})
	}

	result, err := h.generation.Start(c.Context(), &req, identity)
	if err != nil {
		return mapStartError(c, err)
	}

	return response.OK(c, result)
}

func mapStartError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrPaymentRequired):
		return response.PaymentRequired(c, "Free song limit reached. Upgrade to create more songs.")
	case errors.Is(err, service.ErrNotConfigured):
		return response.ServiceError(c, "Music generation is not configured")
	case errors.Is(err, client.ErrProviderAuth):
		return response.ProviderError(c, "Authentication with music provider failed")
	case client.IsTimeout(err):
		return response.UpstreamTimeout(c, "Music provider timed out")
	case client.IsConnectivity(err):
		return response.ProviderError(c, "Music provider is unreachable")
	default:
		return response.ProviderError(c, err.Error())
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
