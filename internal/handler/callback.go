package handler

import (
	"crypto/subtle"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/orchestrator"
	"github.com/clipforge/api/pkg/response"
)

// CallbackHandler receives render completion callbacks from the video
// provider.
type CallbackHandler struct {
	correlator *orchestrator.Correlator
	validator  *validator.Validate
	token      string
}

// NewCallbackHandler creates a callback handler. An empty token disables
// callback authentication.
func NewCallbackHandler(correlator *orchestrator.Correlator, v *validator.Validate, token string) *CallbackHandler {
	return &CallbackHandler{
		correlator: correlator,
		validator:  v,
		token:      token,
	}
}

// Render handles POST /callbacks/video. The provider treats anything but a
// 2xx as undelivered and retries, so every decodable payload is acknowledged
// with 200 even when it refers to an unknown or already settled task.
func (h *CallbackHandler) Render(c *fiber.Ctx) error {
	if h.token != "" {
		got := c.Get("X-Callback-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			return response.Unauthorized(c, "Invalid callback token")
		}
	}

	var cb model.RenderCallback
	if err := c.BodyParser(&cb); err != nil {
		return response.ValidationError(c, "Invalid callback body", nil)
	}
	if err := h.validator.Struct(&cb); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	h.correlator.OnTaskResult(c.Context(), cb.TaskID, cb.Outcome())

	return response.OK(c, fiber.Map{"received": true})
}
