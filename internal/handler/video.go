package handler

import (
	"context"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/service"
	"github.com/clipforge/api/pkg/response"
)

type VideoHandler struct {
	service   *service.VideoService
	records   *client.AirtableClient
	validator *validator.Validate
}

// NewVideoHandler creates a video handler. records may be nil when no record
// store is configured; the from-record endpoint then returns a service error.
func NewVideoHandler(svc *service.VideoService, records *client.AirtableClient, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		service:   svc,
		records:   records,
		validator: v,
	}
}

// Generate handles POST /api/video/generate
func (h *VideoHandler) Generate(c *fiber.Ctx) error {
	var req model.GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if req.Theme == "" && len(req.Prompts) == 0 {
		return response.ValidationError(c, "Either theme or prompts is required", nil)
	}

	result, err := h.service.StartGenerate(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// FromRecord handles POST /api/video/from-record/:recordId
func (h *VideoHandler) FromRecord(c *fiber.Ctx) error {
	recordID := c.Params("recordId")
	if recordID == "" {
		return response.ValidationError(c, "Record ID is required", nil)
	}

	if h.records == nil || !h.records.IsConfigured() {
		return response.ServiceError(c, "Record store not configured")
	}

	record, err := h.records.GetRecord(c.Context(), recordID)
	if err != nil {
		return response.NotFound(c, "Record not found")
	}

	theme, err := h.records.Theme(record)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}

	result, err := h.service.StartGenerate(c.Context(), &model.GenerateRequest{
		Theme:    theme,
		RecordID: recordID,
	})
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	// Mark the record as in flight. Best-effort; the job proceeds either way.
	if err := h.records.SetStatus(context.Background(), recordID, model.RecordStatusProcessing, "", ""); err != nil {
		log.Printf("Failed to mark record %s processing: %v", recordID, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/video/status/:jobId
func (h *VideoHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/video/result/:jobId
func (h *VideoHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job not completed" {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

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
