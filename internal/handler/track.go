package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/service"
	"github.com/makeasinger/showrunner/pkg/response"
)

type TrackHandler struct {
	service   *service.TrackService
	batch     *service.BatchService
	validator *validator.Validate
}

func NewTrackHandler(svc *service.TrackService, batch *service.BatchService, v *validator.Validate) *TrackHandler {
	return &TrackHandler{
		service:   svc,
		batch:     batch,
		validator: v,
	}
}

// Generate handles POST /api/shows/:projectId/tracks/:trackNumber/generate
// @Summary      Generate track
// @Description  Write lyrics when missing and submit the track for audio generation
// @Tags         Tracks
// @Produce      json
// @Param        projectId   path string true "Project ID"
// @Param        trackNumber path int    true "Track number"
// @Success      202 {object} model.GenerateTrackResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/shows/{projectId}/tracks/{trackNumber}/generate [post]
func (h *TrackHandler) Generate(c *fiber.Ctx) error {
	trackNumber, err := c.ParamsInt("trackNumber")
	if err != nil {
		return response.ValidationError(c, "Invalid track number", nil)
	}

	projectID := c.Params("projectId")
	taskID, err := h.service.GenerateTrack(c.UserContext(), projectID, trackNumber)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, model.GenerateTrackResponse{
		ProjectID:   projectID,
		TrackNumber: trackNumber,
		TaskID:      taskID,
		Status:      model.TrackStatusGeneratingAudio,
	})
}

// SetLyrics handles PUT /api/shows/:projectId/tracks/:trackNumber/lyrics
// @Summary      Set lyrics
// @Description  Store user-supplied lyrics for a track that has not been submitted
// @Tags         Tracks
// @Accept       json
// @Produce      json
// @Param        projectId   path string true "Project ID"
// @Param        trackNumber path int    true "Track number"
// @Param        request body model.SetLyricsRequest true "Lyrics"
// @Success      200 {object} model.Track
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/shows/{projectId}/tracks/{trackNumber}/lyrics [put]
func (h *TrackHandler) SetLyrics(c *fiber.Ctx) error {
	trackNumber, err := c.ParamsInt("trackNumber")
	if err != nil {
		return response.ValidationError(c, "Invalid track number", nil)
	}

	var req model.SetLyricsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	track, err := h.service.SetLyrics(c.UserContext(), c.Params("projectId"), trackNumber, &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, track)
}

// Batch handles POST /api/shows/:projectId/batch and queues every track
// that has not been submitted yet for background generation.
func (h *TrackHandler) Batch(c *fiber.Ctx) error {
	result, err := h.batch.EnqueueRemaining(c.UserContext(), c.Params("projectId"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, result)
}
