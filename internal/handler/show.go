package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/showrunner/internal/middleware"
	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/service"
	"github.com/makeasinger/showrunner/pkg/response"
)

type ShowHandler struct {
	service   *service.ShowService
	validator *validator.Validate
}

func NewShowHandler(svc *service.ShowService, v *validator.Validate) *ShowHandler {
	return &ShowHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/shows
// @Summary      Create show
// @Description  Store a new project in intake from an idea and a musical type
// @Tags         Shows
// @Accept       json
// @Produce      json
// @Param        request body model.CreateShowRequest true "Show idea"
// @Success      201 {object} model.Project
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/shows [post]
func (h *ShowHandler) Create(c *fiber.Ctx) error {
	var req model.CreateShowRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.service.CreateProject(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, project)
}

// Start handles POST /api/shows/:projectId/start
// @Summary      Start show
// @Description  Enrich the idea and launch cover art, narrative and the first track
// @Tags         Shows
// @Produce      json
// @Param        projectId path string true "Project ID"
// @Success      200 {object} model.StartShowResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/shows/{projectId}/start [post]
func (h *ShowHandler) Start(c *fiber.Ctx) error {
	result, err := h.service.StartShow(c.UserContext(), c.Params("projectId"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Choose handles POST /api/shows/:projectId/choose
// @Summary      Choose title
// @Description  Record the chosen title option and launch generation
// @Tags         Shows
// @Accept       json
// @Produce      json
// @Param        projectId path string true "Project ID"
// @Param        request body model.ChooseTitleRequest true "Title choice"
// @Success      200 {object} model.StartShowResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/shows/{projectId}/choose [post]
func (h *ShowHandler) Choose(c *fiber.Ctx) error {
	var req model.ChooseTitleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.ChooseTitle(c.UserContext(), c.Params("projectId"), *req.TitleIndex)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Get handles GET /api/shows/:projectId
func (h *ShowHandler) Get(c *fiber.Ctx) error {
	result, err := h.service.GetShow(c.UserContext(), c.Params("projectId"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

// Logs handles GET /api/shows/:projectId/logs
func (h *ShowHandler) Logs(c *fiber.Ctx) error {
	logs, err := h.service.Logs(c.UserContext(), c.Params("projectId"))
	if err != nil {
		return response.FromError(c, err)
	}
	if logs == nil {
		logs = []*model.GenerationLog{}
	}

	return response.OK(c, fiber.Map{"logs": logs})
}

// Share handles GET /share/:shareId (public)
func (h *ShowHandler) Share(c *fiber.Ctx) error {
	result, err := h.service.GetShare(c.UserContext(), c.Params("shareId"))
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}
