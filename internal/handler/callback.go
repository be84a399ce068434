package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/showrunner/internal/model"
	"github.com/makeasinger/showrunner/internal/service"
	"github.com/makeasinger/showrunner/pkg/response"
)

type CallbackHandler struct {
	service *service.CallbackService
}

func NewCallbackHandler(svc *service.CallbackService) *CallbackHandler {
	return &CallbackHandler{service: svc}
}

// Suno handles POST /callbacks/suno?projectId&trackNumber&secret.
// A 5xx answer makes the provider deliver again; every routed delivery gets 200.
func (h *CallbackHandler) Suno(c *fiber.Ctx) error {
	err := h.service.Handle(c.UserContext(), &service.CallbackRequest{
		ProjectID:   c.Query("projectId"),
		TrackNumber: c.Query("trackNumber"),
		Secret:      c.Query("secret"),
		Body:        append([]byte(nil), c.Body()...),
	})
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, model.CallbackAck{Status: "received"})
}
