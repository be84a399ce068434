// Package response writes JSON bodies and the {"error": {...}} envelope
// used by every failing route.
package response

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/showrunner/internal/apperr"
)

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeRateLimited     = "RATE_LIMITED"
	CodeServiceError    = "SERVICE_ERROR"
	CodeUpstreamError   = "UPSTREAM_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type errorMapping struct {
	marker error
	status int
	code   string
}

// Checked in order; ErrParse is reported the same way as a provider failure.
var errorMappings = []errorMapping{
	{apperr.ErrValidation, fiber.StatusBadRequest, CodeValidationError},
	{apperr.ErrUnauthorized, fiber.StatusUnauthorized, CodeUnauthorized},
	{apperr.ErrNotFound, fiber.StatusNotFound, CodeNotFound},
	{apperr.ErrConflict, fiber.StatusConflict, CodeConflict},
	{apperr.ErrUpstream, fiber.StatusBadGateway, CodeUpstreamError},
	{apperr.ErrParse, fiber.StatusBadGateway, CodeUpstreamError},
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message, Details: details},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

// FromError renders err with the status of the first sentinel it wraps.
// Untagged errors are logged and answered with a generic 500.
func FromError(c *fiber.Ctx, err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.marker) {
			return Error(c, m.status, m.code, err.Error(), nil)
		}
	}
	slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return ServiceError(c, "Internal server error")
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}
